package imagestore

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bryanchriswhite/pulsecore/internal/kv"
)

const pixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

func newTestStore(t *testing.T) (*Store, *Blobs, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	blobs := NewBlobs()
	return New(kv.New(mem, nil), blobs), blobs, mem
}

func TestStoreAndResolve(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	ref := s.StoreDataURL(ctx, pixel)
	if !IsRef(ref) {
		t.Fatalf("StoreDataURL returned %q", ref)
	}
	if got := s.Resolve(ctx, ref); got != pixel {
		t.Fatalf("Resolve(ref) = %q", got)
	}
	if got := s.Resolve(ctx, pixel); got != pixel {
		t.Fatal("data URL should pass through Resolve")
	}
	if got := s.Resolve(ctx, RefPrefix+"missing"); got != "" {
		t.Fatalf("Resolve(missing) = %q", got)
	}
	if got := s.Resolve(ctx, "https://example.com/a.png"); got != "" {
		t.Fatalf("Resolve(plain) = %q", got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _, mem := newTestStore(t)

	for _, in := range []string{pixel, RefPrefix + "abc", "", "plain"} {
		once := s.Normalize(ctx, in)
		twice := s.Normalize(ctx, once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %.20q: %q then %q", in, once, twice)
		}
	}
	if mem.Len() != 1 {
		t.Fatalf("stored rows = %d, want 1 (only the data URL)", mem.Len())
	}
}

func TestAcquireReleaseRefcount(t *testing.T) {
	ctx := context.Background()
	s, blobs, _ := newTestStore(t)
	ref := s.StoreDataURL(ctx, pixel)

	h1 := s.Acquire(ctx, ref)
	h2 := s.Acquire(ctx, ref)
	if h1.URL == "" || h1.URL != h2.URL {
		t.Fatalf("handles = %+v %+v, want shared URL", h1, h2)
	}
	if s.Refs(ref) != 2 {
		t.Fatalf("refs = %d, want 2", s.Refs(ref))
	}

	s.Release(ref)
	if blobs.Len() != 1 {
		t.Fatal("URL revoked while a holder remains")
	}
	s.Release(ref)
	if blobs.Len() != 0 || s.Refs(ref) != 0 {
		t.Fatal("URL not revoked at zero refs")
	}

	// Extra releases are inert.
	s.Release(ref)
	s.Release("not-a-ref")
}

func TestAcquirePromotesDataURL(t *testing.T) {
	ctx := context.Background()
	s, _, mem := newTestStore(t)

	h := s.Acquire(ctx, pixel)
	if !IsRef(h.Ref) || h.URL == "" {
		t.Fatalf("Acquire(data URL) = %+v", h)
	}
	if strings.HasPrefix(h.URL, "data:") {
		t.Fatal("raw data URL handed out for display")
	}
	if mem.Len() != 1 {
		t.Fatalf("rows = %d, want 1", mem.Len())
	}

	plain := s.Acquire(ctx, "/static/bg.png")
	if plain.URL != "/static/bg.png" || plain.Ref != "" {
		t.Fatalf("plain value = %+v", plain)
	}
}

func TestAcquireMissingRef(t *testing.T) {
	s, blobs, _ := newTestStore(t)
	h := s.Acquire(context.Background(), RefPrefix+"gone")
	if h.URL != "" || h.Ref != RefPrefix+"gone" {
		t.Fatalf("Acquire(missing) = %+v", h)
	}
	if blobs.Len() != 0 {
		t.Fatal("minted a URL for a missing image")
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	s, blobs, mem := newTestStore(t)
	ref := s.StoreDataURL(ctx, pixel)
	s.Acquire(ctx, ref)

	s.Delete(ctx, ref)
	if mem.Len() != 0 {
		t.Fatal("row survived Delete")
	}
	if blobs.Len() != 0 {
		t.Fatal("URL survived Delete of sole holder")
	}
	if got := s.Resolve(ctx, ref); got != "" {
		t.Fatalf("Resolve after Delete = %q", got)
	}
}

func TestBlobsServe(t *testing.T) {
	ctx := context.Background()
	s, blobs, _ := newTestStore(t)
	h := s.Acquire(ctx, pixel)

	rec := httptest.NewRecorder()
	blobs.ServeHTTP(rec, httptest.NewRequest("GET", h.URL, nil))
	if rec.Code != 200 || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("serve = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	s.Release(h.Ref)
	rec = httptest.NewRecorder()
	blobs.ServeHTTP(rec, httptest.NewRequest("GET", h.URL, nil))
	if rec.Code != 404 {
		t.Fatalf("revoked URL served %d", rec.Code)
	}
}

func TestParseDataURL(t *testing.T) {
	d, err := ParseDataURL(pixel)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if d.MIME != "image/png" || len(d.Data) == 0 {
		t.Fatalf("got %+v", d)
	}
	if got := EncodeDataURL(d.MIME, d.Data); got != pixel {
		t.Fatalf("EncodeDataURL mismatch")
	}
	if _, err := ParseDataURL("data:image/png;base64"); err == nil {
		t.Fatal("missing comma accepted")
	}
	if _, err := ParseDataURL("pcimg:x"); err == nil {
		t.Fatal("token accepted as data URL")
	}
}
