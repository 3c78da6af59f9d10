// Package imagestore keeps user images out of the preference records. Each
// image lives in the KV store under an opaque "pcimg:" token; display URLs
// minted from it are reference counted and revoked when the last holder
// releases them.
package imagestore

import (
	"context"
	"strings"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/google/uuid"
)

// RefPrefix marks image reference tokens.
const RefPrefix = "pcimg:"

// IsRef reports whether v is an image reference token.
func IsRef(v string) bool {
	return strings.HasPrefix(v, RefPrefix)
}

func storeKey(ref string) string {
	return kv.ImagePrefix + strings.TrimPrefix(ref, RefPrefix)
}

// Handle is the result of Acquire. Ref is empty for values that are not
// tokens; such handles need no Release.
type Handle struct {
	URL string
	Ref string
}

type cachedURL struct {
	url  string
	refs int
}

// Store is the window's image service. It must be constructed once per
// window and shared by every consumer in that window.
type Store struct {
	kv    *kv.KV
	urls  URLMinter
	newID func() string

	mu    sync.Mutex
	cache map[string]*cachedURL
}

func New(store *kv.KV, urls URLMinter) *Store {
	return &Store{
		kv:    store,
		urls:  urls,
		newID: uuid.NewString,
		cache: make(map[string]*cachedURL),
	}
}

// StoreDataURL persists dataURL under a fresh token and returns the token.
func (s *Store) StoreDataURL(ctx context.Context, dataURL string) string {
	ref := RefPrefix + s.newID()
	s.kv.Set(ctx, storeKey(ref), dataURL)
	logger.WithComponent("imagestore").Debug().Str("ref", ref).Int("bytes", len(dataURL)).Msg("Stored image")
	return ref
}

// Resolve returns the data URL behind value. Data URLs pass through; tokens
// are looked up; anything else resolves to "".
func (s *Store) Resolve(ctx context.Context, value string) string {
	if IsDataURL(value) {
		return value
	}
	if !IsRef(value) {
		return ""
	}
	var dataURL string
	if !s.kv.Get(ctx, storeKey(value), &dataURL) {
		return ""
	}
	return dataURL
}

// Acquire returns a display URL for value and takes a reference on it.
// Inline data URLs are first promoted into the store.
func (s *Store) Acquire(ctx context.Context, value string) Handle {
	if IsDataURL(value) {
		value = s.StoreDataURL(ctx, value)
	}
	if !IsRef(value) {
		return Handle{URL: value}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[value]; ok {
		c.refs++
		return Handle{URL: c.url, Ref: value}
	}

	dataURL := s.Resolve(ctx, value)
	if dataURL == "" {
		return Handle{Ref: value}
	}
	decoded, err := ParseDataURL(dataURL)
	if err != nil {
		logger.WithComponent("imagestore").Warn().Err(err).Str("ref", value).Msg("Stored image is not decodable")
		return Handle{Ref: value}
	}
	url := s.urls.Create(decoded.MIME, decoded.Data)
	s.cache[value] = &cachedURL{url: url, refs: 1}
	return Handle{URL: url, Ref: value}
}

// Release drops one reference. The display URL is revoked when none remain.
func (s *Store) Release(ref string) {
	if !IsRef(ref) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cache[ref]
	if !ok {
		return
	}
	c.refs--
	if c.refs <= 0 {
		s.urls.Revoke(c.url)
		delete(s.cache, ref)
	}
}

// Delete releases ref and removes its stored row.
func (s *Store) Delete(ctx context.Context, ref string) {
	if !IsRef(ref) {
		return
	}
	s.Release(ref)
	s.kv.Delete(ctx, storeKey(ref))
	logger.WithComponent("imagestore").Debug().Str("ref", ref).Msg("Deleted image")
}

// Normalize promotes an inline data URL into a token. Tokens, other strings
// and "" are returned unchanged.
func (s *Store) Normalize(ctx context.Context, value string) string {
	if IsDataURL(value) {
		return s.StoreDataURL(ctx, value)
	}
	return value
}

// Refs reports the live reference count for ref.
func (s *Store) Refs(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[ref]; ok {
		return c.refs
	}
	return 0
}
