package theme

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"testing"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
)

const pixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

type fixture struct {
	kv      *kv.KV
	mem     *kv.Memory
	images  *imagestore.Store
	prefs   *prefs.Store
	themes  *Manager
	session *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := kv.NewMemory()
	store := kv.New(mem, nil)
	hub := events.NewHub()
	ep := hub.Join(label.Main)
	images := imagestore.New(store, imagestore.NewBlobs())
	p := prefs.NewStore(store, ep, images)
	p.Load(ctx)
	m := NewManager(store, p, images)
	m.Load(ctx)
	t.Cleanup(func() {
		p.Close()
		ep.Close()
	})
	return &fixture{kv: store, mem: mem, images: images, prefs: p, themes: m, session: NewSession(p, m, images)}
}

func bg(image string) prefs.Background {
	return prefs.Background{Image: image, BlurPx: 6, Effect: appearance.Gaussian, GlassStrength: 55}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestSaveValidatesName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "abcd", "主题12"} {
		if _, err := f.themes.Save(ctx, name, bg(pixel)); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
	th, err := f.themes.Save(ctx, "  夜 ", bg(pixel))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if th.Name != "夜" || !imagestore.IsRef(th.Image) {
		t.Fatalf("saved theme = %+v", th)
	}
	if _, err := f.themes.Save(ctx, "x", bg("")); !errors.Is(err, ErrNoImage) {
		t.Fatalf("Save without image err = %v", err)
	}
}

func TestFourthSaveIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := f.themes.Save(ctx, name, bg(pixel)); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}
	before := f.themes.List()

	if _, err := f.themes.Save(ctx, "d", bg(pixel)); !errors.Is(err, ErrSlotsFull) {
		t.Fatalf("fourth Save err = %v", err)
	}
	after := f.themes.List()
	if len(after) != MaxThemes {
		t.Fatalf("len = %d", len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("theme %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	if f.themes.CanSave() {
		t.Fatal("CanSave with full slots")
	}
}

func TestThemeCountNeverExceedsMax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.themes.Save(ctx, AutoName(i%9 + 1)[len(AutoNamePrefix):], bg(pixel))
		if n := len(f.themes.List()); n > MaxThemes {
			t.Fatalf("after save %d: %d themes", i, n)
		}
	}
	f.themes.Replace(ctx, make([]Theme, 7))
	if n := len(f.themes.List()); n > MaxThemes {
		t.Fatalf("after Replace: %d themes", n)
	}
}

func TestThemesPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saved, _ := f.themes.Save(ctx, "光", bg(pixel))

	reloaded := NewManager(f.kv, f.prefs, f.images)
	reloaded.Load(ctx)
	got := reloaded.List()
	if len(got) != 1 || got[0] != saved {
		t.Fatalf("reloaded = %+v, want [%+v]", got, saved)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _ := f.themes.Save(ctx, "a", bg(pixel))

	if _, err := f.themes.RequestDelete("nope"); !errors.Is(err, ErrUnknownTheme) {
		t.Fatalf("RequestDelete(unknown) err = %v", err)
	}
	if _, err := f.themes.RequestDelete(th.ID); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if len(f.themes.List()) != 1 {
		t.Fatal("request alone deleted the theme")
	}
	f.themes.CancelDelete()
	if err := f.themes.ConfirmDelete(ctx); !errors.Is(err, ErrNothingStaged) {
		t.Fatalf("ConfirmDelete after cancel err = %v", err)
	}

	f.themes.RequestDelete(th.ID)
	if err := f.themes.ConfirmDelete(ctx); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	if len(f.themes.List()) != 0 {
		t.Fatal("theme survived confirmed delete")
	}
	if got := f.images.Resolve(ctx, th.Image); got != "" {
		t.Fatal("orphaned image row survived delete")
	}
}

func TestDeleteAppliedThemeResetsBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _ := f.themes.Save(ctx, "a", prefs.Background{Image: pixel, BlurPx: 9, Effect: appearance.LiquidGlass, GlassStrength: 80})
	f.themes.Apply(ctx, th.ID)
	if !f.themes.IsApplied(th) {
		t.Fatal("theme not applied")
	}

	f.themes.RequestDelete(th.ID)
	f.themes.ConfirmDelete(ctx)

	p := f.prefs.Get()
	if p.BackgroundImage != "" || p.BackgroundBlurPx != 0 || p.BackgroundEffect != appearance.Gaussian || p.BackgroundGlassStrength != 55 {
		t.Fatalf("background not reset: %+v", p)
	}
}

func TestDeleteUnappliedThemeKeepsBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.themes.Save(ctx, "a", bg(pixel))
	b, _ := f.themes.Save(ctx, "b", prefs.Background{Image: pixel, BlurPx: 1, Effect: appearance.Gaussian, GlassStrength: 55})
	f.themes.Apply(ctx, b.ID)

	f.themes.RequestDelete(a.ID)
	f.themes.ConfirmDelete(ctx)

	if f.prefs.Get().BackgroundImage != b.Image {
		t.Fatal("deleting another theme touched the live background")
	}
}

func TestEditAppliedThemeUpdatesBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _ := f.themes.Save(ctx, "a", bg(pixel))
	f.themes.Apply(ctx, th.ID)

	edited, err := f.themes.Edit(ctx, th.ID, EditRequest{Name: "新", BlurPx: 12, Effect: appearance.LiquidGlass, GlassStrength: 90})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	p := f.prefs.Get()
	if p.BackgroundBlurPx != 12 || p.BackgroundEffect != appearance.LiquidGlass || p.BackgroundGlassStrength != 90 {
		t.Fatalf("background not updated: %+v", p)
	}
	if !f.themes.IsApplied(edited) {
		t.Fatal("edited theme no longer matches the live background")
	}
}

func TestEditRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _ := f.themes.Save(ctx, "a", bg(pixel))

	bad := []EditRequest{
		{Name: "a", BlurPx: 25, GlassStrength: 50},
		{Name: "a", BlurPx: -1, GlassStrength: 50},
		{Name: "a", BlurPx: 3, GlassStrength: 101},
		{Name: "a", BlurPx: math.NaN(), GlassStrength: 50},
		{Name: "long", BlurPx: 3, GlassStrength: 50},
	}
	for _, req := range bad {
		if _, err := f.themes.Edit(ctx, th.ID, req); err == nil {
			t.Errorf("Edit(%+v) accepted", req)
		}
	}
	if got := f.themes.List()[0]; got != th {
		t.Fatalf("rejected edits changed the theme: %+v", got)
	}
}

func TestNamedSaveFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.themes.ConfirmSave(ctx, "a"); !errors.Is(err, ErrNothingStaged) {
		t.Fatalf("ConfirmSave with nothing staged err = %v", err)
	}
	f.themes.BeginSave(bg(pixel))
	if _, err := f.themes.ConfirmSave(ctx, "toolong"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("invalid name err = %v", err)
	}
	th, err := f.themes.ConfirmSave(ctx, "ok")
	if err != nil || th.Name != "ok" {
		t.Fatalf("ConfirmSave = %+v, %v", th, err)
	}
}

func TestParseThemesDropsBadEntries(t *testing.T) {
	got := ParseThemes([]byte(`[
		{"id":"1","name":"a","image":"pcimg:x","blurPx":99,"effect":"liquidGlass","glassStrength":-3},
		{"id":"2","name":"b"},
		"junk",
		{"id":"3","name":"c","image":"pcimg:y","effect":"weird"}
	]`))
	if len(got) != 2 {
		t.Fatalf("got %d themes: %+v", len(got), got)
	}
	if got[0].BlurPx != 40 || got[0].GlassStrength != 0 || got[0].Effect != appearance.LiquidGlass {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Effect != appearance.Gaussian || got[1].GlassStrength != 55 {
		t.Fatalf("second = %+v", got[1])
	}
	if ParseThemes([]byte(`{"not":"array"}`)) != nil {
		t.Fatal("non-array should parse to nil")
	}
}

func TestSessionOpenSeedsParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.session.Open(0, 0)
	if f.session.Aspect() != FallbackAspect {
		t.Fatalf("aspect = %v", f.session.Aspect())
	}
	effect, blur, strength := f.session.Params()
	if effect != appearance.Gaussian || blur != 5 || strength != 55 {
		t.Fatalf("defaults = %s %d %d", effect, blur, strength)
	}

	f.prefs.Update(ctx, func(p *prefs.Overlay) {
		p.SetBackground(prefs.Background{Image: pixel, BlurPx: 11, Effect: appearance.LiquidGlass, GlassStrength: 70})
	})
	f.session.Open(300, 100)
	if f.session.Aspect() != 3 {
		t.Fatalf("aspect = %v", f.session.Aspect())
	}
	effect, blur, strength = f.session.Params()
	if effect != appearance.LiquidGlass || blur != 11 || strength != 70 {
		t.Fatalf("seeded = %s %d %d", effect, blur, strength)
	}
}

func TestSetEffectLiquidGlassRaisesBlur(t *testing.T) {
	f := newFixture(t)
	f.session.Open(0, 0)
	f.session.SetBlurPx(0)
	f.session.SetEffect(appearance.LiquidGlass)
	if _, blur, _ := f.session.Params(); blur != 2 {
		t.Fatalf("blur = %d, want 2", blur)
	}
}

func TestLoadRejectsNonImages(t *testing.T) {
	f := newFixture(t)
	f.session.Open(0, 0)
	if err := f.session.Load(bytes.NewReader([]byte("hello")), "text/plain", 100, 100); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("text err = %v", err)
	}
	if err := f.session.Load(bytes.NewReader([]byte("hello")), "image/png", 100, 100); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("garbage err = %v", err)
	}
	if f.session.Phase() != Open {
		t.Fatalf("phase = %v", f.session.Phase())
	}

	f.session.Close()
	if err := f.session.Load(bytes.NewReader(pngBytes(t, 10, 10)), "image/png", 100, 100); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closed err = %v", err)
	}
}

func TestInitialCropIsCenteredAtAspect(t *testing.T) {
	f := newFixture(t)
	f.session.Open(160, 100)
	if err := f.session.Load(bytes.NewReader(pngBytes(t, 400, 400)), "image/png", 200, 200); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fit := f.session.Fit()
	if fit.Scale != 0.5 || fit.DrawW != 200 || fit.OffsetX != 0 {
		t.Fatalf("fit = %+v", fit)
	}
	c := f.session.Crop()
	want := Rect{X: 20, Y: 50, W: 160, H: 100}
	if !near(c.X, want.X) || !near(c.Y, want.Y) || !near(c.W, want.W) || !near(c.H, want.H) {
		t.Fatalf("crop = %+v, want %+v", c, want)
	}
}

func TestCropStaysInsideFittedImage(t *testing.T) {
	f := newFixture(t)
	f.session.Open(16, 9)
	if err := f.session.Load(bytes.NewReader(pngBytes(t, 300, 200)), "image/png", 320, 240); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fit := f.session.Fit()
	aspect := f.session.Aspect()
	rng := rand.New(rand.NewSource(7))
	const eps = 1e-6

	for i := 0; i < 500; i++ {
		x := rng.Float64()*400 - 40
		y := rng.Float64()*320 - 40
		f.session.PointerDown(x, y)
		for j := 0; j < 5; j++ {
			f.session.PointerMove(x+rng.Float64()*600-300, y+rng.Float64()*600-300)
			c := f.session.Crop()
			if c.X < fit.OffsetX-eps || c.Y < fit.OffsetY-eps ||
				c.X+c.W > fit.OffsetX+fit.DrawW+eps || c.Y+c.H > fit.OffsetY+fit.DrawH+eps {
				t.Fatalf("step %d/%d: crop %+v escapes fit %+v", i, j, c, fit)
			}
			if math.Abs(c.W/c.H-aspect) > 1e-9 {
				t.Fatalf("step %d/%d: aspect %v, want %v", i, j, c.W/c.H, aspect)
			}
		}
		f.session.PointerUp()
		if f.session.DragMode() != DragIdle {
			t.Fatal("pointer up left a drag active")
		}
	}
}

func TestInitialCropFitsThinImage(t *testing.T) {
	f := newFixture(t)
	f.session.Open(2, 1)
	if err := f.session.Load(bytes.NewReader(pngBytes(t, 400, 20)), "image/png", 400, 200); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fit := f.session.Fit()
	c := f.session.Crop()
	const eps = 1e-6
	if c.X < fit.OffsetX-eps || c.Y < fit.OffsetY-eps ||
		c.X+c.W > fit.OffsetX+fit.DrawW+eps || c.Y+c.H > fit.OffsetY+fit.DrawH+eps {
		t.Fatalf("crop %+v escapes fit %+v", c, fit)
	}
	if math.Abs(c.W/c.H-2) > 1e-9 {
		t.Fatalf("aspect %v, want 2", c.W/c.H)
	}

	f.session.PointerDown(c.X+c.W/2, c.Y+c.H/2)
	f.session.PointerMove(c.X+c.W/2+500, c.Y+c.H/2+500)
	f.session.PointerUp()
	moved := f.session.Crop()
	if moved.Y+moved.H > fit.OffsetY+fit.DrawH+eps || moved.X+moved.W > fit.OffsetX+fit.DrawW+eps {
		t.Fatalf("moved crop %+v escapes fit %+v", moved, fit)
	}
}

func TestPointerDownPicksMode(t *testing.T) {
	f := newFixture(t)
	f.session.Open(1, 1)
	f.session.Load(bytes.NewReader(pngBytes(t, 100, 100)), "image/png", 100, 100)
	c := f.session.Crop()

	f.session.PointerDown(c.X+c.W/2, c.Y+c.H/2)
	if f.session.DragMode() != DragMove {
		t.Fatal("inside press should move")
	}
	f.session.PointerUp()
	f.session.PointerDown(1, 1)
	if f.session.DragMode() != DragResize {
		t.Fatal("outside press should resize")
	}
}

func TestFinalizeDownsamplesOnly(t *testing.T) {
	cases := []struct {
		name         string
		w, h         int
		wantMaxW     int
		wantMaxH     int
		expectShrink bool
	}{
		{"small", 200, 100, 200, 100, false},
		{"large", 3000, 1500, 1400, 900, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.session.Open(2, 1)
			if err := f.session.Load(bytes.NewReader(pngBytes(t, tc.w, tc.h)), "image/png", 400, 200); err != nil {
				t.Fatalf("Load: %v", err)
			}
			dataURL, ok := f.session.Finalize()
			if !ok {
				t.Fatal("Finalize failed")
			}
			d, err := imagestore.ParseDataURL(dataURL)
			if err != nil || d.MIME != "image/jpeg" {
				t.Fatalf("data URL = %.40q, %v", dataURL, err)
			}
			out, err := jpeg.Decode(bytes.NewReader(d.Data))
			if err != nil {
				t.Fatalf("jpeg.Decode: %v", err)
			}
			b := out.Bounds()
			if b.Dx() > tc.wantMaxW || b.Dy() > tc.wantMaxH {
				t.Fatalf("output %dx%d exceeds %dx%d", b.Dx(), b.Dy(), tc.wantMaxW, tc.wantMaxH)
			}
			// 80% of the source at 2:1.
			srcW := int(math.Round(float64(tc.w) * 0.8))
			if !tc.expectShrink && b.Dx() != srcW {
				t.Fatalf("small crop resized: width %d, want %d", b.Dx(), srcW)
			}
		})
	}
}

func TestFinalizeWithoutImage(t *testing.T) {
	f := newFixture(t)
	f.session.Open(0, 0)
	if _, ok := f.session.Finalize(); ok {
		t.Fatal("Finalize without image succeeded")
	}
	if f.session.Render() != nil {
		t.Fatal("Render without image returned a canvas")
	}
}

func TestRenderDarkensOutsideCrop(t *testing.T) {
	f := newFixture(t)
	f.session.Open(1, 1)
	f.session.SetBlurPx(0)
	f.session.Load(bytes.NewReader(pngBytes(t, 100, 100)), "image/png", 100, 100)

	canvas := f.session.Render()
	if canvas == nil {
		t.Fatal("Render returned nil")
	}
	c := f.session.Crop()
	inside := canvas.RGBAAt(int(c.X+c.W/2), int(c.Y+c.H/2))
	outside := canvas.RGBAAt(2, 2)
	if outside.B >= 120 {
		t.Fatalf("outside pixel %v not darkened", outside)
	}
	if inside.B < 110 {
		t.Fatalf("inside pixel %v darkened", inside)
	}
}

func TestApplySetsBackgroundAndCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.session.Open(2, 1)
	f.session.Load(bytes.NewReader(pngBytes(t, 200, 100)), "image/png", 200, 100)
	f.session.SetEffect(appearance.LiquidGlass)
	f.session.SetGlassStrength(80)

	if !f.session.Apply(ctx) {
		t.Fatal("Apply failed")
	}
	p := f.prefs.Get()
	if !imagestore.IsRef(p.BackgroundImage) || p.BackgroundEffect != appearance.LiquidGlass || p.BackgroundGlassStrength != 80 {
		t.Fatalf("prefs = %+v", p)
	}
	if f.session.Phase() != Closed {
		t.Fatal("session still open")
	}
}

func TestApplyAndSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= MaxThemes; i++ {
		f.session.Open(2, 1)
		f.session.Load(bytes.NewReader(pngBytes(t, 60, 30)), "image/png", 120, 60)
		th, ok := f.session.ApplyAndSave(ctx)
		if !ok {
			t.Fatalf("save %d failed", i)
		}
		if th.Name != AutoName(i) {
			t.Fatalf("name = %q, want %q", th.Name, AutoName(i))
		}
		if !f.themes.IsApplied(th) {
			t.Fatal("saved theme is not the applied background")
		}
	}

	before := f.prefs.Get()
	f.session.Open(2, 1)
	f.session.Load(bytes.NewReader(pngBytes(t, 60, 30)), "image/png", 120, 60)
	if _, ok := f.session.ApplyAndSave(ctx); ok {
		t.Fatal("save with full slots succeeded")
	}
	if f.prefs.Get() != before {
		t.Fatal("inert save changed the background")
	}
}
