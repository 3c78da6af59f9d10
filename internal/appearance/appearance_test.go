package appearance

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestClampHelpers(t *testing.T) {
	blur := []struct {
		in   float64
		want int
	}{
		{-3, 0}, {0, 0}, {4.4, 4}, {4.5, 5}, {40, 40}, {99, 40},
		{math.NaN(), 0}, {math.Inf(1), 0}, {math.Inf(-1), 0},
	}
	for _, c := range blur {
		if got := ClampBlurPx(c.in); got != c.want {
			t.Errorf("ClampBlurPx(%v) = %d, want %d", c.in, got, c.want)
		}
	}

	glass := []struct {
		in   float64
		want int
	}{
		{-1, 0}, {55, 55}, {100.2, 100}, {1000, 100}, {math.NaN(), 55},
	}
	for _, c := range glass {
		if got := ClampGlassStrength(c.in); got != c.want {
			t.Errorf("ClampGlassStrength(%v) = %d, want %d", c.in, got, c.want)
		}
	}

	if got := ClampPreviewBlurPx(30); got != 24 {
		t.Errorf("ClampPreviewBlurPx(30) = %d", got)
	}
}

func TestParseEffect(t *testing.T) {
	cases := map[string]Effect{
		"liquidGlass": LiquidGlass,
		"gaussian":    Gaussian,
		"LiquidGlass": Gaussian,
		"":            Gaussian,
		"nope":        Gaussian,
	}
	for in, want := range cases {
		if got := ParseEffect(in); got != want {
			t.Errorf("ParseEffect(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		effect   Effect
		blur     int
		strength int
		want     string
	}{
		{Gaussian, 0, 55, "none"},
		{Gaussian, 8, 55, "blur(8px)"},
		{Gaussian, 80, 55, "blur(40px)"},
		{LiquidGlass, 0, 0, "blur(2px) saturate(1.25) contrast(1.05) brightness(1.01)"},
		{LiquidGlass, 10, 100, "blur(10px) saturate(1.96) contrast(1.29) brightness(1.12)"},
		{LiquidGlass, 5, 55, "blur(5px) saturate(1.64) contrast(1.18) brightness(1.07)"},
	}
	for _, c := range cases {
		if got := Filter(c.effect, c.blur, c.strength); got != c.want {
			t.Errorf("Filter(%s, %d, %d) = %q, want %q", c.effect, c.blur, c.strength, got, c.want)
		}
	}
}

func TestScale(t *testing.T) {
	cases := []struct {
		effect   Effect
		blur     int
		strength int
		want     string
	}{
		{Gaussian, 0, 55, "1"},
		{Gaussian, 3, 55, "1.05"},
		{LiquidGlass, 0, 0, "1.060"},
		{LiquidGlass, 0, 55, "1.115"},
		{LiquidGlass, 0, 100, "1.160"},
	}
	for _, c := range cases {
		if got := Scale(c.effect, c.blur, c.strength); got != c.want {
			t.Errorf("Scale(%s, %d, %d) = %q, want %q", c.effect, c.blur, c.strength, got, c.want)
		}
	}
}

func TestDeriveMatchesFilter(t *testing.T) {
	p := Derive(LiquidGlass, 0, 55)
	if p.BlurPx != 2 || !p.Gloss || p.Saturate != 1.64 {
		t.Fatalf("Derive = %+v", p)
	}
	if !Derive(Gaussian, 0, 55).Identity() {
		t.Fatal("gaussian with no blur should be identity")
	}
}

func TestHighlightAndGloss(t *testing.T) {
	if got := HighlightOpacity(55); got != 0.172 {
		t.Errorf("HighlightOpacity(55) = %v", got)
	}
	if got := GlossTopAlpha(0); got != 0.13 {
		t.Errorf("GlossTopAlpha(0) = %v", got)
	}
	if got := GlossTopAlpha(100); got != 0.22 {
		t.Errorf("GlossTopAlpha(100) = %v", got)
	}
}

func TestBackgroundStyle(t *testing.T) {
	if st := BackgroundStyle("", LiquidGlass, 4, 55, 100); st != (Style{}) {
		t.Fatalf("empty url style = %+v", st)
	}

	st := BackgroundStyle("/blob/x", LiquidGlass, 4, 55, 80)
	if st.BackgroundImage != "url(/blob/x)" || st.Transform != "scale(1.115)" || st.Opacity != "0.8" {
		t.Fatalf("style = %+v", st)
	}
	if st.Highlight == nil || st.Highlight.Opacity != "0.172" {
		t.Fatalf("highlight = %+v", st.Highlight)
	}
	if g := BackgroundStyle("/blob/x", Gaussian, 0, 55, 100); g.Highlight != nil || g.Filter != "none" {
		t.Fatalf("gaussian style = %+v", g)
	}
}

func TestApplyFilterKeepsBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 16; x++ {
			src.Set(x, y, color.NRGBA{R: uint8(x * 10), G: 80, B: uint8(y * 20), A: 255})
		}
	}
	out := ApplyFilter(src, Derive(LiquidGlass, 3, 70))
	if out.Bounds().Dx() != 16 || out.Bounds().Dy() != 10 {
		t.Fatalf("bounds = %v", out.Bounds())
	}

	same := ApplyFilter(src, Derive(Gaussian, 0, 55))
	if same.NRGBAAt(5, 5) != src.NRGBAAt(5, 5) {
		t.Fatal("identity params changed pixels")
	}
}

func TestDrawGlossBrightensTop(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 20))
	DrawGloss(dst, dst.Bounds(), 100)
	top := dst.RGBAAt(0, 0)
	bottom := dst.RGBAAt(0, 19)
	if top.A == 0 || bottom.A != 0 {
		t.Fatalf("top=%v bottom=%v", top, bottom)
	}
}
