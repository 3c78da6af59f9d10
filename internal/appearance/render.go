package appearance

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ApplyFilter runs the blur/saturate/contrast/brightness stack on img. CSS
// blur(Npx) is a gaussian with standard deviation N, which is what
// imaging.Blur takes as sigma.
func ApplyFilter(img image.Image, p Params) *image.NRGBA {
	out := imaging.Clone(img)
	if p.BlurPx > 0 {
		out = imaging.Blur(out, float64(p.BlurPx))
	}
	if p.Saturate != 1 && p.Saturate != 0 {
		out = imaging.AdjustSaturation(out, math.Min(100, (p.Saturate-1)*100))
	}
	if p.Contrast != 1 && p.Contrast != 0 {
		out = imaging.AdjustContrast(out, math.Min(100, (p.Contrast-1)*100))
	}
	if p.Brightness != 1 && p.Brightness != 0 {
		k := p.Brightness
		out = imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: scaleChannel(c.R, k),
				G: scaleChannel(c.G, k),
				B: scaleChannel(c.B, k),
				A: c.A,
			}
		})
	}
	return out
}

func scaleChannel(v uint8, k float64) uint8 {
	f := math.Round(float64(v) * k)
	if f > 255 {
		return 255
	}
	if f < 0 {
		return 0
	}
	return uint8(f)
}

type gradientStop struct {
	at      float64
	r, g, b float64
	a       float64
}

// DrawGloss paints the liquid glass gradient over r: white at the top edge,
// a faint blue tint through the middle, transparent at the bottom.
func DrawGloss(dst draw.Image, r image.Rectangle, glassStrength int) {
	if r.Empty() {
		return
	}
	stops := []gradientStop{
		{at: 0, r: 255, g: 255, b: 255, a: GlossTopAlpha(glassStrength)},
		{at: 0.5, r: 200, g: 230, b: 255, a: 0.06},
		{at: 1, r: 255, g: 255, b: 255, a: 0},
	}
	h := r.Dy()
	for y := 0; y < h; y++ {
		t := 0.0
		if h > 1 {
			t = float64(y) / float64(h-1)
		}
		c := sampleGradient(stops, t)
		row := image.Rect(r.Min.X, r.Min.Y+y, r.Max.X, r.Min.Y+y+1)
		draw.Draw(dst, row, image.NewUniform(c), image.Point{}, draw.Over)
	}
}

func sampleGradient(stops []gradientStop, t float64) color.NRGBA {
	a, b := stops[0], stops[len(stops)-1]
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].at {
			a, b = stops[i-1], stops[i]
			break
		}
	}
	f := 0.0
	if b.at > a.at {
		f = (t - a.at) / (b.at - a.at)
	}
	lerp := func(x, y float64) float64 { return x + (y-x)*f }
	return color.NRGBA{
		R: uint8(math.Round(lerp(a.r, b.r))),
		G: uint8(math.Round(lerp(a.g, b.g))),
		B: uint8(math.Round(lerp(a.b, b.b))),
		A: uint8(math.Round(lerp(a.a, b.a) * 255)),
	}
}
