// Package appearance derives the background filter and scale parameters
// from (effect, blur, glass strength). The same numbers drive the crop
// preview renderer and the style applied to the real overlay background.
package appearance

import (
	"fmt"
	"math"
	"strconv"
)

// Effect selects the background filter stack.
type Effect string

const (
	Gaussian    Effect = "gaussian"
	LiquidGlass Effect = "liquidGlass"
)

const (
	MaxBlurPx        = 40
	MaxPreviewBlurPx = 24
	MaxGlassStrength = 100

	DefaultGlassStrength = 55
	// DefaultDialogBlurPx seeds the background dialog when no background is set.
	DefaultDialogBlurPx = 5
	// MinLiquidGlassBlurPx is the blur floor for the liquid glass effect.
	MinLiquidGlassBlurPx = 2
)

// ParseEffect maps anything other than "liquidGlass" to Gaussian.
func ParseEffect(v string) Effect {
	if Effect(v) == LiquidGlass {
		return LiquidGlass
	}
	return Gaussian
}

// ClampBlurPx rounds v into [0, 40]; non-finite input yields 0.
func ClampBlurPx(v float64) int {
	return clampRound(v, 0, MaxBlurPx, 0)
}

// ClampPreviewBlurPx rounds v into [0, 24], the range the dialogs expose.
func ClampPreviewBlurPx(v float64) int {
	return clampRound(v, 0, MaxPreviewBlurPx, 0)
}

// ClampGlassStrength rounds v into [0, 100]; non-finite input yields 55.
func ClampGlassStrength(v float64) int {
	return clampRound(v, 0, MaxGlassStrength, DefaultGlassStrength)
}

func clampRound(v float64, lo, hi, fallback int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	r := math.Round(v)
	if r < float64(lo) {
		return lo
	}
	if r > float64(hi) {
		return hi
	}
	return int(r)
}

// Params is the numeric filter stack. A zero BlurPx means no blur; factors
// of 1 are identity.
type Params struct {
	BlurPx     int
	Saturate   float64
	Contrast   float64
	Brightness float64
	Gloss      bool
	Strength   int
}

// Identity reports whether Params changes nothing.
func (p Params) Identity() bool {
	return p.BlurPx == 0 && p.Saturate == 1 && p.Contrast == 1 && p.Brightness == 1 && !p.Gloss
}

// Derive computes the filter stack for the given inputs. Factors are
// rounded to two decimals so preview and style agree exactly.
func Derive(effect Effect, blurPx, glassStrength int) Params {
	blur := ClampBlurPx(float64(blurPx))
	if effect != LiquidGlass {
		return Params{BlurPx: blur, Saturate: 1, Contrast: 1, Brightness: 1}
	}
	s := float64(ClampGlassStrength(float64(glassStrength)))
	return Params{
		BlurPx:     max(MinLiquidGlassBlurPx, blur),
		Saturate:   round2(1.25 + s/140),
		Contrast:   round2(1.05 + s/420),
		Brightness: round2(1.01 + s/900),
		Gloss:      true,
		Strength:   int(s),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Filter renders the CSS filter string for the given inputs.
func Filter(effect Effect, blurPx, glassStrength int) string {
	p := Derive(effect, blurPx, glassStrength)
	if effect == LiquidGlass {
		return fmt.Sprintf("blur(%dpx) saturate(%.2f) contrast(%.2f) brightness(%.2f)",
			p.BlurPx, p.Saturate, p.Contrast, p.Brightness)
	}
	if p.BlurPx > 0 {
		return fmt.Sprintf("blur(%dpx)", p.BlurPx)
	}
	return "none"
}

// ScaleFactor is the zoom applied to hide blurred edges.
func ScaleFactor(effect Effect, blurPx, glassStrength int) float64 {
	if effect == LiquidGlass {
		s := float64(ClampGlassStrength(float64(glassStrength)))
		return math.Round((1.06+s/1000)*1000) / 1000
	}
	if ClampBlurPx(float64(blurPx)) > 0 {
		return 1.05
	}
	return 1
}

// Scale renders ScaleFactor the way the style sheet expects it.
func Scale(effect Effect, blurPx, glassStrength int) string {
	if effect == LiquidGlass {
		return strconv.FormatFloat(ScaleFactor(effect, blurPx, glassStrength), 'f', 3, 64)
	}
	return strconv.FormatFloat(ScaleFactor(effect, blurPx, glassStrength), 'f', -1, 64)
}

// HighlightOpacity is the opacity of the liquid glass highlight layer on
// the applied background.
func HighlightOpacity(glassStrength int) float64 {
	s := float64(ClampGlassStrength(float64(glassStrength)))
	return math.Round((0.08+s/600)*1000) / 1000
}

// GlossTopAlpha is the top stop alpha of the preview gloss gradient.
func GlossTopAlpha(glassStrength int) float64 {
	s := float64(ClampGlassStrength(float64(glassStrength)))
	return math.Round(math.Min(0.22, 0.08+s/650+0.05)*1000) / 1000
}

// HighlightGradient is the CSS background of the liquid glass highlight.
const HighlightGradient = "radial-gradient(circle at 20% -10%, rgba(255,255,255,0.55), rgba(255,255,255,0) 45%), " +
	"linear-gradient(165deg, rgba(255,255,255,0.2), rgba(120,180,255,0.08) 38%, rgba(0,0,0,0) 75%)"

// Style is the computed style of the overlay background layer.
type Style struct {
	BackgroundImage    string `json:"backgroundImage,omitempty"`
	BackgroundSize     string `json:"backgroundSize,omitempty"`
	BackgroundPosition string `json:"backgroundPosition,omitempty"`
	BackgroundRepeat   string `json:"backgroundRepeat,omitempty"`
	Filter             string `json:"filter,omitempty"`
	Transform          string `json:"transform,omitempty"`
	Opacity            string `json:"opacity,omitempty"`

	Highlight *HighlightStyle `json:"highlight,omitempty"`
}

// HighlightStyle is the liquid glass overlay layer.
type HighlightStyle struct {
	Opacity    string `json:"opacity"`
	Background string `json:"background"`
}

// BackgroundStyle builds the style for a background displayed at url with
// the given parameters and opacity percentage. An empty url yields an
// empty style.
func BackgroundStyle(url string, effect Effect, blurPx, glassStrength, opacityPct int) Style {
	if url == "" {
		return Style{}
	}
	st := Style{
		BackgroundImage:    "url(" + url + ")",
		BackgroundSize:     "cover",
		BackgroundPosition: "center",
		BackgroundRepeat:   "no-repeat",
		Filter:             Filter(effect, blurPx, glassStrength),
		Transform:          "scale(" + Scale(effect, blurPx, glassStrength) + ")",
		Opacity:            strconv.FormatFloat(float64(clampRound(float64(opacityPct), 0, 100, 100))/100, 'f', -1, 64),
	}
	if effect == LiquidGlass {
		st.Highlight = &HighlightStyle{
			Opacity:    strconv.FormatFloat(HighlightOpacity(glassStrength), 'f', 3, 64),
			Background: HighlightGradient,
		}
	}
	return st
}
