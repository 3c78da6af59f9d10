// Package prefs holds the per-window visual preferences: the overlay's
// toggles and background, and the taskbar strip's toggles.
package prefs

import (
	"encoding/json"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
)

// Overlay is the overlay window's preference record. BackgroundImage is
// empty when no background is set and is stored as JSON null.
type Overlay struct {
	ShowCPU          bool `json:"showCpu"`
	ShowGPU          bool `json:"showGpu"`
	ShowMemory       bool `json:"showMemory"`
	ShowDisk         bool `json:"showDisk"`
	ShowDown         bool `json:"showDown"`
	ShowUp           bool `json:"showUp"`
	ShowLatency      bool `json:"showLatency"`
	ShowValues       bool `json:"showValues"`
	ShowPercent      bool `json:"showPercent"`
	ShowHardwareInfo bool `json:"showHardwareInfo"`
	ShowWarning      bool `json:"showWarning"`
	ShowDragHandle   bool `json:"showDragHandle"`

	BackgroundOpacity       int               `json:"backgroundOpacity"`
	BackgroundImage         string            `json:"backgroundImage"`
	BackgroundBlurPx        int               `json:"backgroundBlurPx"`
	BackgroundEffect        appearance.Effect `json:"backgroundEffect"`
	BackgroundGlassStrength int               `json:"backgroundGlassStrength"`
}

// DefaultOverlay returns the preferences used when nothing is stored.
func DefaultOverlay() Overlay {
	return Overlay{
		ShowCPU:          true,
		ShowGPU:          true,
		ShowMemory:       true,
		ShowDisk:         true,
		ShowDown:         true,
		ShowUp:           true,
		ShowLatency:      false,
		ShowValues:       true,
		ShowPercent:      true,
		ShowHardwareInfo: false,
		ShowWarning:      true,
		ShowDragHandle:   false,

		BackgroundOpacity:       100,
		BackgroundBlurPx:        0,
		BackgroundEffect:        appearance.Gaussian,
		BackgroundGlassStrength: appearance.DefaultGlassStrength,
	}
}

// Clamped returns o with every numeric field in range and the effect
// normalized.
func (o Overlay) Clamped() Overlay {
	o.BackgroundOpacity = int(schema.ClampRound(float64(o.BackgroundOpacity), 0, 100, 100))
	o.BackgroundBlurPx = appearance.ClampBlurPx(float64(o.BackgroundBlurPx))
	o.BackgroundEffect = appearance.ParseEffect(string(o.BackgroundEffect))
	o.BackgroundGlassStrength = appearance.ClampGlassStrength(float64(o.BackgroundGlassStrength))
	return o
}

// Background is the appearance tuple a theme can be compared against.
type Background struct {
	Image         string
	BlurPx        int
	Effect        appearance.Effect
	GlassStrength int
}

// Background extracts the background tuple.
func (o Overlay) Background() Background {
	c := o.Clamped()
	return Background{
		Image:         c.BackgroundImage,
		BlurPx:        c.BackgroundBlurPx,
		Effect:        c.BackgroundEffect,
		GlassStrength: c.BackgroundGlassStrength,
	}
}

// SetBackground writes the background tuple into o.
func (o *Overlay) SetBackground(b Background) {
	o.BackgroundImage = b.Image
	o.BackgroundBlurPx = b.BlurPx
	o.BackgroundEffect = b.Effect
	o.BackgroundGlassStrength = b.GlassStrength
}

// ClearBackground resets the background to none with default parameters.
func (o *Overlay) ClearBackground() {
	o.SetBackground(Background{Effect: appearance.Gaussian, GlassStrength: appearance.DefaultGlassStrength})
}

// MergeOverlay layers the recognized fields of obj over base. Wrong-typed
// fields are skipped and recorded on obj's diagnostics.
func MergeOverlay(base Overlay, obj schema.Object) Overlay {
	out := base
	toggles := []struct {
		key string
		dst *bool
	}{
		{"showCpu", &out.ShowCPU},
		{"showGpu", &out.ShowGPU},
		{"showMemory", &out.ShowMemory},
		{"showDisk", &out.ShowDisk},
		{"showDown", &out.ShowDown},
		{"showUp", &out.ShowUp},
		{"showLatency", &out.ShowLatency},
		{"showValues", &out.ShowValues},
		{"showPercent", &out.ShowPercent},
		{"showHardwareInfo", &out.ShowHardwareInfo},
		{"showWarning", &out.ShowWarning},
		{"showDragHandle", &out.ShowDragHandle},
	}
	for _, tg := range toggles {
		obj.Bool(tg.key, tg.dst)
	}

	var n float64
	if obj.Number("backgroundOpacity", &n) {
		out.BackgroundOpacity = int(schema.ClampRound(n, 0, 100, 100))
	}
	if obj.Number("backgroundBlurPx", &n) {
		out.BackgroundBlurPx = appearance.ClampBlurPx(n)
	}
	if obj.Number("backgroundGlassStrength", &n) {
		out.BackgroundGlassStrength = appearance.ClampGlassStrength(n)
	}
	var s string
	if obj.String("backgroundEffect", &s) {
		out.BackgroundEffect = appearance.ParseEffect(s)
	}
	obj.NullableString("backgroundImage", &out.BackgroundImage)
	return out.Clamped()
}

// ParseOverlay reads a stored record over the defaults. Anything that is
// not a JSON object yields the defaults.
func ParseOverlay(data []byte) Overlay {
	obj, err := schema.Parse(data)
	if err != nil {
		return DefaultOverlay()
	}
	return MergeOverlay(DefaultOverlay(), obj)
}

func (o Overlay) MarshalJSON() ([]byte, error) {
	type plain Overlay
	var img *string
	if o.BackgroundImage != "" {
		img = &o.BackgroundImage
	}
	return json.Marshal(struct {
		plain
		BackgroundImage *string `json:"backgroundImage"`
	}{plain(o), img})
}

func (o *Overlay) UnmarshalJSON(data []byte) error {
	*o = ParseOverlay(data)
	return nil
}
