// Package theme manages saved background themes and the crop session that
// produces them.
package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
)

const (
	// MaxThemes is the number of theme slots.
	MaxThemes = 3
	// MaxNameLen is the longest theme name, in characters.
	MaxNameLen = 3
	// AutoNamePrefix prefixes themes saved without a name dialog.
	AutoNamePrefix = "主题"
)

var (
	ErrSlotsFull     = errors.New("theme: all slots are in use")
	ErrInvalidName   = errors.New("theme: name must be 1-3 characters")
	ErrNoImage       = errors.New("theme: no image")
	ErrUnknownTheme  = errors.New("theme: no such theme")
	ErrInvalidParams = errors.New("theme: parameter out of range")
	ErrNothingStaged = errors.New("theme: nothing pending")
)

// Theme is a saved background.
type Theme struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	BlurPx        int               `json:"blurPx"`
	Effect        appearance.Effect `json:"effect"`
	GlassStrength int               `json:"glassStrength"`
}

// Background returns the theme's appearance tuple.
func (t Theme) Background() prefs.Background {
	return prefs.Background{
		Image:         t.Image,
		BlurPx:        appearance.ClampBlurPx(float64(t.BlurPx)),
		Effect:        appearance.ParseEffect(string(t.Effect)),
		GlassStrength: appearance.ClampGlassStrength(float64(t.GlassStrength)),
	}
}

// ValidateName trims name and checks its length.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// AutoName is the name given to the n-th theme (1-based).
func AutoName(n int) string {
	return fmt.Sprintf("%s%d", AutoNamePrefix, n)
}

// DecodeThemes reads a theme array. Entries that are not objects or lack
// an id, name or image are dropped; numeric fields are clamped.
func DecodeThemes(parent schema.Object, key string, items []json.RawMessage) []Theme {
	out := make([]Theme, 0, len(items))
	for i, raw := range items {
		obj, ok := parent.Element(key, i, raw)
		if !ok {
			continue
		}
		var t Theme
		obj.String("id", &t.ID)
		obj.String("name", &t.Name)
		obj.String("image", &t.Image)
		blur, strength := 0.0, float64(appearance.DefaultGlassStrength)
		obj.Number("blurPx", &blur)
		obj.Number("glassStrength", &strength)
		var effect string
		obj.String("effect", &effect)

		t.BlurPx = appearance.ClampBlurPx(blur)
		t.GlassStrength = appearance.ClampGlassStrength(strength)
		t.Effect = appearance.ParseEffect(effect)
		if t.ID == "" || t.Name == "" || t.Image == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ParseThemes reads a stored theme list.
func ParseThemes(data []byte) []Theme {
	wrapped := append(append([]byte(`{"themes":`), data...), '}')
	obj, err := schema.Parse(wrapped)
	if err != nil {
		return nil
	}
	items, ok := obj.Array("themes")
	if !ok {
		return nil
	}
	return DecodeThemes(obj, "themes", items)
}
