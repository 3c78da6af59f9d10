// Package hotkey parses and formats accelerator strings such as
// "Ctrl+Shift+R".
package hotkey

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is returned for strings that do not name exactly one key.
var ErrInvalid = errors.New("hotkey: invalid accelerator")

// Hotkey is a parsed accelerator.
type Hotkey struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
	Key   string
}

// Parse reads a "+"-separated accelerator. Modifier names are matched
// case-insensitively (ctrl/control, alt, shift, meta/cmd/command) and
// exactly one other part must remain.
func Parse(s string) (Hotkey, error) {
	var h Hotkey
	var keys []string
	for _, part := range strings.Split(s, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch strings.ToLower(part) {
		case "ctrl", "control":
			h.Ctrl = true
		case "alt":
			h.Alt = true
		case "shift":
			h.Shift = true
		case "meta", "cmd", "command":
			h.Meta = true
		default:
			keys = append(keys, part)
		}
	}
	if len(keys) != 1 {
		return Hotkey{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	h.Key = normalizeKey(keys[0])
	return h, nil
}

// Normalize parses s and formats it back in canonical form.
func Normalize(s string) (string, error) {
	h, err := Parse(s)
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// String formats h as Ctrl+Alt+Shift+Meta+Key.
func (h Hotkey) String() string {
	parts := make([]string, 0, 5)
	if h.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if h.Alt {
		parts = append(parts, "Alt")
	}
	if h.Shift {
		parts = append(parts, "Shift")
	}
	if h.Meta {
		parts = append(parts, "Meta")
	}
	return strings.Join(append(parts, normalizeKey(h.Key)), "+")
}

// Matches reports whether pressed is the same chord as h.
func (h Hotkey) Matches(pressed Hotkey) bool {
	return h.Ctrl == pressed.Ctrl &&
		h.Alt == pressed.Alt &&
		h.Shift == pressed.Shift &&
		h.Meta == pressed.Meta &&
		normalizeKey(h.Key) == normalizeKey(pressed.Key)
}

func normalizeKey(k string) string {
	if k == " " {
		return "Space"
	}
	if utf8.RuneCountInString(k) == 1 {
		return strings.ToUpper(k)
	}
	return k
}
