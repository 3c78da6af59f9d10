package window

import "strings"

// PrimaryButton is the button index of the primary pointer button.
const PrimaryButton = 0

// interactive lists the elements that keep their own pointer handling.
var interactive = map[string]bool{
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
	"a":        true,
}

// Pointer describes a pointer press. Path holds the element names from
// the pressed element up to the root.
type Pointer struct {
	Button int
	Path   []string
}

// DragAllowed reports whether p should start a native window drag.
func DragAllowed(p Pointer) bool {
	if p.Button != PrimaryButton {
		return false
	}
	for _, el := range p.Path {
		if interactive[strings.ToLower(strings.TrimSpace(el))] {
			return false
		}
	}
	return true
}
