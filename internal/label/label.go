// Package label names the application's OS-level windows.
package label

// Label identifies one window. Exactly one window holds the Main label and
// owns singleton side effects.
type Label string

const (
	Main    Label = "main"
	Taskbar Label = "taskbar"
	Toolkit Label = "toolkit"
)

// All lists every known window label.
var All = []Label{Main, Taskbar, Toolkit}

// IsMain reports whether l holds the main role.
func (l Label) IsMain() bool { return l == Main }

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	for _, k := range All {
		if l == k {
			return true
		}
	}
	return false
}

// Others returns every known label except l.
func (l Label) Others() []Label {
	out := make([]Label, 0, len(All)-1)
	for _, k := range All {
		if k != l {
			out = append(out, k)
		}
	}
	return out
}
