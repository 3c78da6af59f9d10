// Package host describes the native window-management capability the
// application runs on. Implementations live in subpackages.
package host

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/pulsecore/internal/label"
)

var (
	// ErrNoWindow is returned for operations on a window that does not exist.
	ErrNoWindow = errors.New("host: no such window")
	// ErrWindowExists is returned by CreateWindow for a label already in use.
	ErrWindowExists = errors.New("host: window already exists")
)

// Position is a physical screen position.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a physical size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Monitor is one connected display.
type Monitor struct {
	Name        string   `json:"name"`
	Position    Position `json:"position"`
	Size        Size     `json:"size"`
	ScaleFactor float64  `json:"scaleFactor"`
}

// WindowOptions configures CreateWindow.
type WindowOptions struct {
	Label       label.Label
	Title       string
	URL         string
	Size        Size
	MinWidth    int
	Center      bool
	Visible     bool
	Focus       bool
	Transparent bool
	Decorations bool
	Resizable   bool
	AlwaysOnTop bool
	SkipTaskbar bool
}

// TrayItem is one entry of the tray menu.
type TrayItem struct {
	ID    string
	Title string
}

// Tray describes the tray icon and its menu.
type Tray struct {
	Tooltip string
	Items   []TrayItem
}

// EventKind classifies a WindowEvent.
type EventKind int

const (
	Moved EventKind = iota
	Resized
	Closed
)

func (k EventKind) String() string {
	switch k {
	case Moved:
		return "moved"
	case Resized:
		return "resized"
	default:
		return "closed"
	}
}

// WindowEvent reports a change to a window, whoever caused it.
type WindowEvent struct {
	Kind  EventKind
	Label label.Label
}

// WindowHost is the native window manager. Every call may block and may
// fail; callers treat failures as transient.
type WindowHost interface {
	CreateWindow(ctx context.Context, opts WindowOptions) error
	HasWindow(ctx context.Context, l label.Label) (bool, error)
	ShowWindow(ctx context.Context, l label.Label) error
	HideWindow(ctx context.Context, l label.Label) error
	FocusWindow(ctx context.Context, l label.Label) error
	CloseWindow(ctx context.Context, l label.Label) error
	SetAlwaysOnTop(ctx context.Context, l label.Label, on bool) error

	OuterPosition(ctx context.Context, l label.Label) (Position, error)
	OuterSize(ctx context.Context, l label.Label) (Size, error)
	InnerSize(ctx context.Context, l label.Label) (Size, error)
	SetPosition(ctx context.Context, l label.Label, p Position) error
	SetSize(ctx context.Context, l label.Label, s Size) error
	StartDragging(ctx context.Context, l label.Label) error

	Monitors(ctx context.Context) ([]Monitor, error)
	PrimaryMonitor(ctx context.Context) (Monitor, bool, error)
	IsFullscreenActive(ctx context.Context) (bool, error)

	SetTray(ctx context.Context, t Tray) error
	RemoveTray(ctx context.Context) error

	// Watch registers fn for events on window l. The returned func
	// unregisters it.
	Watch(l label.Label, fn func(WindowEvent)) func()
}
