// Package simhost is an in-memory window host. It backs headless runs and
// tests: windows are plain records, monitors and the fullscreen state are
// set by the caller, and any operation can be made to fail.
package simhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/label"
)

// Window is the recorded state of one simulated window.
type Window struct {
	Options     host.WindowOptions
	Position    host.Position
	Outer       host.Size
	Inner       host.Size
	Visible     bool
	Focused     bool
	AlwaysOnTop bool
	Dragging    bool
}

// Host is a simulated host. The zero value is not usable; call New.
type Host struct {
	mu         sync.Mutex
	windows    map[label.Label]*Window
	monitors   []host.Monitor
	primary    int
	fullscreen bool
	tray       *host.Tray
	failures   map[string]error
	calls      map[string]int
	frame      int

	watchMu  sync.Mutex
	watchers map[label.Label]map[int]func(host.WindowEvent)
	nextID   int
}

// New returns a host with the given monitors; the first is primary.
func New(monitors ...host.Monitor) *Host {
	return &Host{
		windows:  make(map[label.Label]*Window),
		monitors: monitors,
		failures: make(map[string]error),
		calls:    make(map[string]int),
		watchers: make(map[label.Label]map[int]func(host.WindowEvent)),
	}
}

// SetMonitors replaces the monitor layout.
func (h *Host) SetMonitors(monitors ...host.Monitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.monitors = monitors
	h.primary = 0
}

// SetFrame sets the height of window chrome, the difference between outer
// and inner height for windows created afterwards.
func (h *Host) SetFrame(px int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = px
}

// SetFullscreen sets what IsFullscreenActive reports.
func (h *Host) SetFullscreen(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullscreen = v
}

// Fail makes the next call to op return err. op is the method name.
func (h *Host) Fail(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = err
}

// Calls reports how often op was called.
func (h *Host) Calls(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[op]
}

// Window returns a copy of the window record.
func (h *Host) Window(l label.Label) (Window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[l]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Tray returns the installed tray, if any.
func (h *Host) Tray() (host.Tray, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tray == nil {
		return host.Tray{}, false
	}
	return *h.tray, true
}

// Drag moves window l as a user drag would and reports it.
func (h *Host) Drag(l label.Label, p host.Position) {
	h.mu.Lock()
	w, ok := h.windows[l]
	if ok {
		w.Position = p
		w.Dragging = false
	}
	h.mu.Unlock()
	if ok {
		h.emit(host.WindowEvent{Kind: host.Moved, Label: l})
	}
}

// enter records a call and returns its injected failure, if any. The
// caller must hold h.mu.
func (h *Host) enter(op string) error {
	h.calls[op]++
	if err, ok := h.failures[op]; ok {
		delete(h.failures, op)
		return err
	}
	return nil
}

func (h *Host) window(l label.Label) (*Window, error) {
	w, ok := h.windows[l]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrNoWindow, l)
	}
	return w, nil
}

func (h *Host) emit(ev host.WindowEvent) {
	h.watchMu.Lock()
	fns := make([]func(host.WindowEvent), 0, len(h.watchers[ev.Label]))
	for _, fn := range h.watchers[ev.Label] {
		fns = append(fns, fn)
	}
	h.watchMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *Host) Watch(l label.Label, fn func(host.WindowEvent)) func() {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	if h.watchers[l] == nil {
		h.watchers[l] = make(map[int]func(host.WindowEvent))
	}
	id := h.nextID
	h.nextID++
	h.watchers[l][id] = fn
	return func() {
		h.watchMu.Lock()
		defer h.watchMu.Unlock()
		delete(h.watchers[l], id)
	}
}

func (h *Host) CreateWindow(_ context.Context, opts host.WindowOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("CreateWindow"); err != nil {
		return err
	}
	if _, ok := h.windows[opts.Label]; ok {
		return fmt.Errorf("%w: %s", host.ErrWindowExists, opts.Label)
	}
	w := &Window{
		Options:     opts,
		Inner:       opts.Size,
		Outer:       host.Size{Width: opts.Size.Width, Height: opts.Size.Height + h.frame},
		Visible:     opts.Visible,
		Focused:     opts.Focus,
		AlwaysOnTop: opts.AlwaysOnTop,
	}
	if opts.Center && len(h.monitors) > 0 {
		m := h.monitors[h.primary]
		w.Position = host.Position{
			X: m.Position.X + (m.Size.Width-w.Outer.Width)/2,
			Y: m.Position.Y + (m.Size.Height-w.Outer.Height)/2,
		}
	}
	h.windows[opts.Label] = w
	return nil
}

func (h *Host) HasWindow(_ context.Context, l label.Label) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("HasWindow"); err != nil {
		return false, err
	}
	_, ok := h.windows[l]
	return ok, nil
}

func (h *Host) update(op string, l label.Label, fn func(*Window)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(op); err != nil {
		return err
	}
	w, err := h.window(l)
	if err != nil {
		return err
	}
	fn(w)
	return nil
}

func (h *Host) ShowWindow(_ context.Context, l label.Label) error {
	return h.update("ShowWindow", l, func(w *Window) { w.Visible = true })
}

func (h *Host) HideWindow(_ context.Context, l label.Label) error {
	return h.update("HideWindow", l, func(w *Window) { w.Visible = false })
}

func (h *Host) FocusWindow(_ context.Context, l label.Label) error {
	return h.update("FocusWindow", l, func(w *Window) { w.Focused = true })
}

func (h *Host) SetAlwaysOnTop(_ context.Context, l label.Label, on bool) error {
	return h.update("SetAlwaysOnTop", l, func(w *Window) { w.AlwaysOnTop = on })
}

func (h *Host) StartDragging(_ context.Context, l label.Label) error {
	return h.update("StartDragging", l, func(w *Window) { w.Dragging = true })
}

func (h *Host) CloseWindow(_ context.Context, l label.Label) error {
	h.mu.Lock()
	if err := h.enter("CloseWindow"); err != nil {
		h.mu.Unlock()
		return err
	}
	_, ok := h.windows[l]
	delete(h.windows, l)
	h.mu.Unlock()
	if ok {
		h.emit(host.WindowEvent{Kind: host.Closed, Label: l})
	}
	return nil
}

func (h *Host) OuterPosition(_ context.Context, l label.Label) (host.Position, error) {
	var p host.Position
	err := h.update("OuterPosition", l, func(w *Window) { p = w.Position })
	return p, err
}

func (h *Host) OuterSize(_ context.Context, l label.Label) (host.Size, error) {
	var s host.Size
	err := h.update("OuterSize", l, func(w *Window) { s = w.Outer })
	return s, err
}

func (h *Host) InnerSize(_ context.Context, l label.Label) (host.Size, error) {
	var s host.Size
	err := h.update("InnerSize", l, func(w *Window) { s = w.Inner })
	return s, err
}

func (h *Host) SetPosition(_ context.Context, l label.Label, p host.Position) error {
	moved := false
	err := h.update("SetPosition", l, func(w *Window) {
		moved = w.Position != p
		w.Position = p
	})
	if err == nil && moved {
		h.emit(host.WindowEvent{Kind: host.Moved, Label: l})
	}
	return err
}

func (h *Host) SetSize(_ context.Context, l label.Label, s host.Size) error {
	resized := false
	err := h.update("SetSize", l, func(w *Window) {
		frame := w.Outer.Height - w.Inner.Height
		resized = w.Inner != s
		w.Inner = s
		w.Outer = host.Size{Width: s.Width, Height: s.Height + frame}
	})
	if err == nil && resized {
		h.emit(host.WindowEvent{Kind: host.Resized, Label: l})
	}
	return err
}

func (h *Host) Monitors(_ context.Context) ([]host.Monitor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("Monitors"); err != nil {
		return nil, err
	}
	return append([]host.Monitor(nil), h.monitors...), nil
}

func (h *Host) PrimaryMonitor(_ context.Context) (host.Monitor, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("PrimaryMonitor"); err != nil {
		return host.Monitor{}, false, err
	}
	if len(h.monitors) == 0 {
		return host.Monitor{}, false, nil
	}
	return h.monitors[h.primary], true, nil
}

func (h *Host) IsFullscreenActive(_ context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("IsFullscreenActive"); err != nil {
		return false, err
	}
	return h.fullscreen, nil
}

func (h *Host) SetTray(_ context.Context, t host.Tray) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("SetTray"); err != nil {
		return err
	}
	h.tray = &t
	return nil
}

func (h *Host) RemoveTray(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter("RemoveTray"); err != nil {
		return err
	}
	h.tray = nil
	return nil
}

var _ host.WindowHost = (*Host)(nil)
