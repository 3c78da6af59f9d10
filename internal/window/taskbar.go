package window

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/rs/zerolog"
)

// Taskbar keeps the taskbar window reachable and remembers where the user
// put it. It runs inside the taskbar window.
//
// Horizontal drift is tolerated; the window is only ever pulled back
// vertically, after a resize and once per frame while it moves.
type Taskbar struct {
	host     host.WindowHost
	settings *settings.Store
	log      *zerolog.Logger
	memory   positionMemory
	moves    frameGate

	mu       sync.Mutex
	lastSize host.Size
	locked   bool

	// correcting is set while the window moves itself, so its own move
	// event does not schedule another correction.
	correcting atomic.Bool

	unwatch func()
	unsub   func()
}

// NewTaskbar creates the controller. frames decides when coalesced move
// handling runs; nil means one display frame.
func NewTaskbar(h host.WindowHost, store *kv.KV, st *settings.Store, frames Scheduler) *Taskbar {
	if frames == nil {
		frames = Timer(FrameInterval)
	}
	return &Taskbar{
		host:     h,
		settings: st,
		log:      logger.WithWindow("window", string(label.Taskbar)),
		memory:   positionMemory{kv: store, key: kv.KeyTaskbarPos},
		moves:    frameGate{sched: frames},
	}
}

// Start restores the saved position and begins tracking moves and
// settings.
func (t *Taskbar) Start(ctx context.Context) {
	cur := t.settings.Get()
	t.mu.Lock()
	t.locked = cur.TaskbarPositionLocked
	t.mu.Unlock()
	t.memory.init(ctx, cur.RememberOverlayPosition)

	if err := t.Restore(ctx); err != nil {
		t.log.Warn().Err(err).Msg("Failed to restore taskbar position")
	}
	t.unwatch = t.host.Watch(label.Taskbar, t.onWindowEvent)
	t.unsub = t.settings.Subscribe(t.onSettings)
}

// Restore moves the window to its saved position, pulled onto whichever
// monitor now suits it best.
func (t *Taskbar) Restore(ctx context.Context) error {
	saved, ok := t.memory.load(ctx)
	if !ok {
		return nil
	}
	safe, err := t.sanitize(ctx, saved)
	if err != nil {
		return err
	}
	t.memory.save(ctx, safe)
	return t.host.SetPosition(ctx, label.Taskbar, safe)
}

func (t *Taskbar) sanitize(ctx context.Context, saved host.Position) (host.Position, error) {
	monitors, err := t.host.Monitors(ctx)
	if err != nil {
		return saved, err
	}
	if len(monitors) == 0 {
		return saved, nil
	}
	outer, err := t.host.OuterSize(ctx, label.Taskbar)
	if err != nil {
		return saved, err
	}
	inner, err := t.host.InnerSize(ctx, label.Taskbar)
	if err != nil {
		return saved, err
	}
	m := PickMonitor(saved, outer, MonitorRects(monitors))
	return ClampPosition(saved, outer, m, VerticalFrameInsets(outer.Height, inner.Height)), nil
}

// ApplySize resizes the window to fit content of the given size, then
// pulls it back inside its monitor vertically.
func (t *Taskbar) ApplySize(ctx context.Context, width, height float64) error {
	next := host.Size{
		Width:  max(1, int(math.Ceil(width))),
		Height: max(1, int(math.Ceil(height))),
	}
	t.mu.Lock()
	if next == t.lastSize {
		t.mu.Unlock()
		return nil
	}
	t.lastSize = next
	t.mu.Unlock()

	if err := t.host.SetSize(ctx, label.Taskbar, next); err != nil {
		return err
	}
	p, err := t.clampVertical(ctx)
	if err != nil {
		return err
	}
	t.memory.save(ctx, p)
	return nil
}

// clampVertical re-clamps the window's y against the monitor currently
// hosting it and returns the resulting position.
func (t *Taskbar) clampVertical(ctx context.Context) (host.Position, error) {
	pos, err := t.host.OuterPosition(ctx, label.Taskbar)
	if err != nil {
		return pos, err
	}
	outer, err := t.host.OuterSize(ctx, label.Taskbar)
	if err != nil {
		return pos, err
	}
	inner, err := t.host.InnerSize(ctx, label.Taskbar)
	if err != nil {
		return pos, err
	}
	monitors, err := t.host.Monitors(ctx)
	if err != nil {
		return pos, err
	}
	if len(monitors) == 0 {
		return pos, nil
	}

	m := PickMonitor(pos, outer, MonitorRects(monitors))
	y := ClampY(pos.Y, outer.Height, m, VerticalFrameInsets(outer.Height, inner.Height))
	if y == pos.Y {
		return pos, nil
	}

	next := host.Position{X: pos.X, Y: y}
	t.correcting.Store(true)
	defer t.correcting.Store(false)
	if err := t.host.SetPosition(ctx, label.Taskbar, next); err != nil {
		return pos, err
	}
	t.log.Debug().Int("from", pos.Y).Int("to", y).Msg("Pulled taskbar back on screen")
	return next, nil
}

func (t *Taskbar) onWindowEvent(ev host.WindowEvent) {
	if ev.Kind != host.Moved || t.correcting.Load() {
		return
	}
	t.moves.request(func() {
		ctx := context.Background()
		p, err := t.clampVertical(ctx)
		if err != nil {
			t.log.Debug().Err(err).Msg("Bounds check after move failed")
			return
		}
		t.memory.save(ctx, p)
	})
}

func (t *Taskbar) onSettings(s settings.Settings) {
	t.mu.Lock()
	t.locked = s.TaskbarPositionLocked
	t.mu.Unlock()

	ctx := context.Background()
	if !t.memory.setEnabled(ctx, s.RememberOverlayPosition) || !s.RememberOverlayPosition {
		return
	}
	// Turned on mid-session: the live position becomes the baseline.
	pos, err := t.host.OuterPosition(ctx, label.Taskbar)
	if err != nil {
		t.log.Debug().Err(err).Msg("Could not snapshot taskbar position")
		return
	}
	t.memory.save(ctx, pos)
}

// StartDrag begins a native drag if p allows it and the position is not
// locked. It reports whether a drag started.
func (t *Taskbar) StartDrag(ctx context.Context, p Pointer) bool {
	t.mu.Lock()
	locked := t.locked
	t.mu.Unlock()
	if locked || !DragAllowed(p) {
		return false
	}
	if err := t.host.StartDragging(ctx, label.Taskbar); err != nil {
		t.log.Debug().Err(err).Msg("Host refused drag")
		return false
	}
	return true
}

// Close saves the final position and stops tracking.
func (t *Taskbar) Close(ctx context.Context) {
	if t.memory.isEnabled() {
		if pos, err := t.host.OuterPosition(ctx, label.Taskbar); err == nil {
			t.memory.save(ctx, pos)
		}
	}
	t.moves.stop()
	if t.unwatch != nil {
		t.unwatch()
	}
	if t.unsub != nil {
		t.unsub()
	}
}
