package window

import (
	"context"
	"math"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/rs/zerolog"
)

// Overlay tracks the main overlay window: its saved position and its
// always-on-top flag.
type Overlay struct {
	host     host.WindowHost
	settings *settings.Store
	log      *zerolog.Logger
	memory   positionMemory
	moves    frameGate

	mu       sync.Mutex
	lastSize host.Size
	onTop    *bool

	unwatch func()
	unsub   func()
}

// NewOverlay creates the controller; frames as for NewTaskbar.
func NewOverlay(h host.WindowHost, store *kv.KV, st *settings.Store, frames Scheduler) *Overlay {
	if frames == nil {
		frames = Timer(FrameInterval)
	}
	return &Overlay{
		host:     h,
		settings: st,
		log:      logger.WithWindow("window", string(label.Main)),
		memory:   positionMemory{kv: store, key: kv.KeyOverlayPos},
		moves:    frameGate{sched: frames},
	}
}

// Start restores the saved position and begins tracking.
func (o *Overlay) Start(ctx context.Context) {
	cur := o.settings.Get()
	o.memory.init(ctx, cur.RememberOverlayPosition)
	if saved, ok := o.memory.load(ctx); ok {
		o.memory.save(ctx, saved)
		if err := o.host.SetPosition(ctx, label.Main, saved); err != nil {
			o.log.Warn().Err(err).Msg("Failed to restore overlay position")
		}
	}
	o.applyOnTop(ctx, cur.OverlayAlwaysOnTop)
	o.unwatch = o.host.Watch(label.Main, o.onWindowEvent)
	o.unsub = o.settings.Subscribe(o.onSettings)
}

// ApplySize resizes the window to fit content of the given size.
func (o *Overlay) ApplySize(ctx context.Context, width, height float64) error {
	next := host.Size{
		Width:  max(1, int(math.Ceil(width))),
		Height: max(1, int(math.Ceil(height))),
	}
	o.mu.Lock()
	if next == o.lastSize {
		o.mu.Unlock()
		return nil
	}
	o.lastSize = next
	o.mu.Unlock()
	return o.host.SetSize(ctx, label.Main, next)
}

func (o *Overlay) onWindowEvent(ev host.WindowEvent) {
	if ev.Kind != host.Moved {
		return
	}
	o.moves.request(func() {
		ctx := context.Background()
		pos, err := o.host.OuterPosition(ctx, label.Main)
		if err != nil {
			o.log.Debug().Err(err).Msg("Could not read overlay position")
			return
		}
		o.memory.save(ctx, pos)
	})
}

func (o *Overlay) onSettings(s settings.Settings) {
	ctx := context.Background()
	o.applyOnTop(ctx, s.OverlayAlwaysOnTop)
	if !o.memory.setEnabled(ctx, s.RememberOverlayPosition) || !s.RememberOverlayPosition {
		return
	}
	pos, err := o.host.OuterPosition(ctx, label.Main)
	if err != nil {
		o.log.Debug().Err(err).Msg("Could not snapshot overlay position")
		return
	}
	o.memory.save(ctx, pos)
}

func (o *Overlay) applyOnTop(ctx context.Context, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.onTop != nil && *o.onTop == on {
		return
	}
	if err := o.host.SetAlwaysOnTop(ctx, label.Main, on); err != nil {
		o.log.Warn().Err(err).Bool("on", on).Msg("Failed to set overlay always-on-top")
		return
	}
	o.onTop = &on
}

// StartDrag begins a native drag if p allows it.
func (o *Overlay) StartDrag(ctx context.Context, p Pointer) bool {
	if !DragAllowed(p) {
		return false
	}
	if err := o.host.StartDragging(ctx, label.Main); err != nil {
		o.log.Debug().Err(err).Msg("Host refused drag")
		return false
	}
	return true
}

// Close stops tracking.
func (o *Overlay) Close() {
	o.moves.stop()
	if o.unwatch != nil {
		o.unwatch()
	}
	if o.unsub != nil {
		o.unsub()
	}
}
