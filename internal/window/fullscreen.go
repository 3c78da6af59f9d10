package window

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the fullscreen state is checked.
const DefaultPollInterval = 800 * time.Millisecond

// FullscreenMonitor hides a window while another application is
// fullscreen and shows it again afterwards.
type FullscreenMonitor struct {
	host     host.WindowHost
	target   label.Label
	interval time.Duration
	log      *zerolog.Logger

	// checking guards against overlapping host queries.
	checking sync.Mutex

	mu         sync.Mutex
	active     bool
	generation uint64
	fullscreen bool
	suppressed bool
	stopChan   chan struct{}
}

// NewFullscreenMonitor watches on behalf of window target.
func NewFullscreenMonitor(h host.WindowHost, target label.Label, interval time.Duration) *FullscreenMonitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FullscreenMonitor{
		host:     h,
		target:   target,
		interval: interval,
		log:      logger.WithComponent("fullscreen"),
	}
}

// SetActive starts or stops polling. Stopping while the window is hidden
// shows it immediately.
func (f *FullscreenMonitor) SetActive(ctx context.Context, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == on {
		return
	}
	f.active = on
	f.generation++
	if on {
		f.stopChan = make(chan struct{})
		go f.poll(f.stopChan)
		f.log.Debug().Dur("interval", f.interval).Msg("Fullscreen polling started")
		return
	}

	close(f.stopChan)
	f.stopChan = nil
	f.fullscreen = false
	if f.suppressed {
		f.suppressed = false
		if err := f.host.ShowWindow(ctx, f.target); err != nil {
			f.log.Warn().Err(err).Msg("Failed to restore window after fullscreen")
		}
	}
	f.log.Debug().Msg("Fullscreen polling stopped")
}

// Active reports whether polling is on.
func (f *FullscreenMonitor) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Suppressed reports whether the window is currently hidden by the monitor.
func (f *FullscreenMonitor) Suppressed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed
}

func (f *FullscreenMonitor) poll(stop chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.Check(context.Background())
		}
	}
}

// Check runs one poll. It returns at once if a previous check is still
// waiting on the host. A result that arrives after polling was stopped or
// restarted is discarded.
func (f *FullscreenMonitor) Check(ctx context.Context) {
	if !f.checking.TryLock() {
		return
	}
	defer f.checking.Unlock()

	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return
	}
	gen := f.generation
	f.mu.Unlock()

	fs, err := f.host.IsFullscreenActive(ctx)
	if err != nil {
		f.log.Debug().Err(err).Msg("Fullscreen query failed")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active || f.generation != gen {
		return
	}
	was := f.fullscreen
	f.fullscreen = fs
	switch {
	case fs && !was:
		f.suppressed = true
		if err := f.host.HideWindow(ctx, f.target); err != nil {
			f.log.Warn().Err(err).Msg("Failed to hide window for fullscreen")
		}
	case !fs && was:
		if !f.suppressed {
			return
		}
		f.suppressed = false
		if err := f.host.ShowWindow(ctx, f.target); err != nil {
			f.log.Warn().Err(err).Msg("Failed to show window after fullscreen")
		}
	}
}
