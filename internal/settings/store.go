package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/hotkey"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/rs/zerolog"
)

// ErrInvalidHotkey is returned by SetFactoryResetHotkey.
var ErrInvalidHotkey = errors.New("settings: invalid hotkey")

// Host mirrors settings that the native side enforces. Only the main
// window calls it.
type Host interface {
	SetAutoStart(ctx context.Context, enabled bool) error
	SetMemoryTrim(ctx context.Context, policy TrimPolicy) error
	SetRefreshRate(ctx context.Context, ms int) error
}

// hostState is what was last pushed to the host successfully.
type hostState struct {
	valid     bool
	autoStart bool
	trim      TrimPolicy
}

// Store is one window's copy of the settings.
//
// Every setter is a no-op when the value is unchanged. Otherwise the new
// record is persisted, then the other windows are signalled. In the main
// window, host-mirrored fields are then pushed to the host; a failed push
// rolls the field back to the last pushed value and signals again. Other
// windows never call the host: they ask the main window to re-evaluate.
type Store struct {
	kv   *kv.KV
	bus  events.Bus
	host Host
	log  *zerolog.Logger

	mu          sync.Mutex
	settings    Settings
	bootstrap   []byte
	refreshRate int
	listeners   map[int]func(Settings)
	nextID      int
	unlisten    func()

	// hostMu serializes host pushes.
	hostMu sync.Mutex
	pushed hostState
}

// NewStore creates a store for the window on bus. host may be nil; it is
// ignored outside the main window.
func NewStore(store *kv.KV, bus events.Bus, host Host) *Store {
	if !bus.Label().IsMain() {
		host = nil
	}
	return &Store{
		kv:          store,
		bus:         bus,
		host:        host,
		log:         logger.WithWindow("settings", string(bus.Label())),
		settings:    Default(),
		refreshRate: DefaultRefreshRateMs,
		listeners:   make(map[int]func(Settings)),
	}
}

// Load resolves the settings over bootstrap (the host's initial payload,
// may be nil) and starts listening for sync signals.
func (s *Store) Load(ctx context.Context, bootstrap []byte) {
	s.mu.Lock()
	s.bootstrap = bootstrap
	s.settings = s.resolveLocked(ctx)
	var rate float64
	hasRate := s.kv.Get(ctx, kv.KeyRefreshRate, &rate)
	if hasRate {
		s.refreshRate = ClampRefreshRate(rate)
	}
	cur := s.settings.Clone()
	refresh := s.refreshRate
	s.mu.Unlock()

	s.unlisten = s.bus.Listen(events.SettingsChanged, func(events.Event) {
		s.Resync(context.Background())
	})
	s.log.Debug().Str("language", string(cur.Language)).Msg("Settings loaded")

	if s.host != nil {
		s.reconcile(ctx)
		if hasRate {
			s.pushRefreshRate(ctx, refresh)
		}
	}
	s.notify(cur)
}

func (s *Store) resolveLocked(ctx context.Context) Settings {
	stored, _ := s.kv.Raw(ctx, kv.KeySettings)
	return Resolve(s.bootstrap, stored)
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// Label is the window this store belongs to.
func (s *Store) Label() label.Label { return s.bus.Label() }

// Update applies fn to a copy of the settings. If the normalized result
// differs it is persisted and signalled, and host-mirrored fields are
// reconciled. Reports whether anything changed.
func (s *Store) Update(ctx context.Context, fn func(*Settings)) bool {
	s.mu.Lock()
	prev := s.settings
	next := prev.Clone()
	fn(&next)
	next = next.Normalized()
	if next.Equal(prev) {
		s.mu.Unlock()
		return false
	}
	s.settings = next
	s.kv.Set(ctx, kv.KeySettings, next)
	s.mu.Unlock()

	s.broadcast(ctx)
	s.notify(next.Clone())

	if s.host != nil {
		s.reconcile(ctx)
	} else if !s.Label().IsMain() && ownsSideEffect(prev, next) {
		if err := s.bus.Emit(ctx, events.RequestTrayOwnership, label.Main); err != nil {
			s.log.Debug().Err(err).Msg("Main window not reachable")
		}
	}
	return true
}

// ownsSideEffect reports whether a change touches something only the main
// window acts on.
func ownsSideEffect(prev, next Settings) bool {
	return prev.CloseToTray != next.CloseToTray ||
		prev.AutoStartEnabled != next.AutoStartEnabled ||
		prev.TrimPolicy() != next.TrimPolicy() ||
		prev.TaskbarMonitorEnabled != next.TaskbarMonitorEnabled ||
		prev.TaskbarAlwaysOnTop != next.TaskbarAlwaysOnTop ||
		prev.TaskbarAutoHideOnFullscreen != next.TaskbarAutoHideOnFullscreen ||
		prev.TaskbarPositionLocked != next.TaskbarPositionLocked
}

// Resync re-resolves the settings from storage. It never persists or
// signals. In the main window host-mirrored fields are reconciled.
func (s *Store) Resync(ctx context.Context) {
	s.mu.Lock()
	next := s.resolveLocked(ctx)
	var rate float64
	rateChanged := false
	if s.kv.Get(ctx, kv.KeyRefreshRate, &rate) && ClampRefreshRate(rate) != s.refreshRate {
		s.refreshRate = ClampRefreshRate(rate)
		rateChanged = true
	}
	refresh := s.refreshRate
	changed := !next.Equal(s.settings)
	if changed {
		s.settings = next
	}
	s.mu.Unlock()

	if s.host != nil {
		s.reconcile(ctx)
		if rateChanged {
			s.pushRefreshRate(ctx, refresh)
		}
	}
	if changed {
		s.log.Debug().Msg("Settings resynced")
		s.notify(next.Clone())
	}
}

// reconcile pushes host-mirrored fields that differ from what the host was
// last given. A failed push rolls the field back.
func (s *Store) reconcile(ctx context.Context) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	cur := s.Get()
	if !s.pushed.valid || cur.AutoStartEnabled != s.pushed.autoStart {
		if err := s.host.SetAutoStart(ctx, cur.AutoStartEnabled); err != nil {
			s.log.Warn().Err(err).Bool("enabled", cur.AutoStartEnabled).Msg("Host rejected autostart change")
			if s.pushed.valid {
				prev := s.pushed.autoStart
				s.rollback(ctx, func(st *Settings) { st.AutoStartEnabled = prev })
			}
		} else {
			s.pushed.autoStart = cur.AutoStartEnabled
		}
	}

	cur = s.Get()
	policy := cur.TrimPolicy()
	if !s.pushed.valid || policy != s.pushed.trim {
		if err := s.host.SetMemoryTrim(ctx, policy); err != nil {
			s.log.Warn().Err(err).Interface("policy", policy).Msg("Host rejected memory trim policy")
			if s.pushed.valid {
				prev := s.pushed.trim
				s.rollback(ctx, func(st *Settings) {
					st.MemoryTrimEnabled = prev.App
					st.MemoryTrimSystemEnabled = prev.System
					st.MemoryTrimIntervalMinutes = prev.IntervalMinutes
					st.MemoryTrimTargets = st.MemoryTrimTargets[:0]
					if prev.App {
						st.MemoryTrimTargets = append(st.MemoryTrimTargets, TargetApp)
					}
					if prev.System {
						st.MemoryTrimTargets = append(st.MemoryTrimTargets, TargetSystem)
					}
				})
			}
		} else {
			s.pushed.trim = policy
		}
	}
	s.pushed.valid = true
}

// rollback restores fields after a host failure and signals the result. It
// does not reconcile again.
func (s *Store) rollback(ctx context.Context, fn func(*Settings)) {
	s.mu.Lock()
	next := s.settings.Clone()
	fn(&next)
	next = next.Normalized()
	if next.Equal(s.settings) {
		s.mu.Unlock()
		return
	}
	s.settings = next
	s.kv.Set(ctx, kv.KeySettings, next)
	s.mu.Unlock()

	s.log.Info().Msg("Settings rolled back")
	s.broadcast(ctx)
	s.notify(next.Clone())
}

func (s *Store) broadcast(ctx context.Context) {
	for _, target := range s.bus.Label().Others() {
		if err := s.bus.Emit(ctx, events.SettingsChanged, target); err != nil {
			s.log.Debug().Err(err).Str("target", string(target)).Msg("Settings sync signal not sent")
		}
	}
}

// RefreshRate returns the telemetry refresh interval in milliseconds.
func (s *Store) RefreshRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshRate
}

// SetRefreshRate clamps, stores and (in the main window) pushes the
// refresh interval. It returns the value applied.
func (s *Store) SetRefreshRate(ctx context.Context, ms float64) int {
	v := ClampRefreshRate(ms)
	s.mu.Lock()
	s.refreshRate = v
	s.kv.Set(ctx, kv.KeyRefreshRate, v)
	s.mu.Unlock()

	if s.host != nil {
		s.pushRefreshRate(ctx, v)
	} else {
		s.broadcast(ctx)
	}
	return v
}

func (s *Store) pushRefreshRate(ctx context.Context, ms int) {
	if err := s.host.SetRefreshRate(ctx, ms); err != nil {
		s.log.Warn().Err(err).Int("ms", ms).Msg("Host rejected refresh rate")
	}
}

// Subscribe registers fn to be called after every change. fn must not
// call setters synchronously.
func (s *Store) Subscribe(fn func(Settings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(st Settings) {
	s.mu.Lock()
	fns := make([]func(Settings), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Close stops listening for sync signals.
func (s *Store) Close() {
	if s.unlisten != nil {
		s.unlisten()
	}
}

func (s *Store) SetLanguage(ctx context.Context, l Language) bool {
	if _, ok := ParseLanguage(string(l)); !ok {
		return false
	}
	return s.Update(ctx, func(st *Settings) { st.Language = l })
}

func (s *Store) SetCloseToTray(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.CloseToTray = v })
}

func (s *Store) SetAutoStartEnabled(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.AutoStartEnabled = v })
}

// SetMemoryTrimEnabled toggles app trimming. Enabling selects the app
// target; disabling drops it.
func (s *Store) SetMemoryTrimEnabled(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) {
		st.MemoryTrimEnabled = v
		if v {
			st.MemoryTrimTargets = append(st.MemoryTrimTargets, TargetApp)
		}
	})
}

// SetMemoryTrimSystemEnabled toggles system trimming, selecting or
// dropping the system target with it.
func (s *Store) SetMemoryTrimSystemEnabled(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) {
		st.MemoryTrimSystemEnabled = v
		if v {
			st.MemoryTrimTargets = append(st.MemoryTrimTargets, TargetSystem)
		}
	})
}

// SetMemoryTrimTargets selects targets. Targets whose flag is off are
// dropped.
func (s *Store) SetMemoryTrimTargets(ctx context.Context, targets []TrimTarget) bool {
	return s.Update(ctx, func(st *Settings) { st.MemoryTrimTargets = append([]TrimTarget(nil), targets...) })
}

func (s *Store) SetMemoryTrimIntervalMinutes(ctx context.Context, minutes float64) bool {
	return s.Update(ctx, func(st *Settings) {
		st.MemoryTrimIntervalMinutes = ClampTrimInterval(minutes)
	})
}

func (s *Store) SetRememberOverlayPosition(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.RememberOverlayPosition = v })
}

func (s *Store) SetOverlayAlwaysOnTop(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.OverlayAlwaysOnTop = v })
}

func (s *Store) SetTaskbarMonitorEnabled(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.TaskbarMonitorEnabled = v })
}

func (s *Store) SetTaskbarAlwaysOnTop(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.TaskbarAlwaysOnTop = v })
}

func (s *Store) SetTaskbarAutoHideOnFullscreen(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.TaskbarAutoHideOnFullscreen = v })
}

func (s *Store) SetTaskbarPositionLocked(ctx context.Context, v bool) bool {
	return s.Update(ctx, func(st *Settings) { st.TaskbarPositionLocked = v })
}

// SetFactoryResetHotkey stores a normalized accelerator, or clears it when
// v is nil or blank.
func (s *Store) SetFactoryResetHotkey(ctx context.Context, v *string) (bool, error) {
	var next *string
	if v != nil && *v != "" {
		n, err := hotkey.Normalize(*v)
		if err != nil {
			return false, errors.Join(ErrInvalidHotkey, err)
		}
		next = &n
	}
	return s.Update(ctx, func(st *Settings) { st.FactoryResetHotkey = next }), nil
}
