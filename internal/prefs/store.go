package prefs

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/rs/zerolog"
)

// syncTargets are the windows that render overlay preferences.
var syncTargets = []label.Label{label.Main, label.Toolkit}

// Store is one window's copy of the overlay preferences.
//
// Local mutations go through Update, which persists and then signals the
// other windows. Incoming signals go through Resync, which re-reads storage
// and never persists, so a sync can not trigger another sync. Nothing is
// persisted until Load has completed.
type Store struct {
	kv     *kv.KV
	bus    events.Bus
	images *imagestore.Store
	log    *zerolog.Logger

	mu        sync.Mutex
	prefs     Overlay
	ready     bool
	listeners map[int]func(Overlay)
	nextID    int
	unlisten  func()
}

func NewStore(store *kv.KV, bus events.Bus, images *imagestore.Store) *Store {
	return &Store{
		kv:        store,
		bus:       bus,
		images:    images,
		log:       logger.WithWindow("prefs", string(bus.Label())),
		prefs:     DefaultOverlay(),
		listeners: make(map[int]func(Overlay)),
	}
}

// Load reads the stored record, promotes an inline background into the
// image store, and starts listening for sync signals.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	raw, found := s.kv.Raw(ctx, kv.KeyOverlayPrefs)
	next := DefaultOverlay()
	if found {
		next = ParseOverlay(raw)
	}
	normalized := s.images.Normalize(ctx, next.BackgroundImage)
	if !found || normalized != next.BackgroundImage {
		next.BackgroundImage = normalized
		s.kv.Set(ctx, kv.KeyOverlayPrefs, next)
	}
	s.prefs = next
	s.ready = true
	s.mu.Unlock()

	s.unlisten = s.bus.Listen(events.PreferencesChanged, func(events.Event) {
		s.Resync(context.Background())
	})
	s.log.Debug().Bool("stored", found).Msg("Overlay preferences loaded")
	s.notify(next)
}

// Get returns the current preferences.
func (s *Store) Get() Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Update applies fn to a copy of the preferences. If the clamped result
// differs, it becomes current, is persisted and signalled. Reports whether
// anything changed.
func (s *Store) Update(ctx context.Context, fn func(*Overlay)) bool {
	s.mu.Lock()
	next := s.prefs
	fn(&next)
	next = next.Clamped()
	next.BackgroundImage = s.images.Normalize(ctx, next.BackgroundImage)
	if next == s.prefs {
		s.mu.Unlock()
		return false
	}
	s.prefs = next
	ready := s.ready
	if ready {
		s.kv.Set(ctx, kv.KeyOverlayPrefs, next)
	}
	s.mu.Unlock()

	if ready {
		s.broadcast(ctx)
	}
	s.notify(next)
	return true
}

// Resync re-reads the stored record and adopts it if it differs.
func (s *Store) Resync(ctx context.Context) {
	s.mu.Lock()
	var next Overlay
	if !s.kv.Get(ctx, kv.KeyOverlayPrefs, &next) || next == s.prefs {
		s.mu.Unlock()
		return
	}
	s.prefs = next
	s.mu.Unlock()

	s.log.Debug().Msg("Overlay preferences resynced")
	s.notify(next)
}

// Subscribe registers fn to be called with the preferences after every
// change. The returned func unregisters it.
func (s *Store) Subscribe(fn func(Overlay)) func() {
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

func (s *Store) notify(p Overlay) {
	s.mu.Lock()
	fns := make([]func(Overlay), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (s *Store) broadcast(ctx context.Context) {
	self := s.bus.Label()
	for _, target := range syncTargets {
		if target == self {
			continue
		}
		if err := s.bus.Emit(ctx, events.PreferencesChanged, target); err != nil {
			s.log.Debug().Err(err).Str("target", string(target)).Msg("Preferences sync signal not sent")
		}
	}
}

// Close stops listening for sync signals.
func (s *Store) Close() {
	if s.unlisten != nil {
		s.unlisten()
	}
}

// TaskbarStore holds the taskbar strip's toggles. They belong to the
// taskbar window alone and are not signalled.
type TaskbarStore struct {
	kv *kv.KV

	mu    sync.Mutex
	prefs Taskbar
}

func NewTaskbarStore(store *kv.KV) *TaskbarStore {
	return &TaskbarStore{kv: store, prefs: DefaultTaskbar()}
}

// Load reads the stored toggles over the defaults.
func (t *TaskbarStore) Load(ctx context.Context) Taskbar {
	t.mu.Lock()
	defer t.mu.Unlock()
	if raw, ok := t.kv.Raw(ctx, kv.KeyTaskbarPrefs); ok {
		t.prefs = ParseTaskbar(raw)
	}
	return t.prefs
}

func (t *TaskbarStore) Get() Taskbar {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prefs
}

// Update applies fn and persists the result when it changed.
func (t *TaskbarStore) Update(ctx context.Context, fn func(*Taskbar)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.prefs
	fn(&next)
	if next == t.prefs {
		return false
	}
	t.prefs = next
	t.kv.Set(ctx, kv.KeyTaskbarPrefs, next)
	return true
}
