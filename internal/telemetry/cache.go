package telemetry

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
)

// HistoryLimit is how many snapshots a Feed keeps.
const HistoryLimit = 120

// LoadBootstrap fetches the initial state from src. Hardware info from a
// successful fetch is cached; when the fetch fails the cached copy is used.
func LoadBootstrap(ctx context.Context, src Source, store *kv.KV) Bootstrap {
	log := logger.WithComponent("telemetry")
	boot, err := src.Initial(ctx)
	if err == nil {
		store.Set(ctx, kv.KeyHardwareInfo, boot.HardwareInfo)
		return boot
	}

	log.Warn().Err(err).Msg("Initial telemetry unavailable, using cached hardware info")
	boot = Bootstrap{LatestSnapshot: EmptySnapshot()}
	store.Get(ctx, kv.KeyHardwareInfo, &boot.HardwareInfo)
	return boot
}

// Feed keeps the latest snapshot and a bounded history.
type Feed struct {
	mu       sync.Mutex
	latest   Snapshot
	history  []Snapshot
	hardware HardwareInfo
	unsub    func()
}

// NewFeed starts from boot and follows src.
func NewFeed(boot Bootstrap, src Source) *Feed {
	f := &Feed{hardware: boot.HardwareInfo}
	f.Push(boot.LatestSnapshot)
	f.unsub = src.Subscribe(f.Push)
	return f
}

// Push records snap.
func (f *Feed) Push(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = snap
	f.history = append(f.history, snap)
	if over := len(f.history) - HistoryLimit; over > 0 {
		f.history = append(f.history[:0], f.history[over:]...)
	}
}

func (f *Feed) Latest() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

// History returns the retained snapshots, oldest first.
func (f *Feed) History() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Snapshot(nil), f.history...)
}

func (f *Feed) Hardware() HardwareInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hardware
}

// Close stops following the source.
func (f *Feed) Close() {
	if f.unsub != nil {
		f.unsub()
	}
}
