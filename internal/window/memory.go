package window

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
)

// positionMemory persists one window position while remembering is
// enabled. Writes are skipped when the position matches the last write.
type positionMemory struct {
	kv  *kv.KV
	key string

	mu      sync.Mutex
	enabled bool
	last    *host.Position
}

func (m *positionMemory) isEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// init sets the starting flag. A record left over from when remembering
// was on is dropped.
func (m *positionMemory) init(ctx context.Context, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
	m.last = nil
	if !on {
		m.kv.Delete(ctx, m.key)
	}
}

// setEnabled records the flag and reports whether it changed. Turning it
// off deletes the saved record.
func (m *positionMemory) setEnabled(ctx context.Context, on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled == on {
		return false
	}
	m.enabled = on
	m.last = nil
	if !on {
		m.kv.Delete(ctx, m.key)
	}
	return true
}

func (m *positionMemory) load(ctx context.Context) (host.Position, bool) {
	if !m.isEnabled() {
		return host.Position{}, false
	}
	return LoadPosition(ctx, m.kv, m.key)
}

// save writes p unless remembering is off or p was the last write.
func (m *positionMemory) save(ctx context.Context, p host.Position) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	if m.last != nil && *m.last == p {
		return false
	}
	m.last = &p
	m.kv.Set(ctx, m.key, p)
	return true
}
