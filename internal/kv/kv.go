// Package kv provides the durable string-keyed JSON storage shared by every
// window. A primary backend (SQLite) is tried first and a secondary backend
// (plain files) catches whatever the primary cannot serve.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/pulsecore/internal/logger"
)

// Persisted keys.
const (
	KeyOverlayPrefs  = "pulsecore.overlay_prefs"
	KeyOverlayThemes = "pulsecore.overlay_themes"
	KeySettings      = "pulsecore.settings"
	KeyHardwareInfo  = "pulsecore.hardware_info"
	KeyOverlayPos    = "pulsecore.overlay_pos"
	KeyTaskbarPos    = "pulsecore.taskbar_pos"
	KeyTaskbarPrefs  = "pulsecore.taskbar_prefs"
	KeyRefreshRate   = "pulsecore.refresh_rate"

	// ImagePrefix namespaces image rows; the token id is appended.
	ImagePrefix = "pulsecore.image."
)

// ErrNotFound is returned by backends when a key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a raw key/value backend. Values are JSON text.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// KV layers JSON encoding and graceful fallback over one or two backends.
// None of its methods fail observably: persistence errors are logged and
// swallowed so callers keep their in-memory state.
type KV struct {
	primary  Store
	fallback Store
}

// New wraps primary, using fallback (may be nil) when primary errors.
func New(primary, fallback Store) *KV {
	return &KV{primary: primary, fallback: fallback}
}

// Raw returns the stored JSON text for key.
func (k *KV) Raw(ctx context.Context, key string) ([]byte, bool) {
	raw, err := k.primary.Get(ctx, key)
	if err == nil {
		return []byte(raw), raw != ""
	}
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	logger.WithComponent("kv").Debug().Err(err).Str("key", key).Msg("Primary get failed, trying fallback")
	if k.fallback == nil {
		return nil, false
	}
	raw, err = k.fallback.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	return []byte(raw), true
}

// Get decodes the value at key into dst. It reports false when the key is
// absent or the stored text is not valid JSON for dst.
func (k *KV) Get(ctx context.Context, key string, dst any) bool {
	raw, ok := k.Raw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.WithComponent("kv").Warn().Err(err).Str("key", key).Msg("Stored value is not valid JSON")
		return false
	}
	return true
}

// Set encodes v and writes it under key.
func (k *KV) Set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.WithComponent("kv").Error().Err(err).Str("key", key).Msg("Failed to encode value")
		return
	}
	err = k.primary.Set(ctx, key, string(data))
	if err == nil {
		return
	}
	logger.WithComponent("kv").Warn().Err(err).Str("key", key).Msg("Primary set failed, trying fallback")
	if k.fallback == nil {
		return
	}
	if err := k.fallback.Set(ctx, key, string(data)); err != nil {
		logger.WithComponent("kv").Error().Err(err).Str("key", key).Msg("Failed to persist value")
	}
}

// Delete removes key.
func (k *KV) Delete(ctx context.Context, key string) {
	err := k.primary.Delete(ctx, key)
	if err == nil {
		return
	}
	logger.WithComponent("kv").Warn().Err(err).Str("key", key).Msg("Primary delete failed, trying fallback")
	if k.fallback == nil {
		return
	}
	if err := k.fallback.Delete(ctx, key); err != nil {
		logger.WithComponent("kv").Error().Err(err).Str("key", key).Msg("Failed to delete value")
	}
}

// Reset wipes every backend.
func (k *KV) Reset(ctx context.Context) error {
	if err := k.primary.Clear(ctx); err != nil {
		return fmt.Errorf("clear primary store: %w", err)
	}
	if k.fallback != nil {
		if err := k.fallback.Clear(ctx); err != nil {
			return fmt.Errorf("clear fallback store: %w", err)
		}
	}
	return nil
}
