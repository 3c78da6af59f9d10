// Package transfer exports the persisted state of every window as one
// self-contained JSON document and imports such documents back.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/bryanchriswhite/pulsecore/internal/theme"
	"golang.org/x/sync/errgroup"
)

const (
	SchemaTag     = "pulsecore.config"
	SchemaVersion = 1
)

// exportedAtLayout matches ISO-8601 with milliseconds in UTC.
const exportedAtLayout = "2006-01-02T15:04:05.000Z"

// Stores are the stores of the window performing a transfer.
type Stores struct {
	KV       *kv.KV
	Images   *imagestore.Store
	Settings *settings.Store
	Prefs    *prefs.Store
	Themes   *theme.Manager
}

// Document is the exported file. Auxiliary records are copied as stored
// and are null when absent.
type Document struct {
	Schema          string            `json:"schema"`
	SchemaVersion   int               `json:"schemaVersion"`
	ExportedAt      string            `json:"exportedAt"`
	Settings        settings.Settings `json:"settings"`
	RefreshRateMs   int               `json:"refreshRateMs"`
	OverlayPrefs    prefs.Overlay     `json:"overlayPrefs"`
	OverlayThemes   []theme.Theme     `json:"overlayThemes"`
	TaskbarPrefs    json.RawMessage   `json:"taskbarPrefs"`
	OverlayPosition json.RawMessage   `json:"overlayPosition"`
	TaskbarPosition json.RawMessage   `json:"taskbarPosition"`
}

// Export assembles the document. Image tokens are resolved back to inline
// data URLs; a token whose row is gone is kept as is.
func Export(ctx context.Context, s Stores, now time.Time) (Document, error) {
	doc := Document{
		Schema:        SchemaTag,
		SchemaVersion: SchemaVersion,
		ExportedAt:    now.UTC().Format(exportedAtLayout),
		Settings:      s.Settings.Get(),
		RefreshRateMs: s.Settings.RefreshRate(),
		OverlayPrefs:  s.Prefs.Get(),
		OverlayThemes: s.Themes.List(),
	}

	g, gctx := errgroup.WithContext(ctx)
	inline := func(dst *string) {
		if *dst == "" {
			return
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if resolved := s.Images.Resolve(gctx, *dst); resolved != "" {
				*dst = resolved
			}
			return nil
		})
	}
	inline(&doc.OverlayPrefs.BackgroundImage)
	for i := range doc.OverlayThemes {
		inline(&doc.OverlayThemes[i].Image)
	}
	if err := g.Wait(); err != nil {
		return Document{}, fmt.Errorf("resolve images: %w", err)
	}

	doc.TaskbarPrefs = storedJSON(ctx, s.KV, kv.KeyTaskbarPrefs)
	doc.OverlayPosition = storedJSON(ctx, s.KV, kv.KeyOverlayPos)
	doc.TaskbarPosition = storedJSON(ctx, s.KV, kv.KeyTaskbarPos)
	return doc, nil
}

func storedJSON(ctx context.Context, store *kv.KV, key string) json.RawMessage {
	raw, ok := store.Raw(ctx, key)
	if !ok || !json.Valid(raw) {
		return nil
	}
	return raw
}

// Marshal encodes doc with two-space indentation.
func Marshal(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Filename is the suggested file name for doc.
func Filename(doc Document) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(doc.ExportedAt)
	return "pulsecore-config-" + ts + ".json"
}

// WriteFile exports to path atomically.
func WriteFile(ctx context.Context, s Stores, path string) (Document, error) {
	doc, err := Export(ctx, s, time.Now())
	if err != nil {
		return Document{}, err
	}
	data, err := Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode export: %w", err)
	}
	if err := kv.WriteFileAtomic(path, data, 0o644); err != nil {
		return Document{}, fmt.Errorf("write export: %w", err)
	}
	return doc, nil
}
