package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/bryanchriswhite/pulsecore/internal/theme"
	"github.com/bryanchriswhite/pulsecore/internal/window"
)

// ErrNothingStaged is returned by Confirm without a staged document.
var ErrNothingStaged = errors.New("transfer: no import staged")

var invalidMessages = map[settings.Language]string{
	settings.ZhCN: "配置文件无效，无法导入。",
	settings.EnUS: "The configuration file is invalid and cannot be imported.",
}

// ValidationError reports a file that cannot be staged. Its message is in
// the language the user has selected.
type ValidationError struct {
	Language settings.Language
	Err      error
}

func (e *ValidationError) Error() string {
	if msg, ok := invalidMessages[e.Language]; ok {
		return msg
	}
	return invalidMessages[settings.ZhCN]
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Report describes an applied import.
type Report struct {
	// Skipped lists fields that were present but unusable.
	Skipped []schema.Diagnostic
	// RestartedTaskbar is set when the taskbar window was cycled.
	RestartedTaskbar bool
}

// Importer applies a document in two steps: Stage parses it, Confirm
// applies it. Nothing changes until Confirm.
type Importer struct {
	stores Stores

	mu      sync.Mutex
	pending *schema.Object
}

func NewImporter(s Stores) *Importer {
	return &Importer{stores: s}
}

// Stage parses data. Anything that is not a JSON object is rejected with a
// *ValidationError and clears a previously staged document.
func (im *Importer) Stage(data []byte) error {
	obj, err := schema.Parse(data)
	im.mu.Lock()
	defer im.mu.Unlock()
	if err != nil {
		im.pending = nil
		return &ValidationError{Language: im.stores.Settings.Get().Language, Err: err}
	}
	im.pending = &obj
	return nil
}

// Pending reports whether a document awaits confirmation.
func (im *Importer) Pending() bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.pending != nil
}

// Cancel drops the staged document.
func (im *Importer) Cancel() {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.pending = nil
}

// Confirm applies the staged document. Every field is applied on its own;
// fields that are missing are left alone and fields of the wrong type are
// skipped and reported.
func (im *Importer) Confirm(ctx context.Context) (Report, error) {
	im.mu.Lock()
	doc := im.pending
	im.pending = nil
	im.mu.Unlock()
	if doc == nil {
		return Report{}, ErrNothingStaged
	}

	log := logger.WithComponent("transfer")
	s := im.stores
	if sub, ok := doc.Object("settings"); ok {
		ApplySettings(ctx, s.Settings, sub)
	}
	if sub, ok := doc.Object("overlayPrefs"); ok {
		im.applyOverlay(ctx, sub)
	}
	if items, ok := doc.Array("overlayThemes"); ok {
		s.Themes.Replace(ctx, theme.DecodeThemes(*doc, "overlayThemes", items))
	} else if items, ok := doc.Array("themes"); ok {
		s.Themes.Replace(ctx, theme.DecodeThemes(*doc, "themes", items))
	}

	var rate float64
	if doc.Number("refreshRateMs", &rate) {
		s.Settings.SetRefreshRate(ctx, rate)
	}
	if sub, ok := doc.Object("taskbarPrefs"); ok {
		s.KV.Set(ctx, kv.KeyTaskbarPrefs, prefs.MergeTaskbar(prefs.DefaultTaskbar(), sub))
	}
	for _, p := range []struct{ field, key string }{
		{"overlayPosition", kv.KeyOverlayPos},
		{"taskbarPosition", kv.KeyTaskbarPos},
	} {
		sub, ok := doc.Object(p.field)
		if !ok {
			continue
		}
		if pos, ok := window.ParsePosition(sub); ok {
			s.KV.Set(ctx, p.key, pos)
		}
	}

	var report Report
	if s.Settings.Get().TaskbarMonitorEnabled {
		s.Settings.SetTaskbarMonitorEnabled(ctx, false)
		s.Settings.SetTaskbarMonitorEnabled(ctx, true)
		report.RestartedTaskbar = true
	}
	report.Skipped = doc.Diagnostics()
	log.Info().Int("skipped", len(report.Skipped)).Bool("taskbar_restarted", report.RestartedTaskbar).Msg("Configuration imported")
	return report, nil
}

// ApplySettings routes each recognized field of obj through its settings
// setter. Unknown languages and wrong-typed fields are ignored.
func ApplySettings(ctx context.Context, st *settings.Store, obj schema.Object) {

	var lang string
	if obj.String("language", &lang) {
		switch l := settings.Language(lang); l {
		case settings.ZhCN, settings.EnUS:
			st.SetLanguage(ctx, l)
		}
	}

	toggles := []struct {
		key string
		set func(context.Context, bool) bool
	}{
		{"closeToTray", st.SetCloseToTray},
		{"rememberOverlayPosition", st.SetRememberOverlayPosition},
		{"overlayAlwaysOnTop", st.SetOverlayAlwaysOnTop},
		{"taskbarAlwaysOnTop", st.SetTaskbarAlwaysOnTop},
		{"taskbarAutoHideOnFullscreen", st.SetTaskbarAutoHideOnFullscreen},
		{"taskbarPositionLocked", st.SetTaskbarPositionLocked},
		{"taskbarMonitorEnabled", st.SetTaskbarMonitorEnabled},
		{"autoStartEnabled", st.SetAutoStartEnabled},
		{"memoryTrimEnabled", st.SetMemoryTrimEnabled},
		{"memoryTrimSystemEnabled", st.SetMemoryTrimSystemEnabled},
	}
	for _, tg := range toggles {
		var v bool
		if obj.Bool(tg.key, &v) {
			tg.set(ctx, v)
		}
	}

	if items, ok := obj.Array("memoryTrimTargets"); ok {
		targets := make([]settings.TrimTarget, 0, len(items))
		for _, raw := range items {
			var t settings.TrimTarget
			if json.Unmarshal(raw, &t) == nil {
				targets = append(targets, t)
			}
		}
		st.SetMemoryTrimTargets(ctx, targets)
	}

	var n float64
	if obj.Number("memoryTrimIntervalMinutes", &n) {
		st.SetMemoryTrimIntervalMinutes(ctx, n)
	}

	var hk string
	if obj.NullableString("factoryResetHotkey", &hk) {
		var v *string
		if hk != "" {
			v = &hk
		}
		if _, err := st.SetFactoryResetHotkey(ctx, v); err != nil {
			logger.WithComponent("transfer").Warn().Err(err).Str("hotkey", hk).Msg("Skipping imported hotkey")
		}
	}
}

func (im *Importer) applyOverlay(ctx context.Context, obj schema.Object) {
	s := im.stores
	next := prefs.MergeOverlay(s.Prefs.Get(), obj)
	next.BackgroundImage = s.Images.Normalize(ctx, next.BackgroundImage)
	s.Prefs.Update(ctx, func(p *prefs.Overlay) { *p = next })
}
