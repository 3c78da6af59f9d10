package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/pulsecore/internal/hotkey"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
)

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(title, message string) bool

type resetText struct{ title, message string }

var resetPrompt = map[settings.Language]resetText{
	settings.ZhCN: {"恢复出厂设置", "将清除所有设置、主题与窗口位置，且无法撤销。是否继续？"},
	settings.EnUS: {"Factory reset", "All settings, themes and window positions will be erased. This cannot be undone. Continue?"},
}

// ResetPrompt returns the confirmation title and message for lang.
func ResetPrompt(lang settings.Language) (title, message string) {
	text, ok := resetPrompt[lang]
	if !ok {
		text = resetPrompt[settings.ZhCN]
	}
	return text.title, text.message
}

// KeyTarget is the element a key press was delivered to.
type KeyTarget struct {
	Tag             string
	ContentEditable bool
}

// editable reports whether typing into t should not trigger shortcuts.
func (t KeyTarget) editable() bool {
	if t.ContentEditable {
		return true
	}
	switch strings.ToLower(t.Tag) {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// HandleHotkey runs the factory reset when pressed matches the configured
// hotkey, the target is not editable and confirm agrees. Reports whether
// pressed matched.
func (w *Window) HandleHotkey(ctx context.Context, pressed hotkey.Hotkey, target KeyTarget, confirm ConfirmFunc) (bool, error) {
	cur := w.Settings.Get()
	if cur.FactoryResetHotkey == nil || target.editable() {
		return false, nil
	}
	want, err := hotkey.Parse(*cur.FactoryResetHotkey)
	if err != nil || !want.Matches(pressed) {
		return false, nil
	}

	title, message := ResetPrompt(cur.Language)
	if confirm == nil || !confirm(title, message) {
		w.log.Info().Msg("Factory reset declined")
		return true, nil
	}
	return true, w.FactoryReset(ctx)
}

// FactoryReset erases storage and returns every store to its defaults,
// signalling the other windows so they follow.
func (w *Window) FactoryReset(ctx context.Context) error {
	if err := w.KV.Reset(ctx); err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}
	w.Importer.Cancel()
	w.Session.Close()

	w.Themes.Replace(ctx, nil)
	w.Prefs.Update(ctx, func(p *prefs.Overlay) { *p = prefs.DefaultOverlay() })
	w.TaskbarPrefs.Update(ctx, func(t *prefs.Taskbar) { *t = prefs.DefaultTaskbar() })
	w.Settings.SetRefreshRate(ctx, settings.DefaultRefreshRateMs)
	w.Settings.Update(ctx, func(s *settings.Settings) { *s = settings.Default() })

	if w.Coordinator != nil {
		w.Coordinator.RestartTaskbar(ctx)
	}
	w.log.Warn().Msg("Factory reset complete")
	return nil
}
