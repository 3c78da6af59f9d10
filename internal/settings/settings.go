// Package settings holds the application settings shared by every window.
package settings

import (
	"encoding/json"
	"slices"

	"github.com/bryanchriswhite/pulsecore/internal/hotkey"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
)

// Language is a UI language tag.
type Language string

const (
	ZhCN Language = "zh-CN"
	EnUS Language = "en-US"
)

// ParseLanguage maps unknown tags to ZhCN.
func ParseLanguage(s string) (Language, bool) {
	switch Language(s) {
	case ZhCN, EnUS:
		return Language(s), true
	}
	return ZhCN, false
}

// TrimTarget selects what periodic memory trimming applies to.
type TrimTarget string

const (
	TargetApp    TrimTarget = "app"
	TargetSystem TrimTarget = "system"
)

const (
	MinTrimIntervalMinutes     = 1
	MaxTrimIntervalMinutes     = 30
	DefaultTrimIntervalMinutes = 5

	DefaultRefreshRateMs = 1000
	MinRefreshRateMs     = 10
	MaxRefreshRateMs     = 10000
)

// Settings is the cross-window settings record.
type Settings struct {
	Language                    Language     `json:"language"`
	CloseToTray                 bool         `json:"closeToTray"`
	AutoStartEnabled            bool         `json:"autoStartEnabled"`
	MemoryTrimEnabled           bool         `json:"memoryTrimEnabled"`
	MemoryTrimSystemEnabled     bool         `json:"memoryTrimSystemEnabled"`
	MemoryTrimTargets           []TrimTarget `json:"memoryTrimTargets"`
	MemoryTrimIntervalMinutes   int          `json:"memoryTrimIntervalMinutes"`
	RememberOverlayPosition     bool         `json:"rememberOverlayPosition"`
	OverlayAlwaysOnTop          bool         `json:"overlayAlwaysOnTop"`
	TaskbarMonitorEnabled       bool         `json:"taskbarMonitorEnabled"`
	TaskbarAlwaysOnTop          bool         `json:"taskbarAlwaysOnTop"`
	TaskbarAutoHideOnFullscreen bool         `json:"taskbarAutoHideOnFullscreen"`
	TaskbarPositionLocked       bool         `json:"taskbarPositionLocked"`
	FactoryResetHotkey          *string      `json:"factoryResetHotkey"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Language:                  ZhCN,
		MemoryTrimTargets:         []TrimTarget{},
		MemoryTrimIntervalMinutes: DefaultTrimIntervalMinutes,
		RememberOverlayPosition:   true,
		OverlayAlwaysOnTop:        true,
		TaskbarAlwaysOnTop:        true,
	}
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	s.MemoryTrimTargets = slices.Clone(s.MemoryTrimTargets)
	if s.FactoryResetHotkey != nil {
		v := *s.FactoryResetHotkey
		s.FactoryResetHotkey = &v
	}
	return s
}

// Equal compares every field by value.
func (s Settings) Equal(o Settings) bool {
	if !slices.Equal(s.MemoryTrimTargets, o.MemoryTrimTargets) {
		return false
	}
	if (s.FactoryResetHotkey == nil) != (o.FactoryResetHotkey == nil) {
		return false
	}
	if s.FactoryResetHotkey != nil && *s.FactoryResetHotkey != *o.FactoryResetHotkey {
		return false
	}
	return s.Language == o.Language &&
		s.CloseToTray == o.CloseToTray &&
		s.AutoStartEnabled == o.AutoStartEnabled &&
		s.MemoryTrimEnabled == o.MemoryTrimEnabled &&
		s.MemoryTrimSystemEnabled == o.MemoryTrimSystemEnabled &&
		s.MemoryTrimIntervalMinutes == o.MemoryTrimIntervalMinutes &&
		s.RememberOverlayPosition == o.RememberOverlayPosition &&
		s.OverlayAlwaysOnTop == o.OverlayAlwaysOnTop &&
		s.TaskbarMonitorEnabled == o.TaskbarMonitorEnabled &&
		s.TaskbarAlwaysOnTop == o.TaskbarAlwaysOnTop &&
		s.TaskbarAutoHideOnFullscreen == o.TaskbarAutoHideOnFullscreen &&
		s.TaskbarPositionLocked == o.TaskbarPositionLocked
}

// Normalized clamps the interval, canonicalizes the language and hotkey,
// and filters the trim targets so a target is only present while its
// enable flag is set.
func (s Settings) Normalized() Settings {
	s = s.Clone()
	s.Language, _ = ParseLanguage(string(s.Language))
	s.MemoryTrimIntervalMinutes = ClampTrimInterval(float64(s.MemoryTrimIntervalMinutes))

	targets := make([]TrimTarget, 0, 2)
	if s.MemoryTrimEnabled && slices.Contains(s.MemoryTrimTargets, TargetApp) {
		targets = append(targets, TargetApp)
	}
	if s.MemoryTrimSystemEnabled && slices.Contains(s.MemoryTrimTargets, TargetSystem) {
		targets = append(targets, TargetSystem)
	}
	s.MemoryTrimTargets = targets

	if s.FactoryResetHotkey != nil {
		if v, err := hotkey.Normalize(*s.FactoryResetHotkey); err == nil {
			s.FactoryResetHotkey = &v
		} else {
			s.FactoryResetHotkey = nil
		}
	}
	return s
}

// AppTrimActive reports whether app memory trimming is in effect.
func (s Settings) AppTrimActive() bool {
	return s.MemoryTrimEnabled && slices.Contains(s.MemoryTrimTargets, TargetApp)
}

// SystemTrimActive reports whether system memory trimming is in effect.
func (s Settings) SystemTrimActive() bool {
	return s.MemoryTrimSystemEnabled && slices.Contains(s.MemoryTrimTargets, TargetSystem)
}

// TrimPolicy is the memory-trim configuration pushed to the host.
func (s Settings) TrimPolicy() TrimPolicy {
	return TrimPolicy{
		App:             s.AppTrimActive(),
		System:          s.SystemTrimActive(),
		IntervalMinutes: s.MemoryTrimIntervalMinutes,
	}
}

// TrimPolicy is what the host needs to run periodic memory trimming.
type TrimPolicy struct {
	App             bool `json:"app"`
	System          bool `json:"system"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

// Merge layers the recognized fields of obj over base, one at a time. A
// missing or wrong-typed field keeps the base value.
func Merge(base Settings, obj schema.Object) Settings {
	out := base.Clone()

	var lang string
	if obj.String("language", &lang) {
		if l, ok := ParseLanguage(lang); ok {
			out.Language = l
		}
	}
	toggles := []struct {
		key string
		dst *bool
	}{
		{"closeToTray", &out.CloseToTray},
		{"autoStartEnabled", &out.AutoStartEnabled},
		{"memoryTrimEnabled", &out.MemoryTrimEnabled},
		{"memoryTrimSystemEnabled", &out.MemoryTrimSystemEnabled},
		{"rememberOverlayPosition", &out.RememberOverlayPosition},
		{"overlayAlwaysOnTop", &out.OverlayAlwaysOnTop},
		{"taskbarMonitorEnabled", &out.TaskbarMonitorEnabled},
		{"taskbarAlwaysOnTop", &out.TaskbarAlwaysOnTop},
		{"taskbarAutoHideOnFullscreen", &out.TaskbarAutoHideOnFullscreen},
		{"taskbarPositionLocked", &out.TaskbarPositionLocked},
	}
	for _, t := range toggles {
		obj.Bool(t.key, t.dst)
	}

	var interval float64
	if obj.Number("memoryTrimIntervalMinutes", &interval) {
		out.MemoryTrimIntervalMinutes = ClampTrimInterval(interval)
	}

	if items, ok := obj.Array("memoryTrimTargets"); ok {
		targets := make([]TrimTarget, 0, len(items))
		for _, raw := range items {
			var v string
			if json.Unmarshal(raw, &v) != nil {
				continue
			}
			switch TrimTarget(v) {
			case TargetApp:
				targets = append(targets, TargetApp)
			case TargetSystem:
				targets = append(targets, TargetSystem)
			}
		}
		out.MemoryTrimTargets = targets
	} else if !obj.Has("memoryTrimTargets") {
		// Records written before targets existed select every enabled one.
		if !base.MemoryTrimEnabled && out.MemoryTrimEnabled {
			out.MemoryTrimTargets = append(out.MemoryTrimTargets, TargetApp)
		}
		if !base.MemoryTrimSystemEnabled && out.MemoryTrimSystemEnabled {
			out.MemoryTrimTargets = append(out.MemoryTrimTargets, TargetSystem)
		}
	}

	if obj.Has("factoryResetHotkey") {
		var hk string
		if obj.NullableString("factoryResetHotkey", &hk) {
			if hk == "" {
				out.FactoryResetHotkey = nil
			} else if v, err := hotkey.Normalize(hk); err == nil {
				out.FactoryResetHotkey = &v
			}
		}
	}
	return out.Normalized()
}

// Resolve builds settings from the defaults, then the host bootstrap, then
// the stored record. Either input may be nil or malformed.
func Resolve(bootstrap, stored []byte) Settings {
	out := Default()
	for _, layer := range [][]byte{bootstrap, stored} {
		if len(layer) == 0 {
			continue
		}
		if obj, err := schema.Parse(layer); err == nil {
			out = Merge(out, obj)
		}
	}
	return out.Normalized()
}

// ClampRefreshRate rounds ms and bounds it to [10, 10000]. Non-finite input
// yields the default.
func ClampRefreshRate(ms float64) int {
	return int(schema.ClampRound(ms, MinRefreshRateMs, MaxRefreshRateMs, DefaultRefreshRateMs))
}

// ClampTrimInterval rounds minutes and bounds it to [1, 30].
func ClampTrimInterval(minutes float64) int {
	return int(schema.ClampRound(minutes, MinTrimIntervalMinutes, MaxTrimIntervalMinutes, DefaultTrimIntervalMinutes))
}
