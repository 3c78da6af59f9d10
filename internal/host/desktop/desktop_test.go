package desktop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/godbus/dbus/v5"
)

func TestAutoStart(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "autostart")
	h := New(dir, "/opt/Pulse Core/pulsecore", "serve")

	if h.AutoStartEnabled() {
		t.Fatal("entry exists before enabling")
	}
	if err := h.SetAutoStart(ctx, true); err != nil {
		t.Fatalf("SetAutoStart(true) error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, EntryName))
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if !strings.Contains(string(data), `Exec="/opt/Pulse Core/pulsecore" serve`) {
		t.Errorf("entry Exec line not quoted:\n%s", data)
	}
	if !h.AutoStartEnabled() {
		t.Error("AutoStartEnabled() = false after enabling")
	}

	if err := h.SetAutoStart(ctx, false); err != nil {
		t.Fatalf("SetAutoStart(false) error = %v", err)
	}
	if h.AutoStartEnabled() {
		t.Error("entry still present after disabling")
	}
	if err := h.SetAutoStart(ctx, false); err != nil {
		t.Errorf("disabling twice error = %v", err)
	}
}

func TestAutoStartNeedsExecutable(t *testing.T) {
	h := New(t.TempDir())
	if err := h.SetAutoStart(context.Background(), true); err == nil {
		t.Error("SetAutoStart(true) without an executable succeeded")
	}
}

func TestMemoryTrimSchedule(t *testing.T) {
	ctx := context.Background()
	h := New(t.TempDir())
	h.minute = time.Millisecond
	var trims atomic.Int32
	h.free = func() { trims.Add(1) }
	defer h.Close()

	if err := h.SetMemoryTrim(ctx, settings.TrimPolicy{System: true, IntervalMinutes: 1}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := trims.Load(); n != 0 {
		t.Fatalf("system-only policy trimmed the app %d times", n)
	}

	if err := h.SetMemoryTrim(ctx, settings.TrimPolicy{App: true, IntervalMinutes: 2}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for trims.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if trims.Load() < 2 {
		t.Fatal("app trim did not run")
	}

	if err := h.SetMemoryTrim(ctx, settings.TrimPolicy{}); err != nil {
		t.Fatal(err)
	}
	stopped := trims.Load()
	time.Sleep(20 * time.Millisecond)
	if trims.Load() != stopped {
		t.Error("trim kept running after being disabled")
	}
	if got := h.TrimPolicy(); got != (settings.TrimPolicy{}) {
		t.Errorf("TrimPolicy() = %+v", got)
	}
}

func TestRefreshRateCallbacks(t *testing.T) {
	h := New(t.TempDir())
	if got := h.RefreshRate(); got != settings.DefaultRefreshRateMs {
		t.Errorf("initial RefreshRate() = %d", got)
	}
	var seen []int
	h.OnRefreshRate(func(ms int) { seen = append(seen, ms) })
	h.SetRefreshRate(context.Background(), 250)
	h.SetRefreshRate(context.Background(), 5000)

	if h.RefreshRate() != 5000 || len(seen) != 2 || seen[0] != 250 {
		t.Errorf("RefreshRate() = %d, callbacks = %v", h.RefreshRate(), seen)
	}
}

type fakePortal struct {
	calls   []bool
	command []string
	err     error
}

func (f *fakePortal) RequestAutostart(_ context.Context, enabled bool, command []string) error {
	f.calls = append(f.calls, enabled)
	f.command = command
	return f.err
}

func TestAutoStartThroughPortal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	h := New(dir, "/app/bin/pulsecore", "serve")
	p := &fakePortal{}
	h.UsePortal(p)

	if err := h.SetAutoStart(ctx, true); err != nil {
		t.Fatalf("SetAutoStart(true) error = %v", err)
	}
	if !h.AutoStartEnabled() {
		t.Error("AutoStartEnabled() = false after portal grant")
	}
	if _, err := os.Stat(filepath.Join(dir, EntryName)); !os.IsNotExist(err) {
		t.Error("entry file written while using the portal")
	}
	if len(p.command) != 2 || p.command[1] != "serve" {
		t.Errorf("command = %v", p.command)
	}

	p.err = errors.New("denied")
	if err := h.SetAutoStart(ctx, false); err == nil {
		t.Fatal("SetAutoStart(false) ignored the portal error")
	}
	if !h.AutoStartEnabled() {
		t.Error("failed request changed the recorded state")
	}
}

func TestParseBackgroundResponse(t *testing.T) {
	granted := map[string]dbus.Variant{"background": dbus.MakeVariant(true), "autostart": dbus.MakeVariant(true)}
	tests := []struct {
		name    string
		body    []any
		enabled bool
		wantErr bool
	}{
		{"granted", []any{uint32(0), granted}, true, false},
		{"mismatch", []any{uint32(0), granted}, false, true},
		{"no autostart key", []any{uint32(0), map[string]dbus.Variant{}}, false, false},
		{"denied", []any{uint32(1), granted}, true, true},
		{"short", []any{uint32(0)}, true, true},
		{"bad code", []any{"0", granted}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseBackgroundResponse(tt.body, tt.enabled)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseBackgroundResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
