package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/host/simhost"
	"github.com/bryanchriswhite/pulsecore/internal/hotkey"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/bryanchriswhite/pulsecore/internal/telemetry"
	"github.com/bryanchriswhite/pulsecore/internal/window"
)

func init() {
	logger.SetOutput(io.Discard)
}

type recordingHost struct {
	autostart []bool
}

func (h *recordingHost) SetAutoStart(_ context.Context, on bool) error {
	h.autostart = append(h.autostart, on)
	return nil
}

func (*recordingHost) SetMemoryTrim(context.Context, settings.TrimPolicy) error { return nil }

func (*recordingHost) SetRefreshRate(context.Context, int) error { return nil }

type fixture struct {
	hub   *events.Hub
	kv    *kv.KV
	host  *simhost.Host
	sh    *recordingHost
	frame window.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		hub:   events.NewHub(),
		kv:    kv.New(kv.NewMemory(), nil),
		host:  simhost.New(host.Monitor{Name: "DP-1", Size: host.Size{Width: 1920, Height: 1080}, ScaleFactor: 1}),
		sh:    &recordingHost{},
		frame: window.Immediate{},
	}
}

func (f *fixture) open(t *testing.T, l label.Label, withHost bool) *Window {
	t.Helper()
	opts := Options{
		KV:           f.kv,
		Bus:          f.hub.Join(l),
		SettingsHost: f.sh,
		Frames:       f.frame,
	}
	if withHost {
		opts.Host = f.host
	}
	w, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", l, err)
	}
	t.Cleanup(func() { w.Close(context.Background()) })
	return w
}

func TestOpenValidatesOptions(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); err == nil {
		t.Error("Open without a store succeeded")
	}
	hub := events.NewHub()
	ep := hub.Join(label.Label("sidebar"))
	defer ep.Close()
	if _, err := Open(context.Background(), Options{KV: kv.New(kv.NewMemory(), nil), Bus: ep}); err == nil {
		t.Error("Open with an unknown label succeeded")
	}
}

func TestHeadlessWindowsStayInSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	main := f.open(t, label.Main, false)
	toolkit := f.open(t, label.Toolkit, false)

	if main.Coordinator != nil || main.Overlay != nil {
		t.Fatal("headless main window started controllers")
	}

	main.Prefs.Update(ctx, func(p *prefs.Overlay) { p.BackgroundOpacity = 40 })
	toolkit.Settings.SetLanguage(ctx, settings.EnUS)
	f.hub.Flush()

	if got := toolkit.Prefs.Get().BackgroundOpacity; got != 40 {
		t.Errorf("toolkit opacity = %d, want 40", got)
	}
	if got := main.Settings.Get().Language; got != settings.EnUS {
		t.Errorf("main language = %s, want en-US", got)
	}
}

func TestMainWindowOwnsSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	main := f.open(t, label.Main, true)
	toolkit := f.open(t, label.Toolkit, false)

	if main.Coordinator == nil || main.Overlay == nil {
		t.Fatal("main window controllers missing")
	}
	if toolkit.Coordinator != nil {
		t.Fatal("toolkit window runs a coordinator")
	}

	toolkit.Settings.SetAutoStartEnabled(ctx, true)
	f.hub.Flush()
	if len(f.sh.autostart) == 0 || !f.sh.autostart[len(f.sh.autostart)-1] {
		t.Errorf("autostart calls = %v", f.sh.autostart)
	}

	main.Settings.SetTaskbarMonitorEnabled(ctx, true)
	if _, ok := f.host.Window(label.Taskbar); !ok {
		t.Fatal("taskbar window not created")
	}
	taskbar := f.open(t, label.Taskbar, true)
	if taskbar.Taskbar == nil {
		t.Fatal("taskbar controller missing")
	}
}

func TestOpenUsesTelemetryBootstrap(t *testing.T) {
	f := newFixture(t)
	src := telemetry.Static{Bootstrap: telemetry.Bootstrap{
		Settings:       []byte(`{"language":"en-US"}`),
		HardwareInfo:   telemetry.HardwareInfo{CPUModel: "Ryzen"},
		LatestSnapshot: telemetry.EmptySnapshot(),
	}}
	w, err := Open(context.Background(), Options{KV: f.kv, Bus: f.hub.Join(label.Main), Telemetry: src})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close(context.Background())

	if w.Settings.Get().Language != settings.EnUS {
		t.Errorf("language = %s, want bootstrap en-US", w.Settings.Get().Language)
	}
	if w.Telemetry.Hardware().CPUModel != "Ryzen" {
		t.Errorf("hardware = %+v", w.Telemetry.Hardware())
	}
}

func seed(t *testing.T, w *Window) {
	t.Helper()
	ctx := context.Background()
	w.Prefs.Update(ctx, func(p *prefs.Overlay) { p.ShowGPU = false })
	w.Settings.SetRememberOverlayPosition(ctx, false)
	w.Settings.SetRefreshRate(ctx, 250)
	w.TaskbarPrefs.Update(ctx, func(p *prefs.Taskbar) { p.TwoLineMode = true })
	if _, err := w.Themes.Save(ctx, "A", prefs.Background{
		Image:  "data:image/png;base64,AAAA",
		BlurPx: 4,
		Effect: appearance.Gaussian,
	}); err != nil {
		t.Fatalf("Save theme: %v", err)
	}
}

func TestFactoryReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	main := f.open(t, label.Main, false)
	toolkit := f.open(t, label.Toolkit, false)
	seed(t, main)
	f.hub.Flush()

	if err := main.FactoryReset(ctx); err != nil {
		t.Fatalf("FactoryReset() error = %v", err)
	}
	f.hub.Flush()

	if len(main.Themes.List()) != 0 {
		t.Errorf("themes survived: %v", main.Themes.List())
	}
	if main.Prefs.Get() != prefs.DefaultOverlay() {
		t.Errorf("prefs = %+v", main.Prefs.Get())
	}
	if main.TaskbarPrefs.Get() != prefs.DefaultTaskbar() {
		t.Errorf("taskbar prefs = %+v", main.TaskbarPrefs.Get())
	}
	if main.Settings.RefreshRate() != settings.DefaultRefreshRateMs {
		t.Errorf("refresh rate = %d", main.Settings.RefreshRate())
	}
	if !toolkit.Settings.Get().Equal(settings.Default()) {
		t.Errorf("toolkit settings = %+v", toolkit.Settings.Get())
	}
	if toolkit.Prefs.Get().ShowGPU != true {
		t.Error("toolkit prefs not reset")
	}
}

func TestHandleHotkey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	main := f.open(t, label.Main, false)
	seed(t, main)
	combo := "ctrl+shift+r"
	if _, err := main.Settings.SetFactoryResetHotkey(ctx, &combo); err != nil {
		t.Fatal(err)
	}
	pressed := hotkey.Hotkey{Ctrl: true, Shift: true, Key: "r"}

	var asked []string
	yes := func(title, _ string) bool { asked = append(asked, title); return true }
	no := func(title, _ string) bool { asked = append(asked, title); return false }

	if hit, _ := main.HandleHotkey(ctx, pressed, KeyTarget{Tag: "INPUT"}, yes); hit {
		t.Error("hotkey fired inside an input")
	}
	if hit, _ := main.HandleHotkey(ctx, pressed, KeyTarget{Tag: "div", ContentEditable: true}, yes); hit {
		t.Error("hotkey fired inside editable content")
	}
	if hit, _ := main.HandleHotkey(ctx, hotkey.Hotkey{Ctrl: true, Key: "r"}, KeyTarget{}, yes); hit {
		t.Error("partial chord matched")
	}
	if len(asked) != 0 {
		t.Fatalf("confirmation shown %d times", len(asked))
	}

	hit, err := main.HandleHotkey(ctx, pressed, KeyTarget{Tag: "div"}, no)
	if !hit || err != nil {
		t.Fatalf("HandleHotkey() = %v, %v", hit, err)
	}
	if len(main.Themes.List()) != 1 || asked[0] != "恢复出厂设置" {
		t.Fatalf("declined reset changed state (asked %v)", asked)
	}

	hit, err = main.HandleHotkey(ctx, pressed, KeyTarget{}, yes)
	if !hit || err != nil {
		t.Fatalf("HandleHotkey() = %v, %v", hit, err)
	}
	if len(main.Themes.List()) != 0 || main.Settings.Get().FactoryResetHotkey != nil {
		t.Error("confirmed reset did not run")
	}
}

type failingStore struct{ *kv.Memory }

func (failingStore) Clear(context.Context) error { return errors.New("disk gone") }

func TestFactoryResetStorageFailure(t *testing.T) {
	hub := events.NewHub()
	w, err := Open(context.Background(), Options{
		KV:  kv.New(failingStore{kv.NewMemory()}, nil),
		Bus: hub.Join(label.Main),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close(context.Background())
	if err := w.FactoryReset(context.Background()); err == nil {
		t.Error("FactoryReset() succeeded with a failing store")
	}
}

func TestResetPromptFallsBackToChinese(t *testing.T) {
	title, _ := ResetPrompt(settings.EnUS)
	if title != "Factory reset" {
		t.Errorf("en-US title = %q", title)
	}
	zh, _ := ResetPrompt(settings.ZhCN)
	if other, _ := ResetPrompt("fr-FR"); other != zh {
		t.Errorf("unknown language title = %q, want %q", other, zh)
	}
}
