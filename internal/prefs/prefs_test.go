package prefs

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
)

const pixel = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

type window struct {
	ep    *events.Endpoint
	store *Store
}

func newWindow(t *testing.T, hub *events.Hub, shared *kv.KV, l label.Label) window {
	t.Helper()
	ep := hub.Join(l)
	images := imagestore.New(shared, imagestore.NewBlobs())
	s := NewStore(shared, ep, images)
	t.Cleanup(func() {
		s.Close()
		ep.Close()
	})
	return window{ep: ep, store: s}
}

func TestFreshLoadUsesDefaults(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	mem := kv.NewMemory()
	w := newWindow(t, hub, kv.New(mem, nil), label.Main)

	w.store.Load(ctx)
	p := w.store.Get()

	for name, v := range map[string]bool{
		"showCpu": p.ShowCPU, "showGpu": p.ShowGPU, "showMemory": p.ShowMemory,
		"showDisk": p.ShowDisk, "showDown": p.ShowDown, "showUp": p.ShowUp,
		"showValues": p.ShowValues, "showPercent": p.ShowPercent, "showWarning": p.ShowWarning,
	} {
		if !v {
			t.Errorf("%s = false, want true", name)
		}
	}
	if p.ShowHardwareInfo || p.ShowDragHandle || p.ShowLatency {
		t.Errorf("hardware/drag/latency toggles should default false: %+v", p)
	}
	if p.BackgroundOpacity != 100 || p.BackgroundBlurPx != 0 || p.BackgroundEffect != appearance.Gaussian {
		t.Errorf("appearance defaults = %+v", p)
	}
	if p.BackgroundImage != "" {
		t.Errorf("image = %q", p.BackgroundImage)
	}
	if mem.Len() != 1 {
		t.Errorf("fresh load should persist the defaults once, rows = %d", mem.Len())
	}
}

func TestMergeOverlayClampsEverything(t *testing.T) {
	inputs := []string{
		`{"backgroundOpacity": -20, "backgroundBlurPx": 900, "backgroundGlassStrength": -1}`,
		`{"backgroundOpacity": 1e308, "backgroundBlurPx": -1e308, "backgroundGlassStrength": 1e308}`,
		`{"backgroundOpacity": "50", "backgroundBlurPx": null, "backgroundGlassStrength": true}`,
		`{"backgroundOpacity": 33.6, "backgroundBlurPx": 12.2, "backgroundGlassStrength": 99.5}`,
		`{"backgroundEffect": 3, "showCpu": "no"}`,
	}
	for _, in := range inputs {
		obj, err := schema.Parse([]byte(in))
		if err != nil {
			t.Fatalf("Parse(%s): %v", in, err)
		}
		p := MergeOverlay(DefaultOverlay(), obj)
		if p.BackgroundOpacity < 0 || p.BackgroundOpacity > 100 {
			t.Errorf("%s: opacity %d out of range", in, p.BackgroundOpacity)
		}
		if p.BackgroundBlurPx < 0 || p.BackgroundBlurPx > 40 {
			t.Errorf("%s: blur %d out of range", in, p.BackgroundBlurPx)
		}
		if p.BackgroundGlassStrength < 0 || p.BackgroundGlassStrength > 100 {
			t.Errorf("%s: strength %d out of range", in, p.BackgroundGlassStrength)
		}
		if p.BackgroundEffect != appearance.Gaussian && p.BackgroundEffect != appearance.LiquidGlass {
			t.Errorf("%s: effect %q", in, p.BackgroundEffect)
		}
		if !p.ShowCPU {
			t.Errorf("%s: wrong-typed toggle overwrote default", in)
		}
	}

	obj, _ := schema.Parse([]byte(`{"backgroundOpacity": 33.6, "backgroundBlurPx": 12.2}`))
	p := MergeOverlay(DefaultOverlay(), obj)
	if p.BackgroundOpacity != 34 || p.BackgroundBlurPx != 12 {
		t.Errorf("rounding: %+v", p)
	}
}

func TestClampedHandlesOutOfRangeStruct(t *testing.T) {
	p := Overlay{BackgroundOpacity: 300, BackgroundBlurPx: -4, BackgroundGlassStrength: 101, BackgroundEffect: "sparkle"}.Clamped()
	if p.BackgroundOpacity != 100 || p.BackgroundBlurPx != 0 || p.BackgroundGlassStrength != 100 || p.BackgroundEffect != appearance.Gaussian {
		t.Fatalf("Clamped = %+v", p)
	}
}

func TestParseOverlayNonObject(t *testing.T) {
	for _, in := range []string{"", "null", "[]", "garbage"} {
		if got := ParseOverlay([]byte(in)); got != DefaultOverlay() {
			t.Errorf("ParseOverlay(%q) = %+v", in, got)
		}
	}
}

func TestOverlayJSONNullImage(t *testing.T) {
	data, err := json.Marshal(DefaultOverlay())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"backgroundImage":null`) {
		t.Fatalf("empty image not encoded as null: %s", data)
	}
	var back Overlay
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != DefaultOverlay() {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestUpdateNormalizesInlineImage(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	w := newWindow(t, hub, kv.New(kv.NewMemory(), nil), label.Main)
	w.store.Load(ctx)

	w.store.Update(ctx, func(p *Overlay) { p.BackgroundImage = pixel })
	if got := w.store.Get().BackgroundImage; !imagestore.IsRef(got) {
		t.Fatalf("background = %.30q, want a token", got)
	}
}

func TestLoadPromotesStoredInlineImage(t *testing.T) {
	ctx := context.Background()
	shared := kv.New(kv.NewMemory(), nil)
	stored := DefaultOverlay()
	stored.BackgroundImage = pixel
	shared.Set(ctx, kv.KeyOverlayPrefs, stored)

	w := newWindow(t, events.NewHub(), shared, label.Main)
	w.store.Load(ctx)

	var persisted Overlay
	shared.Get(ctx, kv.KeyOverlayPrefs, &persisted)
	if !imagestore.IsRef(persisted.BackgroundImage) {
		t.Fatal("promoted token was not written back")
	}
}

func TestUpdateBeforeLoadDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	w := newWindow(t, events.NewHub(), kv.New(mem, nil), label.Main)

	w.store.Update(ctx, func(p *Overlay) { p.ShowCPU = false })
	if mem.Len() != 0 {
		t.Fatal("update before Load was persisted")
	}
}

func TestSyncAcrossWindowsWithoutFeedback(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	shared := kv.New(kv.NewMemory(), nil)
	main := newWindow(t, hub, shared, label.Main)
	toolkit := newWindow(t, hub, shared, label.Toolkit)
	main.store.Load(ctx)
	toolkit.store.Load(ctx)

	var mainSignals, toolkitSignals atomic.Int32
	main.ep.Listen(events.PreferencesChanged, func(events.Event) { mainSignals.Add(1) })
	toolkit.ep.Listen(events.PreferencesChanged, func(events.Event) { toolkitSignals.Add(1) })

	var seen atomic.Int32
	toolkit.store.Subscribe(func(Overlay) { seen.Add(1) })

	main.store.Update(ctx, func(p *Overlay) {
		p.ShowGPU = false
		p.BackgroundOpacity = 40
	})
	hub.Flush()

	got := toolkit.store.Get()
	if got.ShowGPU || got.BackgroundOpacity != 40 {
		t.Fatalf("toolkit did not converge: %+v", got)
	}
	if seen.Load() != 1 {
		t.Fatalf("toolkit listeners fired %d times, want 1", seen.Load())
	}
	if toolkitSignals.Load() != 1 || mainSignals.Load() != 0 {
		t.Fatalf("signals main=%d toolkit=%d; resync must not re-signal", mainSignals.Load(), toolkitSignals.Load())
	}
}

func TestUpdateNoopWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	hub := events.NewHub()
	shared := kv.New(kv.NewMemory(), nil)
	main := newWindow(t, hub, shared, label.Main)
	toolkit := newWindow(t, hub, shared, label.Toolkit)
	main.store.Load(ctx)

	var signals atomic.Int32
	toolkit.ep.Listen(events.PreferencesChanged, func(events.Event) { signals.Add(1) })

	if main.store.Update(ctx, func(p *Overlay) { p.BackgroundOpacity = 100 }) {
		t.Fatal("Update reported a change for an identical value")
	}
	hub.Flush()
	if signals.Load() != 0 {
		t.Fatal("unchanged update was signalled")
	}
}

func TestTaskbarStore(t *testing.T) {
	ctx := context.Background()
	shared := kv.New(kv.NewMemory(), nil)
	shared.Set(ctx, kv.KeyTaskbarPrefs, map[string]any{"twoLineMode": true, "showApp": "x"})

	ts := NewTaskbarStore(shared)
	got := ts.Load(ctx)
	if !got.TwoLineMode || !got.ShowApp || got.ShowLatency {
		t.Fatalf("Load = %+v", got)
	}

	ts.Update(ctx, func(p *Taskbar) { p.ShowLatency = true })
	again := NewTaskbarStore(shared).Load(ctx)
	if !again.ShowLatency {
		t.Fatal("update not persisted")
	}
}
