package telemetry

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/kv"
)

const bootLine = `{"kind":"bootstrap","data":{"settings":{"language":"en-US"},"hardware_info":{"cpu_model":"Ryzen 7","gpu_model":"N/A","ram_spec":"32GB","disk_models":["NVMe"],"motherboard":"X570","device_brand":"Custom"},"latest_snapshot":{"timestamp":"2026-01-02T03:04:05Z","cpu":{"usage_pct":12.5,"frequency_mhz":4200,"temperature_c":null},"gpu":{"usage_pct":null,"temperature_c":null,"memory_used_mb":null,"memory_total_mb":null,"frequency_mhz":null},"memory":{"used_mb":1,"total_mb":2,"usage_pct":50},"disks":[],"network":{"download_bytes_per_sec":0,"upload_bytes_per_sec":0,"latency_ms":null},"power_watts":null}}}`

const snapLine = `{"kind":"snapshot","data":{"timestamp":"2026-01-02T03:04:06Z","cpu":{"usage_pct":40},"memory":{"used_mb":1,"total_mb":2,"usage_pct":50},"disks":[{"name":"C:","label":"sys","used_gb":1,"total_gb":2,"usage_pct":50}],"network":{"download_bytes_per_sec":10,"upload_bytes_per_sec":5}}}`

func TestSidecarHandleLine(t *testing.T) {
	s := NewSidecar()
	var got []Snapshot
	s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	if err := s.handleLine([]byte(`not json`)); err == nil {
		t.Fatal("garbage accepted")
	}
	if err := s.handleLine([]byte(`{"kind":"other","data":{}}`)); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if err := s.handleLine([]byte(bootLine)); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := s.handleLine([]byte(snapLine)); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(got) != 1 || got[0].CPU.UsagePct != 40 || len(got[0].Disks) != 1 {
		t.Fatalf("subscriber got %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	boot, err := s.Initial(ctx)
	if err != nil {
		t.Fatalf("Initial: %v", err)
	}
	if boot.HardwareInfo.CPUModel != "Ryzen 7" || string(boot.Settings) != `{"language":"en-US"}` {
		t.Fatalf("bootstrap = %+v", boot)
	}
	if boot.LatestSnapshot.CPU.UsagePct != 40 {
		t.Fatal("Initial should carry the newest snapshot")
	}
}

func TestSidecarInitialTimesOut(t *testing.T) {
	s := NewSidecar()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Initial(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestSidecarProcess(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no shell")
	}
	s := NewSidecar(sh, "-c", "printf '%s\\n' '"+bootLine+"'")
	s.retryDelay = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	boot, err := s.Initial(ctx)
	if err != nil {
		t.Fatalf("Initial: %v", err)
	}
	if boot.HardwareInfo.Motherboard != "X570" {
		t.Fatalf("hardware = %+v", boot.HardwareInfo)
	}
}

func TestSidecarGivesUp(t *testing.T) {
	s := NewSidecar("/nonexistent/pulsecore-sampler")
	s.retryDelay = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Start(ctx)
	if _, err := s.Initial(ctx); !errors.Is(err, ErrSidecarStopped) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadBootstrapCachesHardware(t *testing.T) {
	ctx := context.Background()
	store := kv.New(kv.NewMemory(), nil)
	hw := HardwareInfo{CPUModel: "Ryzen 7", DiskModels: []string{"NVMe"}}

	got := LoadBootstrap(ctx, Static{Bootstrap: Bootstrap{HardwareInfo: hw}}, store)
	if got.HardwareInfo.CPUModel != "Ryzen 7" {
		t.Fatalf("hardware = %+v", got.HardwareInfo)
	}

	got = LoadBootstrap(ctx, Static{Err: errors.New("host down")}, store)
	if got.HardwareInfo.CPUModel != "Ryzen 7" || len(got.HardwareInfo.DiskModels) != 1 {
		t.Fatalf("cached hardware = %+v", got.HardwareInfo)
	}
	if got.LatestSnapshot.Memory.TotalMB != 1 {
		t.Fatal("fallback bootstrap should carry the empty snapshot")
	}
}

func TestFeedHistoryIsBounded(t *testing.T) {
	f := NewFeed(Bootstrap{LatestSnapshot: EmptySnapshot()}, Static{})
	defer f.Close()
	for i := 0; i < HistoryLimit+30; i++ {
		f.Push(Snapshot{CPU: CpuMetrics{UsagePct: float64(i)}})
	}
	h := f.History()
	if len(h) != HistoryLimit {
		t.Fatalf("len = %d", len(h))
	}
	if h[len(h)-1].CPU.UsagePct != HistoryLimit+29 || f.Latest().CPU.UsagePct != HistoryLimit+29 {
		t.Fatal("newest snapshot not last")
	}
	if h[0].CPU.UsagePct != 30 {
		t.Fatalf("oldest = %v", h[0].CPU.UsagePct)
	}
}
