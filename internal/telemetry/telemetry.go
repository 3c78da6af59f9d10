// Package telemetry carries hardware snapshots from the native sampler to
// the windows. The sampler itself is external; Source abstracts it.
package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

type CpuMetrics struct {
	UsagePct     float64  `json:"usage_pct"`
	FrequencyMHz *uint64  `json:"frequency_mhz"`
	TemperatureC *float64 `json:"temperature_c"`
}

type GpuMetrics struct {
	UsagePct      *float64 `json:"usage_pct"`
	TemperatureC  *float64 `json:"temperature_c"`
	MemoryUsedMB  *float64 `json:"memory_used_mb"`
	MemoryTotalMB *float64 `json:"memory_total_mb"`
	FrequencyMHz  *float64 `json:"frequency_mhz"`
}

type MemoryMetrics struct {
	UsedMB   float64 `json:"used_mb"`
	TotalMB  float64 `json:"total_mb"`
	UsagePct float64 `json:"usage_pct"`
}

type DiskMetrics struct {
	Name             string   `json:"name"`
	Label            string   `json:"label"`
	UsedGB           float64  `json:"used_gb"`
	TotalGB          float64  `json:"total_gb"`
	UsagePct         float64  `json:"usage_pct"`
	ReadBytesPerSec  *float64 `json:"read_bytes_per_sec"`
	WriteBytesPerSec *float64 `json:"write_bytes_per_sec"`
}

type NetworkMetrics struct {
	DownloadBytesPerSec float64  `json:"download_bytes_per_sec"`
	UploadBytesPerSec   float64  `json:"upload_bytes_per_sec"`
	LatencyMs           *float64 `json:"latency_ms"`
}

// Snapshot is one sample of every metric.
type Snapshot struct {
	Timestamp   time.Time      `json:"timestamp"`
	CPU         CpuMetrics     `json:"cpu"`
	GPU         GpuMetrics     `json:"gpu"`
	Memory      MemoryMetrics  `json:"memory"`
	Disks       []DiskMetrics  `json:"disks"`
	Network     NetworkMetrics `json:"network"`
	AppCPUUsage *float64       `json:"appCpuUsagePct"`
	AppMemoryMB *float64       `json:"appMemoryMb"`
	PowerWatts  *float64       `json:"power_watts"`
}

// HardwareInfo describes the machine. It changes rarely and is cached.
type HardwareInfo struct {
	CPUModel      string   `json:"cpu_model"`
	CPUMaxFreqMHz *uint64  `json:"cpu_max_freq_mhz"`
	GPUModel      string   `json:"gpu_model"`
	RAMSpec       string   `json:"ram_spec"`
	DiskModels    []string `json:"disk_models"`
	Motherboard   string   `json:"motherboard"`
	DeviceBrand   string   `json:"device_brand"`
}

// Bootstrap is the initial state a window starts from. Settings is kept
// raw; the settings package layers it field by field.
type Bootstrap struct {
	Settings       json.RawMessage `json:"settings"`
	HardwareInfo   HardwareInfo    `json:"hardware_info"`
	LatestSnapshot Snapshot        `json:"latest_snapshot"`
}

// Source produces telemetry.
type Source interface {
	// Initial returns the bootstrap state.
	Initial(ctx context.Context) (Bootstrap, error)
	// Subscribe registers fn for every new snapshot. The returned func
	// unregisters it.
	Subscribe(fn func(Snapshot)) func()
}

// EmptySnapshot is the placeholder shown before the first sample.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Timestamp: time.Now().UTC(),
		Memory:    MemoryMetrics{TotalMB: 1},
		Disks:     []DiskMetrics{},
	}
}
