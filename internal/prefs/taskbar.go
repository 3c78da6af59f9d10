package prefs

import "github.com/bryanchriswhite/pulsecore/internal/schema"

// Taskbar is the taskbar strip's feature toggles.
type Taskbar struct {
	ShowCPU     bool `json:"showCpu"`
	ShowCPUFreq bool `json:"showCpuFreq"`
	ShowCPUTemp bool `json:"showCpuTemp"`
	ShowGPU     bool `json:"showGpu"`
	ShowGPUTemp bool `json:"showGpuTemp"`
	ShowMemory  bool `json:"showMemory"`
	ShowApp     bool `json:"showApp"`
	ShowDown    bool `json:"showDown"`
	ShowUp      bool `json:"showUp"`
	ShowLatency bool `json:"showLatency"`
	TwoLineMode bool `json:"twoLineMode"`
}

func DefaultTaskbar() Taskbar {
	return Taskbar{
		ShowCPU:     true,
		ShowCPUFreq: true,
		ShowCPUTemp: true,
		ShowGPU:     true,
		ShowGPUTemp: true,
		ShowMemory:  true,
		ShowApp:     true,
		ShowDown:    true,
		ShowUp:      true,
	}
}

// MergeTaskbar layers the recognized boolean fields of obj over base.
func MergeTaskbar(base Taskbar, obj schema.Object) Taskbar {
	out := base
	obj.Bool("showCpu", &out.ShowCPU)
	obj.Bool("showCpuFreq", &out.ShowCPUFreq)
	obj.Bool("showCpuTemp", &out.ShowCPUTemp)
	obj.Bool("showGpu", &out.ShowGPU)
	obj.Bool("showGpuTemp", &out.ShowGPUTemp)
	obj.Bool("showMemory", &out.ShowMemory)
	obj.Bool("showApp", &out.ShowApp)
	obj.Bool("showDown", &out.ShowDown)
	obj.Bool("showUp", &out.ShowUp)
	obj.Bool("showLatency", &out.ShowLatency)
	obj.Bool("twoLineMode", &out.TwoLineMode)
	return out
}

// ParseTaskbar reads a stored record over the defaults.
func ParseTaskbar(data []byte) Taskbar {
	obj, err := schema.Parse(data)
	if err != nil {
		return DefaultTaskbar()
	}
	return MergeTaskbar(DefaultTaskbar(), obj)
}
