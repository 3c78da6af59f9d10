// Package desktop performs the process-level settings side effects on a
// freedesktop.org session: the XDG autostart entry, periodic memory trimming
// and the telemetry sampling period.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/rs/zerolog"
)

// EntryName is the autostart file name.
const EntryName = "pulsecore.desktop"

// autostarter delegates autostart to the session, bypassing the entry file.
type autostarter interface {
	RequestAutostart(ctx context.Context, enabled bool, command []string) error
}

// Host implements settings.Host.
type Host struct {
	autostartDir string
	exec         []string
	log          *zerolog.Logger
	portal       autostarter
	portalOn     bool

	// minute is the trim interval unit. Tests shorten it.
	minute time.Duration
	free   func()

	mu        sync.Mutex
	policy    settings.TrimPolicy
	stopTrim  chan struct{}
	trimWG    sync.WaitGroup
	refreshMs int
	onRefresh []func(int)
}

// New returns a Host that writes its autostart entry into autostartDir and
// launches exec from it.
func New(autostartDir string, exec ...string) *Host {
	return &Host{
		autostartDir: autostartDir,
		exec:         exec,
		log:          logger.WithComponent("desktop"),
		minute:       time.Minute,
		free:         debug.FreeOSMemory,
		refreshMs:    settings.DefaultRefreshRateMs,
	}
}

// DefaultAutostartDir is $XDG_CONFIG_HOME/autostart, falling back to
// ~/.config/autostart.
func DefaultAutostartDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "autostart"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "autostart"), nil
}

// UsePortal routes autostart through p. Sandboxed processes cannot write
// the autostart directory.
func (h *Host) UsePortal(p autostarter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.portal = p
}

func (h *Host) entryPath() string {
	return filepath.Join(h.autostartDir, EntryName)
}

// quoteExec quotes one Exec argument the way desktop entry files expect.
func quoteExec(arg string) string {
	if !strings.ContainsAny(arg, " \t\n\"'\\><~|&;$*?#()`") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(arg) + `"`
}

func (h *Host) entry() []byte {
	args := make([]string, len(h.exec))
	for i, a := range h.exec {
		args[i] = quoteExec(a)
	}
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Name=PulseCore\n")
	b.WriteString("Exec=" + strings.Join(args, " ") + "\n")
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return []byte(b.String())
}

// SetAutoStart writes or removes the autostart entry. Removing an absent
// entry succeeds.
func (h *Host) SetAutoStart(ctx context.Context, enabled bool) error {
	h.mu.Lock()
	portal := h.portal
	h.mu.Unlock()
	if portal != nil {
		if err := portal.RequestAutostart(ctx, enabled, h.exec); err != nil {
			return fmt.Errorf("failed to request autostart: %w", err)
		}
		h.mu.Lock()
		h.portalOn = enabled
		h.mu.Unlock()
		h.log.Info().Bool("enabled", enabled).Msg("Autostart requested through portal")
		return nil
	}
	if !enabled {
		if err := os.Remove(h.entryPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove autostart entry: %w", err)
		}
		h.log.Info().Msg("Autostart disabled")
		return nil
	}
	if len(h.exec) == 0 {
		return errors.New("desktop: no executable configured for autostart")
	}
	if err := os.MkdirAll(h.autostartDir, 0755); err != nil {
		return fmt.Errorf("failed to create autostart directory: %w", err)
	}
	if err := kv.WriteFileAtomic(h.entryPath(), h.entry(), 0644); err != nil {
		return fmt.Errorf("failed to write autostart entry: %w", err)
	}
	h.log.Info().Str("path", h.entryPath()).Msg("Autostart enabled")
	return nil
}

// AutoStartEnabled reports whether the autostart entry exists, or with a
// portal, what was last granted.
func (h *Host) AutoStartEnabled() bool {
	h.mu.Lock()
	portal, on := h.portal, h.portalOn
	h.mu.Unlock()
	if portal != nil {
		return on
	}
	_, err := os.Stat(h.entryPath())
	return err == nil
}

// SetMemoryTrim replaces the trim schedule. Only the app target is
// actionable here; a system trim request is logged and ignored.
func (h *Host) SetMemoryTrim(_ context.Context, policy settings.TrimPolicy) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if policy == h.policy && (h.stopTrim != nil) == policy.App {
		return nil
	}
	h.stopTrimLocked()
	h.policy = policy

	if policy.System {
		h.log.Debug().Msg("System memory trim is not supported on this platform")
	}
	if !policy.App {
		return nil
	}

	interval := time.Duration(max(policy.IntervalMinutes, settings.MinTrimIntervalMinutes)) * h.minute
	stop := make(chan struct{})
	h.stopTrim = stop
	h.trimWG.Add(1)
	go h.trimLoop(interval, stop)
	h.log.Info().Dur("interval", interval).Msg("Memory trim scheduled")
	return nil
}

func (h *Host) trimLoop(interval time.Duration, stop <-chan struct{}) {
	defer h.trimWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.free()
			h.log.Debug().Msg("Memory trimmed")
		}
	}
}

func (h *Host) stopTrimLocked() {
	if h.stopTrim == nil {
		return
	}
	close(h.stopTrim)
	h.stopTrim = nil
	h.trimWG.Wait()
}

// TrimPolicy returns the active trim policy.
func (h *Host) TrimPolicy() settings.TrimPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.policy
}

// SetRefreshRate records the sampling period and forwards it to every
// OnRefreshRate callback.
func (h *Host) SetRefreshRate(_ context.Context, ms int) error {
	h.mu.Lock()
	h.refreshMs = ms
	fns := append([]func(int){}, h.onRefresh...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ms)
	}
	h.log.Debug().Int("ms", ms).Msg("Refresh rate set")
	return nil
}

// RefreshRate returns the last sampling period pushed.
func (h *Host) RefreshRate() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshMs
}

// OnRefreshRate registers fn for sampling period changes.
func (h *Host) OnRefreshRate(fn func(int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRefresh = append(h.onRefresh, fn)
}

// Close stops the trim schedule.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTrimLocked()
}
