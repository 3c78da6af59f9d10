package window

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/rs/zerolog"
)

// Tray menu item ids.
const (
	TrayShowMain    = "show_main"
	TrayOpenToolkit = "open_toolkit"
	TrayQuit        = "quit"
)

// ToolkitWidth is the fixed width of the toolkit window.
const ToolkitWidth = 260

var trayTitles = map[settings.Language]map[string]string{
	settings.ZhCN: {
		TrayShowMain:    "显示 PulseCore",
		TrayOpenToolkit: "工具箱",
		TrayQuit:        "退出",
	},
	settings.EnUS: {
		TrayShowMain:    "Show PulseCore",
		TrayOpenToolkit: "Toolkit",
		TrayQuit:        "Quit",
	},
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	// PollInterval is the fullscreen check period.
	PollInterval time.Duration
	TaskbarURL   string
	ToolkitURL   string
}

// Coordinator owns the singleton side effects of the main window: the tray
// icon, the taskbar window and its fullscreen auto-hide, and the toolkit
// window. Only the main window may run one.
type Coordinator struct {
	host       host.WindowHost
	settings   *settings.Store
	bus        events.Bus
	opts       CoordinatorOptions
	fullscreen *FullscreenMonitor
	log        *zerolog.Logger

	// mu serializes Apply and toolkit launches.
	mu       sync.Mutex
	tray     *host.Tray
	onTop    *bool
	unsub    func()
	unlisten func()
}

// ErrNotMain is returned by NewCoordinator outside the main window.
var ErrNotMain = errors.New("window: coordinator requires the main window")

// NewCoordinator creates the coordinator for the main window on bus.
func NewCoordinator(h host.WindowHost, st *settings.Store, bus events.Bus, opts CoordinatorOptions) (*Coordinator, error) {
	if !bus.Label().IsMain() {
		return nil, ErrNotMain
	}
	if opts.TaskbarURL == "" {
		opts.TaskbarURL = "taskbar.html"
	}
	if opts.ToolkitURL == "" {
		opts.ToolkitURL = "toolkit.html"
	}
	return &Coordinator{
		host:       h,
		settings:   st,
		bus:        bus,
		opts:       opts,
		fullscreen: NewFullscreenMonitor(h, label.Taskbar, opts.PollInterval),
		log:        logger.WithComponent("coordinator"),
	}, nil
}

// Start applies the current settings and keeps applying them as they
// change or as other windows ask for it.
func (c *Coordinator) Start(ctx context.Context) {
	c.unsub = c.settings.Subscribe(func(settings.Settings) {
		c.Apply(context.Background())
	})
	c.unlisten = c.bus.Listen(events.RequestTrayOwnership, func(ev events.Event) {
		c.log.Debug().Str("from", string(ev.Source)).Msg("Re-evaluating on request")
		ctx := context.Background()
		c.settings.Resync(ctx)
		c.Apply(ctx)
	})
	c.Apply(ctx)
}

// Fullscreen exposes the auto-hide monitor.
func (c *Coordinator) Fullscreen() *FullscreenMonitor { return c.fullscreen }

// Apply brings the tray, the taskbar window and fullscreen polling in line
// with the current settings. It is idempotent.
func (c *Coordinator) Apply(ctx context.Context) {
	s := c.settings.Get()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.applyTray(ctx, s)
	if !s.TaskbarMonitorEnabled {
		c.fullscreen.SetActive(ctx, false)
		c.closeTaskbar(ctx)
		return
	}
	if err := c.ensureTaskbar(ctx, s); err != nil {
		c.log.Warn().Err(err).Msg("Failed to open taskbar window")
		return
	}
	c.fullscreen.SetActive(ctx, s.TaskbarAutoHideOnFullscreen)
}

func (c *Coordinator) applyTray(ctx context.Context, s settings.Settings) {
	if !s.CloseToTray {
		if c.tray == nil {
			return
		}
		if err := c.host.RemoveTray(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Failed to remove tray icon")
			return
		}
		c.tray = nil
		return
	}

	want := trayFor(s.Language)
	if c.tray != nil && trayEqual(*c.tray, want) {
		return
	}
	if err := c.host.SetTray(ctx, want); err != nil {
		c.log.Warn().Err(err).Msg("Failed to install tray icon")
		return
	}
	c.tray = &want
}

func trayFor(lang settings.Language) host.Tray {
	titles, ok := trayTitles[lang]
	if !ok {
		titles = trayTitles[settings.ZhCN]
	}
	t := host.Tray{Tooltip: "PulseCore"}
	for _, id := range []string{TrayShowMain, TrayOpenToolkit, TrayQuit} {
		t.Items = append(t.Items, host.TrayItem{ID: id, Title: titles[id]})
	}
	return t
}

func trayEqual(a, b host.Tray) bool {
	if a.Tooltip != b.Tooltip || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}

func (c *Coordinator) ensureTaskbar(ctx context.Context, s settings.Settings) error {
	exists, err := c.host.HasWindow(ctx, label.Taskbar)
	if err != nil {
		return err
	}
	if !exists {
		err := c.host.CreateWindow(ctx, host.WindowOptions{
			Label:       label.Taskbar,
			Title:       "PulseCore Taskbar",
			URL:         c.opts.TaskbarURL,
			Size:        host.Size{Width: 520, Height: 40},
			Visible:     true,
			Transparent: true,
			AlwaysOnTop: s.TaskbarAlwaysOnTop,
			SkipTaskbar: true,
		})
		if err != nil && !errors.Is(err, host.ErrWindowExists) {
			return err
		}
		on := s.TaskbarAlwaysOnTop
		c.onTop = &on
		c.log.Info().Msg("Taskbar window opened")
		return nil
	}
	if c.onTop != nil && *c.onTop == s.TaskbarAlwaysOnTop {
		return nil
	}
	if err := c.host.SetAlwaysOnTop(ctx, label.Taskbar, s.TaskbarAlwaysOnTop); err != nil {
		return err
	}
	on := s.TaskbarAlwaysOnTop
	c.onTop = &on
	return nil
}

func (c *Coordinator) closeTaskbar(ctx context.Context) {
	c.onTop = nil
	exists, err := c.host.HasWindow(ctx, label.Taskbar)
	if err != nil || !exists {
		return
	}
	if err := c.host.CloseWindow(ctx, label.Taskbar); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close taskbar window")
		return
	}
	c.log.Info().Msg("Taskbar window closed")
}

// RestartTaskbar closes and reopens the taskbar window so it starts from
// freshly stored state. It does nothing while the taskbar is disabled.
func (c *Coordinator) RestartTaskbar(ctx context.Context) {
	s := c.settings.Get()
	if !s.TaskbarMonitorEnabled {
		return
	}
	c.mu.Lock()
	c.fullscreen.SetActive(ctx, false)
	c.closeTaskbar(ctx)
	c.mu.Unlock()
	c.Apply(ctx)
}

// OpenToolkit shows the toolkit window, creating it when needed.
func (c *Coordinator) OpenToolkit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.host.HasWindow(ctx, label.Toolkit)
	if err != nil {
		return err
	}
	if exists {
		if err := c.host.ShowWindow(ctx, label.Toolkit); err != nil {
			return err
		}
		return c.host.FocusWindow(ctx, label.Toolkit)
	}
	return c.host.CreateWindow(ctx, host.WindowOptions{
		Label:       label.Toolkit,
		Title:       "PulseCore Toolkit",
		URL:         c.opts.ToolkitURL,
		Size:        host.Size{Width: ToolkitWidth, Height: 400},
		MinWidth:    ToolkitWidth,
		Center:      true,
		Visible:     true,
		Focus:       true,
		Transparent: true,
	})
}

// CloseRequested decides what closing the main window does. It reports
// true when the window was hidden to the tray instead of quitting.
func (c *Coordinator) CloseRequested(ctx context.Context) bool {
	if !c.settings.Get().CloseToTray {
		return false
	}
	if err := c.host.HideWindow(ctx, label.Main); err != nil {
		c.log.Warn().Err(err).Msg("Failed to hide main window")
		return false
	}
	return true
}

// HandleTrayItem runs a tray menu action. It reports true for quit.
func (c *Coordinator) HandleTrayItem(ctx context.Context, id string) bool {
	switch id {
	case TrayShowMain:
		if err := c.host.ShowWindow(ctx, label.Main); err != nil {
			c.log.Warn().Err(err).Msg("Failed to show main window")
			return false
		}
		if err := c.host.FocusWindow(ctx, label.Main); err != nil {
			c.log.Debug().Err(err).Msg("Failed to focus main window")
		}
	case TrayOpenToolkit:
		if err := c.OpenToolkit(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Failed to open toolkit")
		}
	case TrayQuit:
		return true
	default:
		c.log.Debug().Str("id", id).Msg("Unknown tray item")
	}
	return false
}

// Close stops polling and detaches from settings and events. Windows are
// left as they are.
func (c *Coordinator) Close(ctx context.Context) {
	if c.unsub != nil {
		c.unsub()
	}
	if c.unlisten != nil {
		c.unlisten()
	}
	c.fullscreen.SetActive(ctx, false)
}
