// Package app assembles one window's stores and controllers. Windows built
// here share nothing but the key-value store and the event bus, so the same
// bundle serves an in-process window and a window in its own process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/bryanchriswhite/pulsecore/internal/telemetry"
	"github.com/bryanchriswhite/pulsecore/internal/theme"
	"github.com/bryanchriswhite/pulsecore/internal/transfer"
	"github.com/bryanchriswhite/pulsecore/internal/window"
	"github.com/rs/zerolog"
)

// Options describes one window.
type Options struct {
	KV  *kv.KV
	Bus events.Bus

	// Host drives OS windows. Nil runs the window headless: stores only.
	Host host.WindowHost
	// SettingsHost receives process-level side effects. Only the main
	// window uses it.
	SettingsHost settings.Host
	// Telemetry supplies the bootstrap payload and live snapshots. Nil
	// starts from an empty bootstrap.
	Telemetry telemetry.Source
	// URLs mints display URLs for stored images. Nil uses a private
	// imagestore.Blobs.
	URLs imagestore.URLMinter

	Frames      window.Scheduler
	Coordinator window.CoordinatorOptions
}

// Window is one window's state.
type Window struct {
	Label label.Label

	KV           *kv.KV
	Bus          events.Bus
	Images       *imagestore.Store
	Prefs        *prefs.Store
	TaskbarPrefs *prefs.TaskbarStore
	Settings     *settings.Store
	Themes       *theme.Manager
	Session      *theme.Session
	Telemetry    *telemetry.Feed
	Importer     *transfer.Importer

	// Set on the main window when a host is present.
	Coordinator *window.Coordinator
	Overlay     *window.Overlay
	// Set on the taskbar window when a host is present.
	Taskbar *window.Taskbar

	log *zerolog.Logger
}

// Open loads every store for the bus's window and starts its controllers.
func Open(ctx context.Context, opts Options) (*Window, error) {
	if opts.KV == nil || opts.Bus == nil {
		return nil, errors.New("app: key-value store and bus are required")
	}
	l := opts.Bus.Label()
	if !l.Valid() {
		return nil, fmt.Errorf("app: unknown window label %q", l)
	}
	log := logger.WithWindow("app", string(l))

	src := opts.Telemetry
	if src == nil {
		src = telemetry.Static{Bootstrap: telemetry.Bootstrap{LatestSnapshot: telemetry.EmptySnapshot()}}
	}
	boot := telemetry.LoadBootstrap(ctx, src, opts.KV)

	var settingsHost settings.Host
	if l.IsMain() {
		settingsHost = opts.SettingsHost
	}

	w := &Window{
		Label: l,
		KV:    opts.KV,
		Bus:   opts.Bus,
		log:   log,
	}
	urls := opts.URLs
	if urls == nil {
		urls = imagestore.NewBlobs()
	}
	w.Images = imagestore.New(opts.KV, urls)
	w.Prefs = prefs.NewStore(opts.KV, opts.Bus, w.Images)
	w.Prefs.Load(ctx)
	w.Settings = settings.NewStore(opts.KV, opts.Bus, settingsHost)
	w.Settings.Load(ctx, boot.Settings)
	w.Themes = theme.NewManager(opts.KV, w.Prefs, w.Images)
	w.Themes.Load(ctx)
	w.Session = theme.NewSession(w.Prefs, w.Themes, w.Images)
	w.TaskbarPrefs = prefs.NewTaskbarStore(opts.KV)
	w.TaskbarPrefs.Load(ctx)
	w.Telemetry = telemetry.NewFeed(boot, src)
	w.Importer = transfer.NewImporter(w.Stores())

	if opts.Host != nil {
		if err := w.startControllers(ctx, opts); err != nil {
			w.Close(ctx)
			return nil, err
		}
	}

	log.Info().Bool("headless", opts.Host == nil).Msg("Window opened")
	return w, nil
}

func (w *Window) startControllers(ctx context.Context, opts Options) error {
	switch w.Label {
	case label.Main:
		c, err := window.NewCoordinator(opts.Host, w.Settings, w.Bus, opts.Coordinator)
		if err != nil {
			return fmt.Errorf("failed to create window coordinator: %w", err)
		}
		w.Coordinator = c
		w.Overlay = window.NewOverlay(opts.Host, w.KV, w.Settings, opts.Frames)
		w.Overlay.Start(ctx)
		c.Start(ctx)
	case label.Taskbar:
		w.Taskbar = window.NewTaskbar(opts.Host, w.KV, w.Settings, opts.Frames)
		w.Taskbar.Start(ctx)
	}
	return nil
}

// Stores returns the stores config transfer works on.
func (w *Window) Stores() transfer.Stores {
	return transfer.Stores{
		KV:       w.KV,
		Images:   w.Images,
		Settings: w.Settings,
		Prefs:    w.Prefs,
		Themes:   w.Themes,
	}
}

// Close stops the controllers and detaches the window from the bus.
func (w *Window) Close(ctx context.Context) {
	if w.Coordinator != nil {
		w.Coordinator.Close(ctx)
	}
	if w.Overlay != nil {
		w.Overlay.Close()
	}
	if w.Taskbar != nil {
		w.Taskbar.Close(ctx)
	}
	if w.Telemetry != nil {
		w.Telemetry.Close()
	}
	if w.Settings != nil {
		w.Settings.Close()
	}
	if w.Prefs != nil {
		w.Prefs.Close()
	}
	if c, ok := w.Bus.(io.Closer); ok {
		if err := c.Close(); err != nil {
			w.log.Debug().Err(err).Msg("Bus close failed")
		}
	}
	w.log.Info().Msg("Window closed")
}
