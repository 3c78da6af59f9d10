package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/api"
	"github.com/bryanchriswhite/pulsecore/internal/app"
	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/host/desktop"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/telemetry"
	"github.com/bryanchriswhite/pulsecore/internal/window"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the main window",
	Long: `Start the PulseCore main window with its REST API and event endpoint.

The main window owns the tray icon, the taskbar strip and the toolkit window,
and is the only window that applies process-level settings such as autostart
and memory trimming. Secondary window processes connect to its event endpoint.`,
	Example: `  # Start on the default port (8080)
  pulsecore serve

  # Start on a custom port with debug logging
  pulsecore serve --port 9090 --log-level debug

  # Keep data somewhere else
  pulsecore serve --data-dir /tmp/pulsecore`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	log.Info().Str("config", configMgr.GetConfigPath()).Str("data_dir", cfg.DataDir).Msg("Configuration loaded")

	store, closeStore, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}
	autostartDir, err := desktop.DefaultAutostartDir()
	if err != nil {
		return err
	}
	sys := desktop.New(autostartDir, exe, "serve")
	defer sys.Close()
	if desktop.Sandboxed() {
		portal, err := desktop.NewPortal()
		if err != nil {
			log.Warn().Err(err).Msg("Background portal unavailable, autostart writes the entry file")
		} else {
			defer portal.Close()
			sys.UsePortal(portal)
		}
	}

	var source telemetry.Source
	if len(cfg.TelemetryCommand) > 0 {
		sidecar := telemetry.NewSidecar(cfg.TelemetryCommand...)
		sidecar.Start(ctx)
		defer sidecar.Stop()
		source = sidecar
	}

	hub := events.NewHub()
	blobs := imagestore.NewBlobs()
	opts := app.Options{
		KV:           store,
		Bus:          hub.Join(label.Main),
		SettingsHost: sys,
		Telemetry:    source,
		URLs:         blobs,
		Frames:       window.Timer(window.FrameInterval),
		Coordinator: window.CoordinatorOptions{
			PollInterval: time.Duration(cfg.FullscreenPollMs) * time.Millisecond,
		},
	}
	h, closeHost := openHost(ctx, cfg)
	defer closeHost()
	if h != nil {
		opts.Host = h
	}

	win, err := app.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to open main window: %w", err)
	}
	defer win.Close(context.Background())

	sys.OnRefreshRate(func(ms int) {
		log.Debug().Int("refresh_rate_ms", ms).Msg("Refresh rate changed")
	})

	server := api.NewServer(win, configMgr, events.NewServer(hub), blobs)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Bool("headless", h == nil).
		Msgf("PulseCore is running: http://localhost:%d/api", cfg.ServerPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
