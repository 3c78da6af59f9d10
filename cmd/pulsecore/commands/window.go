package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/pulsecore/internal/app"
	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/window"
	"github.com/spf13/cobra"
)

var windowLabel string

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Run a secondary window process",
	Long: `Run the taskbar or toolkit window in its own process.

The process connects to the main window's event endpoint and shares the same
storage. It exits when the main window goes away or on Ctrl+C.`,
	Example: `  # Run the taskbar strip
  pulsecore window --label taskbar

  # Connect to a main window on another port
  pulsecore window --label toolkit --event-url ws://127.0.0.1:9090/api/events`,
	RunE: runWindow,
}

func init() {
	windowCmd.Flags().StringVar(&windowLabel, "label", string(label.Taskbar), "window label (taskbar or toolkit)")
	rootCmd.AddCommand(windowCmd)
}

func runWindow(cmd *cobra.Command, args []string) error {
	l := label.Label(windowLabel)
	if !l.Valid() || l.IsMain() {
		return fmt.Errorf("invalid window label %q: must be taskbar or toolkit", windowLabel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithWindow("window", string(l))

	store, closeStore, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	client, err := events.Dial(dctx, cfg.EventURL, l)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to reach main window at %s: %w", cfg.EventURL, err)
	}

	opts := app.Options{
		KV:     store,
		Bus:    client,
		Frames: window.Timer(window.FrameInterval),
	}
	h, closeHost := openHost(ctx, cfg)
	defer closeHost()
	if h != nil {
		opts.Host = h
	}

	win, err := app.Open(ctx, opts)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to open %s window: %w", l, err)
	}
	defer win.Close(context.Background())

	log.Info().Str("url", cfg.EventURL).Msg("Connected to main window")
	select {
	case <-ctx.Done():
	case <-client.Done():
		log.Info().Msg("Main window closed the connection")
	}
	return nil
}
