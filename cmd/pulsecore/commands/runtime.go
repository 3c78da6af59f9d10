package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/app"
	"github.com/bryanchriswhite/pulsecore/internal/config"
	"github.com/bryanchriswhite/pulsecore/internal/events"
	"github.com/bryanchriswhite/pulsecore/internal/host/x11"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/spf13/viper"
)

const dialTimeout = 3 * time.Second

// loadConfig reads the config file and layers flag and environment
// overrides on top.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()
	if port := viper.GetInt("server_port"); port != 0 {
		cfg.ServerPort = port
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if dir := viper.GetString("data_dir"); dir != "" {
		cfg.DataDir = dir
	}
	if url := viper.GetString("event_url"); url != "" {
		cfg.EventURL = url
	}
	if cfg.EventURL == "" {
		cfg.EventURL = fmt.Sprintf("ws://127.0.0.1:%d/api/events", cfg.ServerPort)
	}
	logger.Init(cfg.LogLevel, isTerminal(int(os.Stderr.Fd())))
	return configMgr, cfg, nil
}

// openStorage opens the configured backend. The SQLite database falls back
// to the file store when it cannot be written.
func openStorage(cfg *config.Config) (*kv.KV, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	files, err := kv.NewFileStore(filepath.Join(cfg.DataDir, "kv"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file store: %w", err)
	}
	if cfg.StorageBackend == config.BackendFile {
		return kv.New(files, nil), func() {}, nil
	}

	db, err := kv.OpenSQLite(filepath.Join(cfg.DataDir, "pulsecore.db"))
	if err != nil {
		logger.WithComponent("storage").Warn().Err(err).Msg("SQLite unavailable, using file store")
		return kv.New(files, nil), func() {}, nil
	}
	return kv.New(db, files), func() { db.Close() }, nil
}

// openHost returns an X11-backed window host, or nil to run headless.
func openHost(ctx context.Context, cfg *config.Config) (*x11.Host, func()) {
	if !cfg.X11Enabled {
		return nil, func() {}
	}
	probe, err := x11.NewProbe()
	if err != nil {
		logger.WithComponent("host").Warn().Err(err).Msg("X11 unavailable, running headless")
		return nil, func() {}
	}
	return x11.NewHost(ctx, probe), func() { probe.Close() }
}

// openBus dials the running main window as l. Without one, the command
// gets a private hub so it can still work on storage directly.
func openBus(ctx context.Context, cfg *config.Config, l label.Label) events.Bus {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	client, err := events.Dial(dctx, cfg.EventURL, l)
	if err == nil {
		return client
	}
	logger.WithComponent("cli").Debug().Err(err).Str("url", cfg.EventURL).Msg("Main window not reachable, working offline")
	return events.NewHub().Join(l)
}

// openCLIWindow opens a headless window for one-shot commands. It joins as
// the toolkit so its writes reach the running windows.
func openCLIWindow(ctx context.Context) (*app.Window, func(), error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	win, err := app.Open(ctx, app.Options{
		KV:  store,
		Bus: openBus(ctx, cfg, label.Toolkit),
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return win, func() {
		flush(win)
		win.Close(context.Background())
		closeStore()
	}, nil
}

// flush waits for queued events to leave the process.
func flush(win *app.Window) {
	if f, ok := win.Bus.(interface{ Flush() }); ok {
		f.Flush()
	}
}
