package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config is the process configuration. Everything users tune at runtime
// lives in the key-value store; this file only says how to start.
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`

	// DataDir holds the database and the file fallback store.
	DataDir        string `json:"data_dir" yaml:"data_dir"`
	StorageBackend string `json:"storage_backend" yaml:"storage_backend"`

	// EventURL is the main window's event endpoint that secondary window
	// processes dial.
	EventURL string `json:"event_url" yaml:"event_url"`

	FullscreenPollMs int      `json:"fullscreen_poll_ms" yaml:"fullscreen_poll_ms"`
	TelemetryCommand []string `json:"telemetry_command" yaml:"telemetry_command"`
	X11Enabled       bool     `json:"x11_enabled" yaml:"x11_enabled"`
}

// Keys lists the settable keys in file order.
var Keys = []string{
	"server_port",
	"log_level",
	"data_dir",
	"storage_backend",
	"event_url",
	"fullscreen_poll_ms",
	"telemetry_command",
	"x11_enabled",
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultDir is $HOME/.config/pulsecore.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pulsecore"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	configDir, err := DefaultDir()
	if err != nil {
		return nil, err
	}

	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = m.getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("storage", m.config.StorageBackend).
		Msg("Config loaded")

	return m, nil
}

func (m *Manager) getDefaults() *Config {
	return &Config{
		ServerPort:       8080,
		LogLevel:         "info",
		DataDir:          filepath.Join(filepath.Dir(m.configPath), "data"),
		StorageBackend:   BackendSQLite,
		FullscreenPollMs: 800,
		X11Enabled:       true,
	}
}

// load reads the configuration from disk, filling unset fields with defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := *m.getDefaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.StorageBackend != BackendSQLite && cfg.StorageBackend != BackendFile {
		logger.WithComponent("config").Warn().
			Str("storage_backend", cfg.StorageBackend).
			Msg("Unknown storage backend, using sqlite")
		cfg.StorageBackend = BackendSQLite
	}
	if cfg.FullscreenPollMs <= 0 {
		cfg.FullscreenPollMs = 800
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}
	cfg := *m.config
	cfg.TelemetryCommand = append([]string(nil), m.config.TelemetryCommand...)
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = m.getDefaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// Lookup returns the value of key formatted for display.
func (m *Manager) Lookup(key string) (string, error) {
	cfg := m.Get()
	switch key {
	case "server_port":
		return strconv.Itoa(cfg.ServerPort), nil
	case "log_level":
		return cfg.LogLevel, nil
	case "data_dir":
		return cfg.DataDir, nil
	case "storage_backend":
		return cfg.StorageBackend, nil
	case "event_url":
		return cfg.EventURL, nil
	case "fullscreen_poll_ms":
		return strconv.Itoa(cfg.FullscreenPollMs), nil
	case "telemetry_command":
		return strings.Join(cfg.TelemetryCommand, " "), nil
	case "x11_enabled":
		return strconv.FormatBool(cfg.X11Enabled), nil
	}
	return "", fmt.Errorf("configuration key not found: %s", key)
}

// Set parses value for key, applies it and saves.
func (m *Manager) Set(key, value string) error {
	m.mu.Lock()
	cfg := m.config
	if cfg == nil {
		cfg = m.getDefaults()
		m.config = cfg
	}

	switch key {
	case "server_port":
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			m.mu.Unlock()
			return fmt.Errorf("invalid port number: %s", value)
		}
		cfg.ServerPort = port
	case "log_level":
		if !validLevels[value] {
			m.mu.Unlock()
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		cfg.LogLevel = value
	case "data_dir":
		cfg.DataDir = value
	case "storage_backend":
		if value != BackendSQLite && value != BackendFile {
			m.mu.Unlock()
			return fmt.Errorf("invalid storage backend: %s (use: sqlite, file)", value)
		}
		cfg.StorageBackend = value
	case "event_url":
		cfg.EventURL = value
	case "fullscreen_poll_ms":
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			m.mu.Unlock()
			return fmt.Errorf("invalid interval: %s", value)
		}
		cfg.FullscreenPollMs = ms
	case "telemetry_command":
		cfg.TelemetryCommand = strings.Fields(value)
	case "x11_enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("invalid boolean: %s (use: true or false)", value)
		}
		cfg.X11Enabled = enabled
	default:
		m.mu.Unlock()
		return fmt.Errorf("configuration key not found: %s", key)
	}
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
