// Package config provides configuration management for keyroute.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"keyroute/internal/input"
)

// Config represents the application configuration
type Config struct {
	// Targets selects which top-level windows are routed to
	Targets TargetsConfig `json:"targets"`

	// Hook tunes the global input hook
	Hook HookConfig `json:"hook"`

	// Watch lists key names watched as soon as listening starts
	Watch []string `json:"watch"`

	// API contains the HTTP/WebSocket server settings
	API APIConfig `json:"api"`

	// General contains general application settings
	General GeneralConfig `json:"general"`
}

// TargetsConfig describes the target window discovery
type TargetsConfig struct {
	// Executables are process image names (e.g. "game.exe") whose windows are targets
	Executables []string `json:"executables"`

	// RefreshSeconds is the window rescan interval; 0 disables periodic refresh
	RefreshSeconds int `json:"refresh_seconds"`
}

// HookConfig tunes the hook hand-off queue and the pump shutdown
type HookConfig struct {
	QueueSize     int `json:"queue_size"`
	StopTimeoutMs int `json:"stop_timeout_ms"`
}

// APIConfig contains the API server settings
type APIConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`

	// Token is an optional bearer token required on every request
	Token string `json:"token,omitempty"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Tray shows the system tray icon
	Tray bool `json:"tray"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file,omitempty"`

	// StartOnBoot determines if app starts on user logon
	StartOnBoot bool `json:"start_on_boot"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Targets: TargetsConfig{
			Executables:    []string{"game.exe"},
			RefreshSeconds: 5,
		},
		Hook: HookConfig{
			QueueSize:     input.DefaultQueueSize,
			StopTimeoutMs: 2000,
		},
		Watch: []string{},
		API: APIConfig{
			Enabled: true,
			Port:    18090,
		},
		General: GeneralConfig{
			Tray:      true,
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Targets.Executables) == 0 {
		errs = append(errs, errors.New("targets.executables must not be empty"))
	}
	if c.Targets.RefreshSeconds < 0 {
		errs = append(errs, fmt.Errorf("targets.refresh_seconds must not be negative, got %d", c.Targets.RefreshSeconds))
	}
	if c.Hook.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("hook.queue_size must be positive, got %d", c.Hook.QueueSize))
	}
	if c.Hook.StopTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("hook.stop_timeout_ms must be positive, got %d", c.Hook.StopTimeoutMs))
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if _, err := input.ParseKeys(c.Watch); err != nil {
		errs = append(errs, fmt.Errorf("watch: %w", err))
	}
	return errors.Join(errs...)
}

// StopTimeout returns the pump stop timeout as a duration.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Hook.StopTimeoutMs) * time.Millisecond
}

// RefreshInterval returns the window rescan interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Targets.RefreshSeconds) * time.Second
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Targets.Executables = append([]string(nil), c.Targets.Executables...)
	cp.Watch = append([]string(nil), c.Watch...)
	return &cp
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
	logger     *slog.Logger
}

// NewManager creates a configuration manager at the per-user default path
func NewManager(logger *slog.Logger) (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath, logger), nil
}

// NewManagerAt creates a configuration manager for an explicit file path
func NewManagerAt(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
		logger:     logger.With(slog.String("component", "config")),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "keyroute")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "keyroute")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// SetLogger replaces the logger, for managers built before logging was configured
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger.With(slog.String("component", "config"))
}

// Path returns the configuration file location
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if errors.Is(err, os.ErrNotExist) {
		// No config file, use defaults
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}
	m.config = cfg
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	m.logger.Info("Saving configuration", slog.String("path", m.configPath), slog.Int("bytes", len(data)))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Clone()
}

// Set validates and replaces the configuration
func (m *Manager) Set(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = config.Clone()
	cb := m.onChanged
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
