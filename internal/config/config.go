// Package config handles the on-disk YAML configuration: the HTTP server
// settings and the set of camera instances to bring up.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/camctl/gigecam/internal/logger"
)

// CameraConfig describes one camera instance.
type CameraConfig struct {
	// Name identifies the instance to the API and logs. Unique.
	Name string `json:"name" yaml:"name"`
	// ID is the camera's numeric unique ID or its network address/name.
	ID string `json:"id" yaml:"id"`
	// FrameBuffers overrides the transfer descriptor count (0 = default).
	FrameBuffers int `json:"frame_buffers,omitempty" yaml:"frame_buffers,omitempty"`
	// RetryCount overrides the access-wait poll budget (0 = default).
	RetryCount int `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	// RetryIntervalMS overrides the access-wait poll interval (0 = default).
	RetryIntervalMS int `json:"retry_interval_ms,omitempty" yaml:"retry_interval_ms,omitempty"`
	// Metadata is attached to every image the instance produces.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RetryInterval returns the configured poll interval as a duration.
func (c CameraConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMS) * time.Millisecond
}

// Config represents the application configuration
type Config struct {
	ServerPort int            `json:"server_port" yaml:"server_port"`
	LogLevel   string         `json:"log_level" yaml:"log_level"`
	Simulate   bool           `json:"simulate" yaml:"simulate"`
	Cameras    []CameraConfig `json:"cameras" yaml:"cameras"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager. With an empty configFile
// the default path under the user's config directory is used and created
// with defaults if missing.
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "gigecam")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: actualConfigPath}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
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
		Int("cameras", len(m.config.Cameras)).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func (m *Manager) getDefaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Cameras:    []CameraConfig{},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Cameras == nil {
		cfg.Cameras = []CameraConfig{}
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
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
	cfg.Cameras = make([]CameraConfig, len(m.config.Cameras))
	copy(cfg.Cameras, m.config.Cameras)
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

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
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

// Update replaces the entire configuration and persists it.
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// Cameras returns a copy of the configured camera instances.
func (m *Manager) Cameras() []CameraConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CameraConfig, len(m.config.Cameras))
	copy(out, m.config.Cameras)
	return out
}

// AddCamera appends a camera instance. Names must be unique.
func (m *Manager) AddCamera(cc CameraConfig) error {
	if cc.Name == "" {
		return fmt.Errorf("camera name is required")
	}
	if cc.ID == "" {
		return fmt.Errorf("camera id is required")
	}

	m.mu.Lock()
	for _, existing := range m.config.Cameras {
		if existing.Name == cc.Name {
			m.mu.Unlock()
			return fmt.Errorf("camera %q already configured", cc.Name)
		}
	}
	m.config.Cameras = append(m.config.Cameras, cc)
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("name", cc.Name).
		Str("id", cc.ID).
		Msg("Added camera to config")
	return m.Save()
}

// RemoveCamera removes a camera instance by name.
func (m *Manager) RemoveCamera(name string) error {
	m.mu.Lock()
	found := false
	filtered := make([]CameraConfig, 0, len(m.config.Cameras))
	for _, cc := range m.config.Cameras {
		if cc.Name != name {
			filtered = append(filtered, cc)
		} else {
			found = true
		}
	}
	m.config.Cameras = filtered
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("camera not found: %s", name)
	}
	return m.Save()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
