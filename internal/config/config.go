package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// ConnectionConfig holds everything needed to reach the server except the
// password, which is only read from the environment.
type ConnectionConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port,omitempty"`
	Username   string `yaml:"username"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
}

type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	BaseBackoff string `yaml:"base_backoff,omitempty"`
	MaxBackoff  string `yaml:"max_backoff,omitempty"`
}

type TransferConfig struct {
	ChunkSize         int    `yaml:"chunk_size,omitempty"`
	KeepaliveInterval string `yaml:"keepalive_interval,omitempty"`
	DialTimeout       string `yaml:"dial_timeout,omitempty"`
}

type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Root       string           `yaml:"root,omitempty"`
	Retry      RetryConfig      `yaml:"retry,omitempty"`
	Transfer   TransferConfig   `yaml:"transfer,omitempty"`
}

const ConfigFileName = "csvdelta.yaml"

// Load reads csvdelta.yaml from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a config file from an explicit path.
func LoadFile(configPath string) (*ProjectConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Save writes cfg to dir/csvdelta.yaml, replacing any existing file.
func Save(dir string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0644)
}
