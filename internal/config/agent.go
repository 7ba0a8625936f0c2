package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent holds the tether-agent configuration. The file is optional;
// command-line flags override anything set here.
type Agent struct {
	Server           string `yaml:"server"`
	Port             int    `yaml:"port"`
	ReconnectSeconds int    `yaml:"reconnect_seconds"`
	MaxFrameBytes    int    `yaml:"max_frame_bytes"`
}

// LoadAgent reads path if it exists and fills defaults. A missing file
// yields a default config, not an error.
func LoadAgent(path string) (*Agent, error) {
	cfg := &Agent{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 999
	}
	if cfg.ReconnectSeconds <= 0 {
		cfg.ReconnectSeconds = 10
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 64 << 20
	}
	return cfg, nil
}

// ReconnectInterval returns the redial backoff period.
func (a *Agent) ReconnectInterval() time.Duration {
	return time.Duration(a.ReconnectSeconds) * time.Second
}
