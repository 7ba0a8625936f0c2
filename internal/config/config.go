package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server holds the tetherd configuration, read from config.toml.
//
// Only [server] ip is mandatory; everything else has a default chosen to
// match the deployed fleet.
type Server struct {
	IP                  string   `toml:"ip"`
	Port                int      `toml:"port"`
	ProbeIntervalSecs   int      `toml:"probe_interval_seconds"`
	MaxFrameBytes       int      `toml:"max_frame_bytes"`
	DataDir             string   `toml:"data_dir"`
	HashManifestSources []string `toml:"hash_manifest_sources"`
}

type serverFile struct {
	Server Server `toml:"server"`
}

// LoadServer reads and validates path. A missing or malformed file is a
// startup-fatal error for the caller.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f serverFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg := f.Server
	if cfg.IP == "" {
		return nil, fmt.Errorf("config %s: [server] ip is required", path)
	}
	if net.ParseIP(cfg.IP) == nil {
		return nil, fmt.Errorf("config %s: invalid bind address %q", path, cfg.IP)
	}
	if cfg.Port == 0 {
		cfg.Port = 999
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config %s: invalid port %d", path, cfg.Port)
	}
	if cfg.ProbeIntervalSecs <= 0 {
		cfg.ProbeIntervalSecs = 10
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 64 << 20
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if len(cfg.HashManifestSources) == 0 {
		cfg.HashManifestSources = []string{"/usr/bin"}
	}
	return &cfg, nil
}

// ProbeInterval returns the liveness cycle period.
func (s *Server) ProbeInterval() time.Duration {
	return time.Duration(s.ProbeIntervalSecs) * time.Second
}

// Addr returns the listen address in host:port form.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.IP, s.Port)
}
