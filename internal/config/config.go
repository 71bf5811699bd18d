// Package config loads the BGP daemon's configuration: a YAML file
// overlaid by BGPD_-prefixed environment variables, following the same
// koanf layering used elsewhere in the pack for service configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level daemon configuration.
type Config struct {
	Service Service                 `koanf:"service"`
	Metrics Metrics                 `koanf:"metrics"`
	Peers   map[string]PeerTemplate `koanf:"peers"`
}

// Service holds the daemon-wide listener and identity settings.
type Service struct {
	Listen        string        `koanf:"listen"`
	LocalASN      uint32        `koanf:"local_asn"`
	LocalRouterID string        `koanf:"local_router_id"`
	HoldTime      time.Duration `koanf:"hold_time"`
	LogLevel      string        `koanf:"log_level"`
}

// Metrics holds the Prometheus HTTP exporter settings.
type Metrics struct {
	Listen string `koanf:"listen"`
}

// PeerTemplate configures one neighbor or a neighbor block matched by
// longest-prefix-match over the inbound connection's remote address
// (spec.md §4.5's "peers: a trie mapping peer address -> BaseSession
// template").
type PeerTemplate struct {
	// Network is the CIDR this template matches, e.g. "192.0.2.1/32"
	// for a single neighbor or "198.51.100.0/24" for a dynamic block.
	Network string `koanf:"network"`

	RemoteASN     uint32        `koanf:"remote_asn"`
	LocalASN      uint32        `koanf:"local_asn"`
	LocalRouterID string        `koanf:"local_router_id"`
	HoldTime      time.Duration `koanf:"hold_time"`

	// Passive disables outbound dialing for this template; the session
	// is only ever established by the peer connecting in.
	Passive bool `koanf:"passive"`

	AdvertiseASN4    bool     `koanf:"advertise_asn4"`
	AddPathProtocols []string `koanf:"add_path_protocols"`
	Protocols        []string `koanf:"protocols"`
}

// Load reads path (if non-empty) as YAML, overlays BGPD_-prefixed
// environment variables (BGPD_SERVICE__LISTEN -> service.listen), fills
// in defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("BGPD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPD_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{
		Service: Service{
			Listen:   ":179",
			HoldTime: 90 * time.Second,
			LogLevel: "info",
		},
		Metrics: Metrics{
			Listen: ":9179",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields Load cannot default or that cross-reference
// each other.
func (c *Config) Validate() error {
	if c.Service.LocalASN == 0 {
		return fmt.Errorf("config: service.local_asn is required")
	}
	if c.Service.LocalRouterID == "" {
		return fmt.Errorf("config: service.local_router_id is required")
	}
	if c.Service.HoldTime < 0 {
		return fmt.Errorf("config: service.hold_time must be >= 0 (got %v)", c.Service.HoldTime)
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("config: at least one entry in peers is required")
	}
	for name, p := range c.Peers {
		if p.Network == "" {
			return fmt.Errorf("config: peers.%s.network is required", name)
		}
		if p.RemoteASN == 0 {
			return fmt.Errorf("config: peers.%s.remote_asn is required", name)
		}
	}
	switch c.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: service.log_level %q is not one of debug/info/warn/error", c.Service.LogLevel)
	}
	return nil
}
