// Package config loads the YAML configuration both isocks and osocks
// read: up to MaxServers upstream entries plus a local bind endpoint.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxServers bounds the upstream list length.
const MaxServers = 64

// DefaultIdleTimeout is the relay-phase idle deadline applied when the
// config omits one.
const DefaultIdleTimeout = 120 * time.Second

// ServerEntry is one upstream osocks endpoint the client load-balances
// across. PSK falls back to the top-level shared PSK when empty.
type ServerEntry struct {
	Addr string `yaml:"address"`
	PSK  string `yaml:"psk,omitempty"`
}

// Config is the top-level YAML configuration shared by both binaries;
// each only consumes the fields relevant to its role.
type Config struct {
	// Servers lists upstream osocks endpoints (client role only).
	// "upstreams" is accepted as a field-name alias for compatibility.
	Servers []ServerEntry `yaml:"servers"`

	// LocalAddr and LocalPort are the bind address and port for the
	// role's own listener —
	// SOCKS5 ingress for isocks, the inner protocol for osocks.
	LocalAddr string `yaml:"local_address"`
	LocalPort int    `yaml:"local_port"`

	// PSK is the shared pre-shared key used when a ServerEntry omits
	// its own, and is always what osocks's own listener uses.
	PSK string `yaml:"psk"`

	// IdleTimeout bounds how long an ESTAB connection may sit with no
	// bytes moving in either direction before it is torn down.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type rawConfig struct {
	Servers     []ServerEntry `yaml:"servers"`
	Upstreams   []ServerEntry `yaml:"upstreams"`
	LocalAddr   string        `yaml:"local_address"`
	LocalPort   int           `yaml:"local_port"`
	PSK         string        `yaml:"psk"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.LocalAddr = raw.LocalAddr
	c.LocalPort = raw.LocalPort
	c.PSK = raw.PSK
	c.IdleTimeout = raw.IdleTimeout
	if len(raw.Servers) > 0 {
		c.Servers = raw.Servers
	} else {
		c.Servers = raw.Upstreams
	}
	return nil
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	if err := cfg.validateServers(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validateServers() error {
	if len(c.Servers) > MaxServers {
		return fmt.Errorf("config: %d servers exceeds maximum of %d", len(c.Servers), MaxServers)
	}
	for i, s := range c.Servers {
		if _, _, err := net.SplitHostPort(s.Addr); err != nil {
			return fmt.Errorf("config: servers[%d]: invalid address %q: %w", i, s.Addr, err)
		}
		if s.PSK == "" && c.PSK == "" {
			return fmt.Errorf("config: servers[%d]: no psk configured (set servers[%d].psk or the top-level psk)", i, i)
		}
	}
	return nil
}

// EffectivePSK returns the entry's own PSK, or the config's shared one.
func (e ServerEntry) EffectivePSK(shared string) string {
	if e.PSK != "" {
		return e.PSK
	}
	return shared
}

// ApplySingleServer overlays CLI single-server-mode flags (-s/-p/-k)
// onto a loaded (or empty) config, replacing the server list with
// exactly one entry.
func (c *Config) ApplySingleServer(addr string, port int, psk string) error {
	if addr == "" {
		return nil
	}
	if port == 0 {
		port = 1205
	}
	c.Servers = []ServerEntry{{Addr: net.JoinHostPort(addr, strconv.Itoa(port)), PSK: psk}}
	if psk != "" {
		c.PSK = psk
	}
	return c.validateServers()
}

// ApplyLocalFlags overlays the -b/-l bind flags.
func (c *Config) ApplyLocalFlags(bindAddr string, bindPort int) {
	if bindAddr != "" {
		c.LocalAddr = bindAddr
	}
	if bindPort != 0 {
		c.LocalPort = bindPort
	}
}

// LocalListenAddr formats the configured bind address/port for net.Listen.
func (c *Config) LocalListenAddr() string {
	return net.JoinHostPort(c.LocalAddr, strconv.Itoa(c.LocalPort))
}
