// Package config loads the YAML-based runtime configuration for a CLUNET
// station daemon: everything a compiled-in Config (clunet.Config) leaves as
// a per-device constant in the original firmware becomes a field here
// (mirrors the breadth of src/config.go's audio_s, trimmed to this link
// layer's concerns).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape for cmd/clunetd and cmd/clunet-bridge.
type Config struct {
	// Device identifies this station on the bus (CLUNET_DEVICE_ID).
	Device struct {
		ID       uint8  `yaml:"id"`
		Name     string `yaml:"name"`
		BitTicks uint8  `yaml:"bit_ticks"` // T; 0 means the default of 16
	} `yaml:"device"`

	// Line selects the GPIO character-device line backing hal.Line.
	Line struct {
		Chip string `yaml:"chip"` // e.g. "gpiochip0"; empty triggers udev auto-discovery
		Line int    `yaml:"line"` // GPIO line offset
	} `yaml:"line"`

	Buffers struct {
		SendSize int `yaml:"send_size"`
		ReadSize int `yaml:"read_size"`
	} `yaml:"buffers"`

	Log struct {
		Level string `yaml:"level"` // debug, info, warn, error
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	// Trace, if Path is set, records every frame seen on the bus to a
	// strftime-named file for offline diagnosis (trace package).
	Trace struct {
		Path string `yaml:"path"`
	} `yaml:"trace"`

	// Bridge configures the TCP forwarding + DNS-SD announcement used by
	// cmd/clunet-bridge and, when listen_addr is set, by cmd/clunetd.
	Bridge struct {
		ListenAddr string `yaml:"listen_addr"`
		Advertise  bool   `yaml:"advertise"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"bridge"`
}

// Load reads and parses a YAML config file, applying defaults for anything
// left zero.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Device.BitTicks == 0 {
		c.Device.BitTicks = 16
	}
	if c.Buffers.SendSize == 0 {
		c.Buffers.SendSize = 128
	}
	if c.Buffers.ReadSize == 0 {
		c.Buffers.ReadSize = 128
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Bridge.ServiceName == "" {
		c.Bridge.ServiceName = fmt.Sprintf("clunet-%d", c.Device.ID)
	}
}
