// Package config provides the YAML configuration of the bletemp tool
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Supported backends
const (
	BackendGatt   = "gatt"
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
	BackendSim    = "sim"
)

// Config holds all application configuration
type Config struct {
	Backend        string        `yaml:"backend"`
	NameMatch      string        `yaml:"name_match" default:"Temperature"`
	ScanDwell      time.Duration `yaml:"scan_dwell" default:"2s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"20s"`
	DecodeMode     string        `yaml:"decode_mode" default:"millidegree"`
	SampleBuffer   int           `yaml:"sample_buffer" default:"64"`
	FrameInterval  time.Duration `yaml:"frame_interval" default:"100ms"`
	LogLevel       string        `yaml:"log_level" default:"info"`
	Sim            SimConfig     `yaml:"sim"`
}

// SimConfig holds the settings of the simulated thermometer
type SimConfig struct {
	AppearAfter time.Duration `yaml:"appear_after" default:"500ms"`
	Interval    time.Duration `yaml:"interval" default:"1s"`
	BaseCelsius float64       `yaml:"base_celsius" default:"22"`
	Fahrenheit  bool          `yaml:"fahrenheit"`
}

// DefaultBackend returns the backend used if none is configured
func DefaultBackend() string {
	if runtime.GOOS == "linux" {
		return BackendGatt
	}
	return BackendTinyGo
}

// Default returns a Config with all default values
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML config file. Fields absent from the file
// keep their defaults, explicit values (including zero) are kept as given
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend()
	}

	return cfg, nil
}

// Validate checks the config for invalid values
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGatt, BackendGoBLE, BackendTinyGo, BackendSim:
	default:
		return fmt.Errorf("backend must be gatt, goble, tinygo or sim, got %q", c.Backend)
	}

	if c.NameMatch == "" {
		return errors.New("name_match must not be empty")
	}
	if c.ScanDwell < 0 {
		return fmt.Errorf("scan_dwell must not be negative, got %v", c.ScanDwell)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0, got %v", c.ConnectTimeout)
	}
	if _, err := bletemp.ParseDecodeMode(c.DecodeMode); err != nil {
		return fmt.Errorf("decode_mode: %w", err)
	}
	if c.SampleBuffer <= 0 {
		return fmt.Errorf("sample_buffer must be > 0, got %d", c.SampleBuffer)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be > 0, got %v", c.FrameInterval)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Backend == BackendSim {
		if c.Sim.AppearAfter < 0 {
			return fmt.Errorf("sim.appear_after must not be negative, got %v", c.Sim.AppearAfter)
		}
		if c.Sim.Interval <= 0 {
			return fmt.Errorf("sim.interval must be > 0, got %v", c.Sim.Interval)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	defaults.SetDefaults(c)
	if c.Backend == "" {
		c.Backend = DefaultBackend()
	}
}
