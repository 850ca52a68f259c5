package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"psbridge/internal/device"
)

// Defaults match the device-resident deployment: the command server is
// the device's own TCP service on loopback, the control protocol lives
// on its historical UDP port.
const (
	DefaultDeviceName     = "FAST-PS"
	DefaultCommandAddr    = "127.0.0.1:10001"
	DefaultUDPAddr        = ":16665"
	DefaultCommandTimeout = 1 * time.Second
	DefaultPollInterval   = 100 * time.Microsecond
)

var ErrInvalid = errors.New("config: invalid configuration")

// RegisterConfig is one generic register declaration.
type RegisterConfig struct {
	Number      uint16 `toml:"number"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Config is the full bridge configuration. Malformed configuration is
// fatal before any socket is opened.
type Config struct {
	DeviceName     string
	CommandAddr    string
	CommandTimeout time.Duration
	UDPAddr        string
	PollInterval   time.Duration
	OpsAddr        string
	CorsOrigins    []string
	MaxRegisters   int
	Registers      []RegisterConfig
}

type fileConfig struct {
	DeviceName     string           `toml:"device_name"`
	CommandAddr    string           `toml:"command_addr"`
	CommandTimeout string           `toml:"command_timeout"`
	UDPAddr        string           `toml:"udp_addr"`
	PollInterval   string           `toml:"poll_interval"`
	OpsAddr        string           `toml:"ops_addr"`
	CorsOrigins    []string         `toml:"cors_origins"`
	MaxRegisters   int              `toml:"max_registers"`
	Registers      []RegisterConfig `toml:"registers"`
}

// Default returns the configuration used when no file overrides apply.
func Default() Config {
	return Config{
		DeviceName:     DefaultDeviceName,
		CommandAddr:    DefaultCommandAddr,
		CommandTimeout: DefaultCommandTimeout,
		UDPAddr:        DefaultUDPAddr,
		PollInterval:   DefaultPollInterval,
		MaxRegisters:   device.DefaultMaxRegisters,
	}
}

// Load reads and validates a TOML configuration file, filling defaults
// for absent fields.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("device_name") {
		cfg.DeviceName = strings.TrimSpace(raw.DeviceName)
	}
	if meta.IsDefined("command_addr") {
		cfg.CommandAddr = strings.TrimSpace(raw.CommandAddr)
	}
	if meta.IsDefined("command_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CommandTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse command_timeout: %v", ErrInvalid, err)
		}
		cfg.CommandTimeout = d
	}
	if meta.IsDefined("udp_addr") {
		cfg.UDPAddr = strings.TrimSpace(raw.UDPAddr)
	}
	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse poll_interval: %v", ErrInvalid, err)
		}
		cfg.PollInterval = d
	}
	if meta.IsDefined("ops_addr") {
		cfg.OpsAddr = strings.TrimSpace(raw.OpsAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("max_registers") {
		cfg.MaxRegisters = raw.MaxRegisters
	}
	cfg.Registers = raw.Registers

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system relies on.
// Register name uniqueness and the count bound are enforced again by
// device.NewRegistry; failing early here keeps sockets closed.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DeviceName) == "" {
		return fmt.Errorf("%w: missing device_name", ErrInvalid)
	}
	if strings.TrimSpace(cfg.CommandAddr) == "" {
		return fmt.Errorf("%w: missing command_addr", ErrInvalid)
	}
	if cfg.CommandTimeout <= 0 {
		return fmt.Errorf("%w: command_timeout must be positive", ErrInvalid)
	}
	if strings.TrimSpace(cfg.UDPAddr) == "" {
		return fmt.Errorf("%w: missing udp_addr", ErrInvalid)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if cfg.MaxRegisters <= 0 {
		return fmt.Errorf("%w: max_registers must be positive", ErrInvalid)
	}
	if len(cfg.Registers) > cfg.MaxRegisters {
		return fmt.Errorf("%w: %d registers configured, maximum %d", ErrInvalid, len(cfg.Registers), cfg.MaxRegisters)
	}
	seen := make(map[string]struct{}, len(cfg.Registers))
	for i, reg := range cfg.Registers {
		name := strings.TrimSpace(reg.Name)
		if name == "" {
			return fmt.Errorf("%w: registers[%d] missing name", ErrInvalid, i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate register name %q", ErrInvalid, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// DeviceRegisters converts the configured register list into the device
// package's register type, in declaration order.
func (c Config) DeviceRegisters() []device.Register {
	out := make([]device.Register, len(c.Registers))
	for i, reg := range c.Registers {
		out[i] = device.Register{
			Number:      reg.Number,
			Name:        strings.TrimSpace(reg.Name),
			Description: reg.Description,
		}
	}
	return out
}
