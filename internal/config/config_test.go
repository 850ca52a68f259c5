package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"psbridge/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "psbridge.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
device_name = "FAST-PS 1020"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DeviceName != "FAST-PS 1020" {
		t.Fatalf("device name: %q", cfg.DeviceName)
	}
	if cfg.CommandAddr != DefaultCommandAddr {
		t.Fatalf("command addr default: %q", cfg.CommandAddr)
	}
	if cfg.CommandTimeout != DefaultCommandTimeout {
		t.Fatalf("command timeout default: %v", cfg.CommandTimeout)
	}
	if cfg.UDPAddr != DefaultUDPAddr {
		t.Fatalf("udp addr default: %q", cfg.UDPAddr)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Fatalf("poll interval default: %v", cfg.PollInterval)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
device_name = "FAST-PS"
command_addr = "127.0.0.1:10001"
command_timeout = "500ms"
udp_addr = ":16665"
poll_interval = "1ms"
ops_addr = ":9100"
max_registers = 8

[[registers]]
number = 3
name = "RampRate"
description = "output ramp rate"

[[registers]]
number = 9
name = "Kp"
description = "loop gain"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CommandTimeout != 500*time.Millisecond {
		t.Fatalf("command timeout: %v", cfg.CommandTimeout)
	}
	if cfg.PollInterval != time.Millisecond {
		t.Fatalf("poll interval: %v", cfg.PollInterval)
	}
	regs := cfg.DeviceRegisters()
	if len(regs) != 2 || regs[0].Name != "RampRate" || regs[1].Number != 9 {
		t.Fatalf("registers: %+v", regs)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `command_timeout = "soon"`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadRejectsDuplicateRegisterNames(t *testing.T) {
	path := writeConfig(t, `
[[registers]]
number = 1
name = "Kp"

[[registers]]
number = 2
name = "Kp"
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadRejectsTooManyRegisters(t *testing.T) {
	path := writeConfig(t, `
max_registers = 1

[[registers]]
number = 1
name = "A"

[[registers]]
number = 2
name = "B"
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
