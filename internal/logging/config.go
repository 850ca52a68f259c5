package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "PSBRIDGE_LOG_LEVEL"
	EnvLogTimestamp = "PSBRIDGE_LOG_TIMESTAMP"
	EnvLogNoColor   = "PSBRIDGE_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure applies the global log level and, for tests, a quiet
// console writer. The runtime writer itself comes from
// observability.InitLogger.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		if profile == ProfileTest {
			level = zerolog.DebugLevel
		}
		if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = lvl
		}
		zerolog.SetGlobalLevel(level)

		if profile == ProfileTest {
			noColor := true
			if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
				noColor = v
			}
			timestamp := false
			if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
				timestamp = v
			}
			output := zerolog.ConsoleWriter{
				Out:        os.Stdout,
				NoColor:    noColor,
				TimeFormat: time.RFC3339,
			}
			ctx := zerolog.New(output).With()
			if timestamp {
				ctx = ctx.Timestamp()
			}
			log.Logger = ctx.Logger()
		}
	})
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
