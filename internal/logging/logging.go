package logging

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level maps a -v count onto a zap level: 0 warn, 1 info, 2 or more debug.
func Level(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 0:
		return zapcore.WarnLevel
	case verbosity == 1:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ParseVerbosity reads a VERBOSITY value: a count ("2"), a run of v's
// ("vv"), or a level name ("info"). Unknown values are 0.
func ParseVerbosity(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	switch s {
	case "debug":
		return 2
	case "info":
		return 1
	}
	if s != "" && strings.Trim(s, "v") == "" {
		return len(s)
	}
	return 0
}

// New creates a logger at the level for verbosity. mode "production" uses
// the JSON encoder; anything else gets the coloured console encoder.
func New(verbosity int, mode string) (*zap.Logger, error) {
	var config zap.Config

	if mode == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.Level = zap.NewAtomicLevelAt(Level(verbosity))
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return config.Build(zap.AddCaller())
}
