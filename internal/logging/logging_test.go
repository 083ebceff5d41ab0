package logging_test

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"fluve/internal/logging"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		v    int
		want zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		if got := logging.Level(tt.v); got != tt.want {
			t.Errorf("Level(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := map[string]int{"": 0, "1": 1, "vv": 2, "v": 1, "INFO": 1, "debug": 2, "loud": 0}
	for in, want := range tests {
		if got := logging.ParseVerbosity(in); got != want {
			t.Errorf("ParseVerbosity(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	log, err := logging.New(1, "production")
	if err != nil {
		t.Fatal(err)
	}
	if !log.Core().Enabled(zapcore.InfoLevel) || log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbosity 1 should enable info but not debug")
	}
}
