package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty should default to false")
	}
	if cfg.Output == nil {
		t.Error("Output should default to stderr")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		debugShown bool
		warnShown  bool
	}{
		{"debug shows everything", "debug", true, true},
		{"info hides debug", "info", false, true},
		{"error hides warn", "error", false, false},
		{"unknown falls back to info", "loud", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			logger.Debug().Msg("debug line")
			logger.Warn().Msg("warn line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.debugShown {
				t.Errorf("debug shown = %v, want %v", got, tt.debugShown)
			}
			if got := strings.Contains(out, "warn line"); got != tt.warnShown {
				t.Errorf("warn shown = %v, want %v", got, tt.warnShown)
			}
		})
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestSetup_JSONAndGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: "info", Output: buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Str("partition", "US/1999").Msg("Partition merged")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("global logger output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["partition"] != "US/1999" || entry["message"] != "Partition merged" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: "info", Pretty: true, Output: buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger.Info().Msg("pretty line")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("pretty output should not be JSON: %q", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: "info", Output: buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := NewLogger("harvest-merge")
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"harvest-merge"`) {
		t.Errorf("component field missing: %s", buf.String())
	}
}
