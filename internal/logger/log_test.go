package logger

import (
	"bytes"
	"strings"
	"testing"

	"collector-decode/internal/config"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestNewWritesJSONWithServiceFields(t *testing.T) {
	cfg := config.Defaults()
	cfg.ServiceName = "collector-test"
	cfg.InstanceID = "i-1"
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	l := New(cfg, &buf)
	l.Info().Str("k", "v").Msg("hello")
	l.Debug().Msg("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	for k, want := range map[string]string{"service": "collector-test", "instance": "i-1", "message": "hello", "k": "v", "level": "info"} {
		if entry[k] != want {
			t.Errorf("%s = %v, want %q", k, entry[k], want)
		}
	}
}

func TestNewSamplesInfoButNotWarn(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogSampleN = 3
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	l := New(cfg, &buf)
	for i := 0; i < 6; i++ {
		l.Info().Msg("info")
		l.Warn().Msg("warn")
	}

	out := buf.String()
	if n := strings.Count(out, `"message":"warn"`); n != 6 {
		t.Errorf("warn lines = %d, want 6", n)
	}
	if n := strings.Count(out, `"message":"info"`); n != 2 {
		t.Errorf("info lines = %d, want 2", n)
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogLevel = "loud"
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	l := New(cfg, &buf)
	l.Debug().Msg("debug")
	l.Info().Msg("info")

	if strings.Contains(buf.String(), `"debug"`) || !strings.Contains(buf.String(), `"info"`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
