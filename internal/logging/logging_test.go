package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")

	log.Info("hidden")
	log.Warn("shown", slog.String("symbol", "bitcoin"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level:\n%s", out)
	}
	for _, want := range []string{"level=WARN", "msg=shown", "symbol=bitcoin"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "JSON")

	log.Debug("poll", slog.Int("symbols", 2))

	out := buf.String()
	if !strings.Contains(out, `"msg":"poll"`) || !strings.Contains(out, `"symbols":2`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDiscard_DropsEverything(t *testing.T) {
	log := Discard()
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("discard logger should not be enabled")
	}
}
