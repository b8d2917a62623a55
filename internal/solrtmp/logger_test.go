package solrtmp

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerLevelAndSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn, true)

	logger.Info("hidden")
	logger.Warn("shown", "sessionId", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info must be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "sessionId=abc") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected the source file in %q", out)
	}
}

func TestGetProjectRoot(t *testing.T) {
	if got := getProjectRoot("/src/solrtmp/internal/solrtmp/logger.go"); got != "/src/solrtmp" {
		t.Errorf("expected /src/solrtmp, got %s", got)
	}
}
