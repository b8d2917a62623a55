package solrtmp

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"solrtmp/pkg/rtmp"
)

func TestParseConfigDefaults(t *testing.T) {
	config, err := ParseConfig([]byte("rtmp:\n  url: rtmp://localhost/live\n"))
	if err != nil {
		t.Fatal(err)
	}

	if config.RTMP.ChunkSize != rtmp.DEFAULT_CHUNK_SIZE {
		t.Errorf("expected default chunk size, got %d", config.RTMP.ChunkSize)
	}
	if config.RTMP.ReadWindow != rtmp.DEFAULT_WINDOW_SIZE || config.RTMP.WriteWindow != rtmp.DEFAULT_WINDOW_SIZE {
		t.Errorf("expected default windows, got %d/%d", config.RTMP.ReadWindow, config.RTMP.WriteWindow)
	}
	if config.RTMP.HandshakeTimeout != 10*time.Second {
		t.Errorf("expected 10s handshake timeout, got %s", config.RTMP.HandshakeTimeout)
	}
	if config.Logging.Level != "info" || config.GetSlogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %s", config.Logging.Level)
	}
	if config.Persistence.Kind != "none" {
		t.Errorf("expected no persistence, got %s", config.Persistence.Kind)
	}
}

func TestParseConfigValues(t *testing.T) {
	data := `
rtmp:
  url: rtmp://example.com:1936/live/cam
  chunk_size: 4096
  limit_type: 1
  ping_interval: 5s
  max_inactivity: 30s
logging:
  level: DEBUG
metrics:
  enabled: true
persistence:
  kind: S3
  bucket: shared-objects
`
	config, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if config.RTMP.ChunkSize != 4096 || config.RTMP.LimitType != 1 {
		t.Errorf("unexpected rtmp section %+v", config.RTMP)
	}
	if config.RTMP.PingInterval != 5*time.Second || config.RTMP.MaxInactivity != 30*time.Second {
		t.Errorf("unexpected durations %s %s", config.RTMP.PingInterval, config.RTMP.MaxInactivity)
	}
	if config.GetSlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level")
	}
	if config.Metrics.Listen != ":9090" {
		t.Errorf("expected default metrics listen address, got %q", config.Metrics.Listen)
	}
	if config.Persistence.Kind != "s3" || config.Persistence.Region != "us-east-1" {
		t.Errorf("unexpected persistence section %+v", config.Persistence)
	}

	opts := config.ConnectionOptions()
	if opts.ChunkSize != 4096 || opts.PingInterval != 5*time.Second || opts.MaxInactivity != 30*time.Second {
		t.Errorf("unexpected connection options %+v", opts)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		msg  string
	}{
		{"bad yaml", "rtmp: [", "failed to parse"},
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
		{"bad limit type", "rtmp:\n  limit_type: 3\n", "invalid limit_type"},
		{"bad chunk size", "rtmp:\n  chunk_size: 16777216\n", "invalid chunk_size"},
		{"bad encoding", "rtmp:\n  object_encoding: 1\n", "invalid object_encoding"},
		{"bad url", "rtmp:\n  url: http://example.com/live\n", "invalid rtmp url"},
		{"negative duration", "rtmp:\n  ping_interval: -1s\n", "non-negative"},
		{"file store without dir", "persistence:\n  kind: file\n", "dir is required"},
		{"s3 store without bucket", "persistence:\n  kind: s3\n", "bucket is required"},
		{"unknown store", "persistence:\n  kind: redis\n", "invalid persistence kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("expected %q in %q", tt.msg, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.GetSlogLevel() != slog.LevelWarn {
		t.Errorf("expected warn level, got %s", config.Logging.Level)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestDefaultConfigFile(t *testing.T) {
	config, err := LoadConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("the shipped default config must be valid: %v", err)
	}
	if config.RTMP.URL == "" {
		t.Error("expected a default url")
	}
}
