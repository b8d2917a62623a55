package solrtmp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"solrtmp/pkg/rtmp"
)

type Config struct {
	RTMP        RTMPConfig        `yaml:"rtmp"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type RTMPConfig struct {
	URL              string        `yaml:"url"`
	ChunkSize        uint32        `yaml:"chunk_size"`
	ReadWindow       uint32        `yaml:"read_window"`
	WriteWindow      uint32        `yaml:"write_window"`
	LimitType        uint8         `yaml:"limit_type"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	MaxInactivity    time.Duration `yaml:"max_inactivity"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	AckInterval      uint32        `yaml:"ack_interval"`
	ObjectEncoding   int           `yaml:"object_encoding"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type PersistenceConfig struct {
	Kind      string `yaml:"kind"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfigPath is used when no --config flag is given.
var DefaultConfigPath = filepath.Join("configs", "default.yaml")

// LoadConfig loads configuration from a yaml file
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses yaml, applies defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// validate fills in defaults and checks ranges
func (c *Config) validate() error {
	r := &c.RTMP
	if r.ChunkSize == 0 {
		r.ChunkSize = rtmp.DEFAULT_CHUNK_SIZE
	}
	if r.ChunkSize > rtmp.MAX_CHUNK_SIZE {
		return fmt.Errorf("invalid chunk_size: %d (must be between 1-%d)", r.ChunkSize, rtmp.MAX_CHUNK_SIZE)
	}
	if r.ReadWindow == 0 {
		r.ReadWindow = rtmp.DEFAULT_WINDOW_SIZE
	}
	if r.WriteWindow == 0 {
		r.WriteWindow = rtmp.DEFAULT_WINDOW_SIZE
	}
	if r.LimitType > rtmp.LIMIT_TYPE_DYNAMIC {
		return fmt.Errorf("invalid limit_type: %d (must be 0, 1 or 2)", r.LimitType)
	}
	if r.AckInterval == 0 {
		r.AckInterval = rtmp.DEFAULT_ACK_INTERVAL
	}
	if r.HandshakeTimeout == 0 {
		r.HandshakeTimeout = 10 * time.Second
	}
	if r.PingInterval < 0 || r.MaxInactivity < 0 || r.HandshakeTimeout < 0 {
		return fmt.Errorf("durations must be non-negative")
	}
	if r.ObjectEncoding != 0 && r.ObjectEncoding != 3 {
		return fmt.Errorf("invalid object_encoding: %d (must be 0 or 3)", r.ObjectEncoding)
	}
	if r.URL != "" {
		if _, err := rtmp.ParseTarget(r.URL); err != nil {
			return fmt.Errorf("invalid rtmp url: %w", err)
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.Logging.Level, validLevels)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}

	p := &c.Persistence
	p.Kind = strings.ToLower(p.Kind)
	switch p.Kind {
	case "", "none":
		p.Kind = "none"
	case "file":
		if p.Dir == "" {
			return fmt.Errorf("persistence dir is required for the file store")
		}
	case "s3":
		if p.Bucket == "" {
			return fmt.Errorf("persistence bucket is required for the s3 store")
		}
		if p.Region == "" {
			p.Region = "us-east-1"
		}
	default:
		return fmt.Errorf("invalid persistence kind: %s (must be one of: none, file, s3)", p.Kind)
	}

	return nil
}

// GetSlogLevel returns slog.Level from config
func (c *Config) GetSlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConnectionOptions maps the rtmp section onto connection options.
func (c *Config) ConnectionOptions() rtmp.Options {
	opts := rtmp.DefaultOptions()
	opts.ChunkSize = c.RTMP.ChunkSize
	opts.AckInterval = c.RTMP.AckInterval
	opts.PingInterval = c.RTMP.PingInterval
	if c.RTMP.MaxInactivity > 0 {
		opts.MaxInactivity = c.RTMP.MaxInactivity
	}
	return opts
}
