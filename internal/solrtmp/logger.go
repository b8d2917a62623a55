package solrtmp

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger installs the process wide tint logger at the configured level.
func InitLogger(config *Config) {
	slog.SetDefault(NewLogger(os.Stdout, config.GetSlogLevel(), false))
}

// NewLogger builds a tint handler that prints source paths relative to the
// module root.
func NewLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := getProjectRoot(filename)

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if projectRoot != "" && strings.HasPrefix(source.File, projectRoot+string(os.PathSeparator)) {
			source.File = source.File[len(projectRoot)+1:]
		}
		return slog.Any(a.Key, source)
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:       level,
		AddSource:   true,
		NoColor:     noColor,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler)
}

// getProjectRoot walks up from this file to the module root.
func getProjectRoot(file string) string {
	// internal/solrtmp/logger.go
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}
