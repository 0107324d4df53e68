package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iamconsole/backend-go/internal/config"
)

// Output and format values
const (
	OutputStderr = "stderr"
	OutputStdout = "stdout"
	OutputFile   = "file"

	FormatJSON = "json"
	FormatText = "text"
)

// New creates a logger from the log configuration.
//
// Output "file" writes through lumberjack with rotation; an empty file path
// or an unusable directory falls back to stderr.
func New(cfg config.LogConfig) *slog.Logger {
	var w io.Writer

	switch cfg.Output {
	case OutputFile:
		w = newRotatingWriter(cfg)
	case OutputStdout:
		w = os.Stdout
	case OutputStderr, "":
		w = os.Stderr
	default:
		fmt.Fprintf(os.Stderr, "WARNING: unknown log output %q, falling back to stderr\n", cfg.Output)
		w = os.Stderr
	}

	return NewWithWriter(cfg, w)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func newRotatingWriter(cfg config.LogConfig) io.Writer {
	if cfg.FilePath == "" {
		fmt.Fprintln(os.Stderr, "WARNING: log output is file but no file path is set, falling back to stderr")
		return os.Stderr
	}

	dir := filepath.Dir(cfg.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: failed to create log directory %q: %v, falling back to stderr\n", dir, err)
			return os.Stderr
		}
	}

	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
