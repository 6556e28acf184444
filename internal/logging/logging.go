// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/LeoncioXavier/elasticache-inventory/internal/config"
)

// ErrorLogName is the warning log written next to the scan outputs.
const ErrorLogName = "scan_errors.log"

// Options configures Setup.
type Options struct {
	Config config.LogConfig
	// Out receives the human or JSON stream. Defaults to os.Stderr.
	Out io.Writer
	// ErrorLogPath, when set, receives warnings and errors as JSON in a
	// rotating file.
	ErrorLogPath string
}

// Setup builds the logger, installs it as log.Logger and returns a closer for
// the error log file.
func Setup(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Config.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Config.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	var closer io.Closer = nopCloser{}
	writers := []io.Writer{out}
	if opts.ErrorLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.ErrorLogPath), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   opts.ErrorLogPath,
			MaxSize:    opts.Config.FileMaxSizeMB,
			MaxBackups: opts.Config.FileMaxBackups,
		}
		closer = file
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: file},
			Level:  zerolog.WarnLevel,
		})
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(TraceHook{})
	log.Logger = logger

	return logger, closer, nil
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "debug", "info", "warn", "error":
		return zerolog.ParseLevel(s)
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
