// Package observability configures the process logger.
package observability

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
)

// Options selects log level, output format and an optional rotating file
// sink.
type Options struct {
	Level  string
	Format string // "json" or "console"

	// File enables a rotating file sink next to the console/stdout one.
	File         string
	MaxAge       time.Duration
	RotationTime time.Duration
}

// NewLogger builds the root logger. Invalid levels fall back to info.
func NewLogger(opts Options) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var sinks []io.Writer
	if opts.Format == "console" {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		sinks = append(sinks, os.Stderr)
	}

	if opts.File != "" {
		maxAge := opts.MaxAge
		if maxAge <= 0 {
			maxAge = 7 * 24 * time.Hour
		}
		rotation := opts.RotationTime
		if rotation <= 0 {
			rotation = 24 * time.Hour
		}
		writer, err := rotatelogs.New(
			opts.File+".%Y%m%d",
			rotatelogs.WithLinkName(opts.File),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(rotation),
		)
		if err != nil {
			return zerolog.Nop(), err
		}
		sinks = append(sinks, writer)
	}

	out := sinks[0]
	if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// DefaultLogFile returns a per-user log path for the given app name.
func DefaultLogFile(app string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, app, app+".log")
}
