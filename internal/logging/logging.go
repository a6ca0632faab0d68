// Package logging configures the process-wide zerolog logger.
package logging

import (
	"context"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	ServiceName string `mapstructure:"service_name"`
}

// New creates a configured logger writing to w (stdout when nil).
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	logger := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.ServiceName != "" {
		logger = logger.With().Str(FieldService, cfg.ServiceName).Logger()
	}
	return logger
}

// Init installs the logger as zerolog's global and routes the stdlib log
// package through it.
func Init(cfg Config) zerolog.Logger {
	return InitTo(cfg, os.Stdout)
}

// InitTo is Init with an explicit destination.
func InitTo(cfg Config, w io.Writer) zerolog.Logger {
	logger := New(cfg, w)
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With().Str("source", "stdlog").Logger())
	return logger
}

// Ctx returns the request logger stored by GinMiddleware, or the global one.
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
