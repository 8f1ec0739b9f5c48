// Package logging builds the zerolog logger shared by the binaries.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/botte/botte-service/config"
)

// New returns a logger writing to out (stdout when nil). format "json" logs
// JSON lines; anything else uses the console writer.
func New(cfg config.LoggingConfig, out io.Writer, service string) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	logger := ctx.Logger()
	return &logger
}
