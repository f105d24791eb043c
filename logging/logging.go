package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level and output format.
type Config struct {
	Level   string
	Format  string
	Service string
	Output  io.Writer
}

// New builds the process logger. Format "console" (or "dev") writes
// human-readable lines; anything else writes JSON.
func New(config Config) zerolog.Logger {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	switch strings.ToLower(config.Format) {
	case "console", "dev", "development":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(config.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	service := config.Service
	if service == "" {
		service = "buchat"
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
