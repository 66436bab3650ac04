// Package logger configures the process-wide zerolog logger and hands out
// tagged sub-loggers. Every package logs through WithComponent; code that
// serves one camera instance uses WithCamera so log lines can be filtered
// per camera.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var base zerolog.Logger

func init() {
	// Sane default until Init runs: info level, plain JSON to stdout.
	base = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = base
}

// Init reconfigures the global logger. Unknown level strings fall back to
// info; pretty selects human-readable console output instead of JSON.
func Init(level string, pretty bool) {
	level = strings.ToLower(level)
	if level == "warning" {
		level = "warn"
	}
	zlLevel, err := zerolog.ParseLevel(level)
	if err != nil || zlLevel == zerolog.NoLevel {
		zlLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlLevel)

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	base = zerolog.New(output).With().Timestamp().Caller().Logger()
	log.Logger = base
}

// WithComponent returns a logger tagged with a component field.
func WithComponent(component string) *zerolog.Logger {
	l := base.With().Str("component", component).Logger()
	return &l
}

// WithCamera returns a logger tagged with component and camera fields.
func WithCamera(component, camera string) *zerolog.Logger {
	l := base.With().Str("component", component).Str("camera", camera).Logger()
	return &l
}
