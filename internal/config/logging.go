package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "skillexchange"

// NewLogger builds the process logger and installs it as the zerolog global.
// Every line carries the service, environment and build version so lines
// from several deployments can share one sink.
func NewLogger(cfg LoggingConfig, environment, version string) zerolog.Logger {
	return newLogger(cfg, environment, version, os.Stdout)
}

func newLogger(cfg LoggingConfig, environment, version string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := out
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{
			Out:          out,
			TimeFormat:   time.RFC3339,
			NoColor:      environment == "production",
			PartsExclude: []string{zerolog.CallerFieldName},
		}
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp().Str("service", serviceName)
	if environment != "" {
		ctx = ctx.Str("env", environment)
	}
	if version != "" {
		ctx = ctx.Str("version", version)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
