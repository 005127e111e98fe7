package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func logConfigFromViper() *logConfig {
	level := viper.GetString("log-level")
	if viper.GetBool("verbose") && level != "trace" {
		level = "debug"
	}
	return &logConfig{
		Level:      level,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	}
}

// InitLogger configures the global zerolog logger. Run events printed by --events go to
// stderr too, so "auto" only uses the console writer on a terminal.
func InitLogger(config *logConfig) error {
	level := zerolog.InfoLevel
	if config.Level != "" {
		l, err := zerolog.ParseLevel(config.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", config.Level)
		}
		level = l
	}

	var w io.Writer = os.Stderr
	switch config.LogFormat {
	case "text":
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	case "json":
	case "", "auto":
		fd := os.Stderr.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			w = zerolog.ConsoleWriter{Out: os.Stderr}
		}
	default:
		return errors.Errorf("unknown log format %q", config.LogFormat)
	}

	if config.LogFile != "" {
		w = io.MultiWriter(w, zerolog.ConsoleWriter{
			NoColor: true,
			Out: &lumberjack.Logger{
				Filename:   config.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			},
		})
	}

	logger := zerolog.New(w).With().Timestamp()
	if config.WithCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()
	zerolog.SetGlobalLevel(level)

	return nil
}
