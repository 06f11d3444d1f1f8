// Package logging builds the logrus logger used by the engine and CLI.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects level, format and destination.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// New returns a logger configured from cfg. An invalid level falls back to
// info and an unopenable output file falls back to stderr; both are
// reported as warnings on the returned logger. The returned closer releases
// the output file, if one was opened.
func New(cfg Config) (*logrus.Logger, io.Closer) {
	log := logrus.New()

	var warnings []string
	level := logrus.InfoLevel
	if cfg.Level != "" {
		l, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			warnings = append(warnings, "invalid log level '"+cfg.Level+"', using 'info'")
		} else {
			level = l
		}
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	var closer io.Closer = nopCloser{}
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	case "discard", "none":
		log.SetOutput(io.Discard)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			warnings = append(warnings, "failed to open log file '"+cfg.Output+"', using 'stderr': "+err.Error())
			log.SetOutput(os.Stderr)
		} else {
			log.SetOutput(file)
			closer = file
		}
	}

	for _, w := range warnings {
		log.Warn(w)
	}
	return log, closer
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
