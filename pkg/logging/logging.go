package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bombsimon/logrusr/v3"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

// Options configures the daemon logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a logr.Logger backed by logrus.
func New(opts Options) (logr.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return logr.Discard(), err
	}

	logrusLog := logrus.New()
	if opts.Output != nil {
		logrusLog.SetOutput(opts.Output)
	} else {
		logrusLog.SetOutput(os.Stderr)
	}

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logrusLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrusLog.SetFormatter(&logrus.JSONFormatter{})
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q", opts.Format)
	}
	logrusLog.SetLevel(level)

	return logrusr.New(logrusLog).WithName("installd"), nil
}

// ParseLevel maps a configured level name to a logrus level. An empty
// name selects info.
func ParseLevel(name string) (logrus.Level, error) {
	if name == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// Discard returns a logger that drops every entry.
func Discard() logr.Logger {
	return logr.Discard()
}
