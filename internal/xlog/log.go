// Package xlog wires the simulator's logging through logrus: one
// package-level logger, a handful of domain-scoped field helpers, and
// nothing else.
package xlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance used across every component.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLevel sets the logging level by name ("debug", "info", "warn", ...).
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, used by tests to capture log lines.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// WithRouter returns a logger scoped to a router id.
func WithRouter(router int) *logrus.Entry {
	return Logger.WithField("router", router)
}

// WithPrefix returns a logger scoped to a prefix key's string form.
func WithPrefix(prefix string) *logrus.Entry {
	return Logger.WithField("prefix", prefix)
}

// WithEvent returns a logger scoped to an event kind.
func WithEvent(kind string) *logrus.Entry {
	return Logger.WithField("event", kind)
}

// WithFields is a passthrough to the package logger, for call sites that
// need more than one scoped field at once.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(fields)
}
