// Package logging builds the structured logger used across keyprint.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New creates a logrus logger with the given level, format (text or json)
// and output (stderr, stdout, or a file path opened for appending). The
// returned close func releases the log file, if any. Unknown levels fall
// back to info.
func New(level, format, output string) (*logrus.Logger, func() error) {
	logger := logrus.New()
	noop := func() error { return nil }

	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	switch strings.ToLower(output) {
	case "", "stderr":
		logger.SetOutput(os.Stderr)
	case "stdout":
		logger.SetOutput(os.Stdout)
	default:
		path := filepath.Clean(output)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logger.SetOutput(os.Stderr)
			logger.WithError(err).Warn("failed to create log directory, using stderr")
			return logger, noop
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			logger.SetOutput(os.Stderr)
			logger.WithError(err).Warn("failed to open log file, using stderr")
			return logger, noop
		}
		logger.SetOutput(file)
		return logger, file.Close
	}
	return logger, noop
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
