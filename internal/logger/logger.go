// Package logger builds the structured logger shared by every command.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"desk-assistant-go/internal/config"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string // debug, info, warn or error
	FilePath   string // empty logs to the console only
	MaxSize    int    // megabytes before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Console    bool
	// Console output goes here, os.Stderr when nil. Stdout is left to
	// command results.
	ConsoleWriter io.Writer
}

// FromConfig converts the logging section. verbose forces debug, quiet
// forces error and turns console output off.
func FromConfig(c config.LoggingConfig, verbose, quiet bool) LoggerConfig {
	lc := LoggerConfig{
		Level:      c.Level,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
		Console:    !quiet,
	}
	switch {
	case quiet:
		lc.Level = "error"
	case verbose:
		lc.Level = "debug"
	}
	return lc
}

// NewLogger returns a logrus.Logger writing JSON lines to a rotating file
// and, when Console is set or no file is configured, to the console.
func NewLogger(lc LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	})

	var outputs []io.Writer
	if lc.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
			return nil, err
		}
		outputs = append(outputs, &lumberjack.Logger{
			Filename:   lc.FilePath,
			MaxSize:    lc.MaxSize,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAge,
			Compress:   lc.Compress,
		})
	}
	if lc.Console || lc.FilePath == "" {
		console := lc.ConsoleWriter
		if console == nil {
			console = os.Stderr
		}
		outputs = append(outputs, console)
	}

	if len(outputs) == 1 {
		logger.SetOutput(outputs[0])
	} else {
		logger.SetOutput(io.MultiWriter(outputs...))
	}
	return logger, nil
}

// MustLogger is NewLogger that falls back to an info level console logger
// when the configuration is unusable.
func MustLogger(lc LoggerConfig) *logrus.Logger {
	l, err := NewLogger(lc)
	if err != nil {
		l = logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.InfoLevel)
		l.Warnf("logger config rejected, using defaults: %v", err)
	}
	return l
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// WithJob returns a logger entry scoped to a compression or conversion job.
func WithJob(logger logrus.FieldLogger, jobID string) *logrus.Entry {
	return logger.WithField("job", jobID)
}

// WithUser returns a logger entry scoped to a chat user.
func WithUser(logger logrus.FieldLogger, userID int64) *logrus.Entry {
	return logger.WithField("user", userID)
}

// WithFileOperation returns a logger entry with both file and operation context.
func WithFileOperation(logger logrus.FieldLogger, filePath, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}
