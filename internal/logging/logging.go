// Package logging owns the process-wide logrus logger. Packages derive a
// subsystem logger from DefaultLogger:
//
//	var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "lexer")
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Supported log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultLogger is the base logger every subsystem logger is derived from.
var DefaultLogger = initializeDefaultLogger()

func initializeDefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(textFormatter())
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
		DisableColors:    true,
	}
}

// SetLogLevel parses level ("debug", "info", "warn", ...) and applies it.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	DefaultLogger.SetLevel(lvl)
	return nil
}

// SetLogFormat switches between the text and JSON formatters.
func SetLogFormat(format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		DefaultLogger.SetFormatter(textFormatter())
	case FormatJSON:
		DefaultLogger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput redirects the default logger, e.g. to the daemon log file.
func SetOutput(w io.Writer) {
	DefaultLogger.SetOutput(w)
}

// ToggleDebugLogs switches between debug and info level.
func ToggleDebugLogs(debug bool) {
	if debug {
		DefaultLogger.SetLevel(logrus.DebugLevel)
	} else {
		DefaultLogger.SetLevel(logrus.InfoLevel)
	}
}
