package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger, which every package logs through.
func Setup(level, format string) {
	Configure(log.StandardLogger(), os.Stderr, level, format)
}

// Configure applies level and format to l. Format "json" selects the JSON
// formatter; anything else gets full-timestamp text.
func Configure(l *log.Logger, out io.Writer, level, format string) {
	l.SetOutput(out)
	l.SetLevel(ParseLevel(level))
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&log.JSONFormatter{})
		return
	}
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

// ParseLevel maps "debug", "info", "warn", "error". Unknown strings default to info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
