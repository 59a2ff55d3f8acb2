package cliconfig

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Log output formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

var logger zerolog.Logger

func init() {
	logger = NewLogger(os.Stderr, LogFormatAuto)
}

// Logger returns the package logger.
func Logger() zerolog.Logger {
	return logger
}

// NewLogger builds a timestamped zerolog logger on w. Auto picks the console
// writer when w is a terminal and JSON lines otherwise.
func NewLogger(w io.Writer, format string) zerolog.Logger {
	if format == LogFormatAuto || format == "" {
		format = LogFormatJSON
		if isTerminal(w) {
			format = LogFormatConsole
		}
	}
	if format == LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Configure replaces the package logger and sets the global level.
func Configure(format, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logger, err
	}
	zerolog.SetGlobalLevel(lvl)
	logger = NewLogger(os.Stderr, format)
	return logger, nil
}

// ParseLevel parses a zerolog level name. An empty name is debug.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.DebugLevel, nil
	}
	return zerolog.ParseLevel(level)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
