package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a console logger on stderr at the level named by
// BULLETUTILS_LOG (default info). Stdout is left for command reports.
func NewLogger() zerolog.Logger {
	level, err := ParseLevel(os.Getenv("BULLETUTILS_LOG"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return New(os.Stderr, level)
}

// New returns a console logger writing to w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = shortCaller
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// shortCaller trims the caller to file:line padded for alignment.
func shortCaller(pc uintptr, file string, line int) string {
	return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", filepath.Base(file), line))
}
