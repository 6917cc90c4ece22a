// Package config holds the settings shared by the command-line tools.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by the commands.
const (
	EnvTempDir   = "BULLETUTILS_TMP"
	EnvStockfish = "STOCKFISH_PATH"
)

// ParseSize parses a size string like "512m", "4g", "1024" into bytes.
// Suffixes k, m, g and t are powers of 1024; an optional trailing "b" or "ib" is ignored.
func ParseSize(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "ib")
	s = strings.TrimSuffix(s, "b")
	if s == "" {
		return 0, fmt.Errorf("empty size %q", orig)
	}

	multiplier := int64(1)
	switch s[len(s)-1] {
	case 'k':
		multiplier = 1 << 10
	case 'm':
		multiplier = 1 << 20
	case 'g':
		multiplier = 1 << 30
	case 't':
		multiplier = 1 << 40
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", orig)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size %q overflows", orig)
	}
	return n * multiplier, nil
}

// FormatSize renders n bytes with the largest exact binary suffix.
func FormatSize(n int64) string {
	for _, u := range []struct {
		suffix string
		shift  uint
	}{{"t", 40}, {"g", 30}, {"m", 20}, {"k", 10}} {
		if n != 0 && n%(1<<u.shift) == 0 {
			return strconv.FormatInt(n>>u.shift, 10) + u.suffix
		}
	}
	return strconv.FormatInt(n, 10)
}

// Size is a byte count flag accepting ParseSize syntax.
type Size int64

// String implements pflag.Value.
func (s *Size) String() string {
	return FormatSize(int64(*s))
}

// Set implements pflag.Value.
func (s *Size) Set(v string) error {
	n, err := ParseSize(v)
	if err != nil {
		return err
	}
	*s = Size(n)
	return nil
}

// Type implements pflag.Value.
func (s *Size) Type() string {
	return "size"
}

// Bytes returns the size as an int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

// TempDir returns flagValue, or BULLETUTILS_TMP when the flag is empty.
func TempDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvTempDir)
}

// StockfishPath returns the engine path from flagValue or STOCKFISH_PATH.
func StockfishPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvStockfish)
}
