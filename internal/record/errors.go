package record

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrFormat    = errors.New("record format error")
	ErrIO        = errors.New("record i/o error")
	ErrInvariant = errors.New("invariant violation")
)

// FormatError reports data whose length or contents do not fit the record layout.
type FormatError struct {
	Path       string
	Size       int64 // offending byte count, -1 if not applicable
	RecordSize int
	Detail     string
}

func (e *FormatError) Error() string {
	msg := "format error"
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Size >= 0 && e.RecordSize > 0 {
		msg += fmt.Sprintf(": %d bytes is not a multiple of %d-byte records", e.Size, e.RecordSize)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// IOError wraps a filesystem failure with the operation and path involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrIO }

func (e *IOError) Unwrap() error { return e.Err }

// InvariantError reports an internal consistency failure. It indicates a bug or a
// corrupted run, never bad user input.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Detail
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// WrapIO returns nil for a nil err, otherwise an *IOError.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// Invariantf builds an *InvariantError from a format string.
func Invariantf(format string, args ...any) error {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}
