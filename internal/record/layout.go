// Package record defines fixed-size record layouts, the error taxonomy shared by
// the record tools, and an order-independent fingerprint over record multisets.
package record

import (
	"fmt"
	"os"
)

// Layout describes a file of fixed-size records. Record contents are opaque.
type Layout struct {
	Size int // bytes per record
}

// ChessBoardLayout is the layout of 32-byte ChessBoard training records.
var ChessBoardLayout = Layout{Size: ChessBoardSize}

// NewLayout returns a Layout for size-byte records.
func NewLayout(size int) (Layout, error) {
	if size <= 0 {
		return Layout{}, fmt.Errorf("record size must be positive, got %d", size)
	}
	return Layout{Size: size}, nil
}

// Check returns a *FormatError if n bytes is not a whole number of records.
func (l Layout) Check(path string, n int64) error {
	if n < 0 || n%int64(l.Size) != 0 {
		return &FormatError{Path: path, Size: n, RecordSize: l.Size}
	}
	return nil
}

// Count returns the number of records in n bytes, failing if n is not a whole
// number of records.
func (l Layout) Count(path string, n int64) (int64, error) {
	if err := l.Check(path, n); err != nil {
		return 0, err
	}
	return n / int64(l.Size), nil
}

// FloorBytes rounds n down to a whole number of records.
func (l Layout) FloorBytes(n int64) int64 {
	return n / int64(l.Size) * int64(l.Size)
}

// StatCount returns the record count of the file at path.
func (l Layout) StatCount(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, WrapIO("stat", path, err)
	}
	if !fi.Mode().IsRegular() {
		return 0, &FormatError{Path: path, Size: -1, Detail: "not a regular file"}
	}
	return l.Count(path, fi.Size())
}

// Swap exchanges records i and j in buf. scratch must hold at least one record.
func (l Layout) Swap(buf []byte, i, j int, scratch []byte) {
	if i == j {
		return
	}
	r := l.Size
	a := buf[i*r : i*r+r]
	b := buf[j*r : j*r+r]
	copy(scratch[:r], a)
	copy(a, b)
	copy(b, scratch[:r])
}
