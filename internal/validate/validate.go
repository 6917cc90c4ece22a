// Package validate checks record files: alignment, per-record structure for known
// layouts, and multiset fingerprints for comparing a shuffle with its input.
package validate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/freeeve/bulletutils/internal/record"
)

const readBufSize = 1 << 20

// DefaultMaxIssues is how many offending records a Report lists when Options
// does not say.
const DefaultMaxIssues = 10

// Options controls File.
type Options struct {
	ChessBoard bool // decode and check every record as a ChessBoard
	MaxIssues  int  // offending records to list (default DefaultMaxIssues, <0 none)
}

// Issue is one record that failed its structural check.
type Issue struct {
	Index int64
	Err   string
}

// Report describes one validated file.
type Report struct {
	Path        string
	Records     int64
	Invalid     int64
	Issues      []Issue
	Fingerprint record.Fingerprint
}

// OK reports whether every record passed.
func (r *Report) OK() bool {
	return r.Invalid == 0
}

// File reads path front to back. A misaligned file is a *record.FormatError;
// bad records are counted in the report, not returned as errors.
func File(ctx context.Context, path string, layout record.Layout, opts Options) (*Report, error) {
	if opts.ChessBoard && layout.Size != record.ChessBoardSize {
		return nil, fmt.Errorf("chess board layout needs %d-byte records, got %d", record.ChessBoardSize, layout.Size)
	}
	if opts.MaxIssues == 0 {
		opts.MaxIssues = DefaultMaxIssues
	}
	n, err := layout.StatCount(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, record.WrapIO("open", path, err)
	}
	defer f.Close()

	rep := &Report{Path: path}
	br := bufio.NewReaderSize(f, readBufSize)
	buf := make([]byte, layout.Size)
	for i := int64(0); i < n; i++ {
		if i&0xFFFF == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, &record.FormatError{Path: path, Size: -1, RecordSize: layout.Size,
					Detail: fmt.Sprintf("file shrank while reading record %d", i)}
			}
			return nil, record.WrapIO("read", path, err)
		}
		rep.Records++
		rep.Fingerprint.Add(buf)
		if opts.ChessBoard {
			if err := checkChessBoard(buf); err != nil {
				rep.Invalid++
				if len(rep.Issues) < opts.MaxIssues {
					rep.Issues = append(rep.Issues, Issue{Index: i, Err: err.Error()})
				}
			}
		}
	}
	return rep, nil
}

func checkChessBoard(data []byte) error {
	b, err := record.DecodeChessBoard(data)
	if err != nil {
		return err
	}
	return b.Validate()
}

// Comparison is the result of Compare.
type Comparison struct {
	A, B *Report
}

// Same reports whether both files hold the same record multiset.
func (c *Comparison) Same() bool {
	return c.A.Fingerprint.Equal(c.B.Fingerprint)
}

// Compare fingerprints a and b without loading either into memory.
func Compare(ctx context.Context, a, b string, layout record.Layout) (*Comparison, error) {
	ra, err := File(ctx, a, layout, Options{MaxIssues: -1})
	if err != nil {
		return nil, err
	}
	rb, err := File(ctx, b, layout, Options{MaxIssues: -1})
	if err != nil {
		return nil, err
	}
	return &Comparison{A: ra, B: rb}, nil
}
