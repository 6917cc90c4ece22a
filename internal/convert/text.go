// Package convert turns text position lists and PGN game collections into
// 32-byte ChessBoard training records.
package convert

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/freeeve/bulletutils/internal/record"
	"github.com/freeeve/bulletutils/internal/shuffle"
)

// Stats summarizes a conversion.
type Stats struct {
	Lines   int64 // input lines or games read
	Records int64
	Skipped int64
	Elapsed time.Duration
}

// TextConfig configures FromText.
type TextConfig struct {
	Input  string // "FEN | score | result" lines, optionally .zst
	Output string
	Logger zerolog.Logger
}

const maxLineSize = 1 << 16

// FromText converts a text position list. Malformed lines are counted and
// skipped; the first few are logged.
func FromText(ctx context.Context, cfg TextConfig) (Stats, error) {
	var stats Stats
	start := time.Now()
	log := cfg.Logger.With().Str("component", "convert").Logger()

	r, closeIn, err := openInput(cfg.Input)
	if err != nil {
		return stats, err
	}
	defer closeIn()

	out, err := shuffle.CreateOutput(cfg.Output)
	if err != nil {
		return stats, err
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	buf := make([]byte, 0, record.ChessBoardSize)
	for sc.Scan() {
		if stats.Lines&0xFFFF == 0 {
			if err := ctx.Err(); err != nil {
				out.Abort()
				return stats, err
			}
		}
		stats.Lines++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b, err := parseLine(line)
		if err != nil {
			stats.Skipped++
			if stats.Skipped <= 5 {
				log.Warn().Err(err).Int64("line", stats.Lines).Msg("skip line")
			}
			continue
		}
		buf = record.EncodeChessBoard(buf[:0], b)
		if _, err := out.Write(buf); err != nil {
			out.Abort()
			return stats, record.WrapIO("write", cfg.Output, err)
		}
		stats.Records++
	}
	if err := sc.Err(); err != nil {
		out.Abort()
		return stats, record.WrapIO("read", cfg.Input, err)
	}
	if err := out.Commit(); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)
	log.Info().
		Str("input", cfg.Input).
		Int64("lines", stats.Lines).
		Int64("records", stats.Records).
		Int64("skipped", stats.Skipped).
		Dur("elapsed", stats.Elapsed).
		Msg("text conversion complete")
	return stats, nil
}

// parseLine parses "FEN | score | result" with a white-relative score.
func parseLine(line string) (record.ChessBoard, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return record.ChessBoard{}, errors.New("want 3 fields separated by |")
	}
	score, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return record.ChessBoard{}, err
	}
	result, err := ParseResult(parts[2])
	if err != nil {
		return record.ChessBoard{}, err
	}
	return BoardFromFEN(strings.TrimSpace(parts[0]), score, result)
}

// openInput opens path, decompressing .zst files.
func openInput(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, record.WrapIO("open", path, err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return bufio.NewReaderSize(f, 1<<20), func() { f.Close() }, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, record.WrapIO("open zstd stream", path, err)
	}
	return dec, func() {
		dec.Close()
		f.Close()
	}, nil
}
