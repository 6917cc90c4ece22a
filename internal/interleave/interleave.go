// Package interleave merges several record files into one, drawing each next
// record from an input with probability proportional to its remaining records.
// When every input is already shuffled the result is a uniform shuffle of the union.
package interleave

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/bulletutils/internal/randx"
	"github.com/freeeve/bulletutils/internal/record"
	"github.com/freeeve/bulletutils/internal/shuffle"
)

const readBufSize = 1 << 20

// Config configures an interleave run.
type Config struct {
	Inputs     []string
	Output     string
	RecordSize int
	Rand       *randx.Source // nil picks an unseeded source
	Logger     zerolog.Logger
}

// Stats describes a completed run.
type Stats struct {
	Seed        uint64
	Records     int64
	PerInput    []int64
	Fingerprint record.Fingerprint
	Elapsed     time.Duration
}

// input is an open input file served as a merge source.
type input struct {
	path string
	f    *os.File
	br   *bufio.Reader
	pop  int64
}

func (in *input) Population() int64 { return in.pop }

func (in *input) ReadRecord(dst []byte) error {
	if _, err := io.ReadFull(in.br, dst); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &record.FormatError{Path: in.path, Size: -1, RecordSize: len(dst),
				Detail: "input ended before its measured size"}
		}
		return record.WrapIO("read", in.path, err)
	}
	in.pop--
	return nil
}

// Run merges cfg.Inputs into cfg.Output. Every input is checked before the output
// is created; on error no output is left behind.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	var stats Stats
	start := time.Now()
	if len(cfg.Inputs) == 0 {
		return stats, errors.New("at least one input is required")
	}
	if cfg.Output == "" {
		return stats, errors.New("output path is required")
	}
	layout, err := record.NewLayout(cfg.RecordSize)
	if err != nil {
		return stats, err
	}
	rng := cfg.Rand
	if rng == nil {
		rng = randx.NewUnseeded()
	}
	stats.Seed = rng.Seed()
	log := cfg.Logger.With().Str("component", "interleave").Logger()

	inputs := make([]*input, 0, len(cfg.Inputs))
	defer func() {
		for _, in := range inputs {
			in.f.Close()
		}
	}()
	for _, path := range cfg.Inputs {
		if path == cfg.Output {
			return stats, fmt.Errorf("input %s is also the output", path)
		}
		n, err := layout.StatCount(path)
		if err != nil {
			return stats, err
		}
		f, err := os.Open(path)
		if err != nil {
			return stats, record.WrapIO("open", path, err)
		}
		inputs = append(inputs, &input{path: path, f: f, br: bufio.NewReaderSize(f, readBufSize), pop: n})
		stats.PerInput = append(stats.PerInput, n)
		log.Debug().Str("input", path).Int64("records", n).Msg("input")
	}

	sources := make([]shuffle.Source, len(inputs))
	for i, in := range inputs {
		sources[i] = in
	}
	out, err := shuffle.CreateOutput(cfg.Output)
	if err != nil {
		return stats, err
	}
	merger := shuffle.NewWeightedMerger(sources, layout.Size, rng, log)
	ms, err := merger.Run(ctx, out)
	if err != nil {
		out.Abort()
		return stats, fmt.Errorf("interleave into %s: %w", cfg.Output, err)
	}
	if err := out.Commit(); err != nil {
		return stats, err
	}
	stats.Records = ms.Records
	stats.Fingerprint = ms.Fingerprint
	stats.Elapsed = time.Since(start)
	log.Info().
		Int("inputs", len(inputs)).
		Int64("records", stats.Records).
		Str("output", cfg.Output).
		Dur("elapsed", stats.Elapsed).
		Msg("interleave complete")
	return stats, nil
}
