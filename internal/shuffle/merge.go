package shuffle

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/bulletutils/internal/randx"
	"github.com/freeeve/bulletutils/internal/record"
)

// Source is a stream of records with a known remaining count.
type Source interface {
	// Population returns the number of records not yet read.
	Population() int64
	// ReadRecord reads the next record into dst.
	ReadRecord(dst []byte) error
}

// weightTolerance bounds |1 - sum(weights)|. Each weight carries at most one
// rounding error of 2^-53, so any K below ~10^7 sources stays far inside it.
const weightTolerance = 1e-9

// ctxCheckEvery is how many records are merged between context checks.
const ctxCheckEvery = 1 << 16

// MergeStats summarizes a merge.
type MergeStats struct {
	Records     int64
	Fingerprint record.Fingerprint
	Elapsed     time.Duration
}

// WeightedMerger interleaves its sources into one stream, choosing each next
// record's source with probability proportional to the records it has left.
// Interleaving independently shuffled sources this way yields a uniformly random
// permutation of their union.
type WeightedMerger struct {
	sources    []Source
	pops       []int64
	weights    []float64
	remaining  int64
	recordSize int
	rng        *randx.Source

	log              zerolog.Logger
	progressInterval time.Duration
}

// NewWeightedMerger captures each source's current population as its counter.
func NewWeightedMerger(sources []Source, recordSize int, rng *randx.Source, log zerolog.Logger) *WeightedMerger {
	m := &WeightedMerger{
		sources:          sources,
		pops:             make([]int64, len(sources)),
		weights:          make([]float64, len(sources)),
		recordSize:       recordSize,
		rng:              rng,
		log:              log,
		progressInterval: 10 * time.Second,
	}
	for i, s := range sources {
		m.pops[i] = s.Population()
		m.remaining += m.pops[i]
	}
	return m
}

// SetProgressInterval changes how often progress is logged. Zero disables it.
func (m *WeightedMerger) SetProgressInterval(d time.Duration) {
	m.progressInterval = d
}

// Remaining returns the number of records not yet emitted.
func (m *WeightedMerger) Remaining() int64 {
	return m.remaining
}

// Populations returns a copy of the per-source counters.
func (m *WeightedMerger) Populations() []int64 {
	out := make([]int64, len(m.pops))
	copy(out, m.pops)
	return out
}

// Next selects the source of the next record. It does not consume the record.
func (m *WeightedMerger) Next() (int, error) {
	if m.remaining <= 0 {
		return -1, record.Invariantf("select with no records remaining")
	}
	total := float64(m.remaining)
	var sum float64
	for i, p := range m.pops {
		w := 0.0
		if p > 0 {
			w = float64(p) / total
		}
		m.weights[i] = w
		sum += w
	}
	if math.Abs(1-sum) > weightTolerance {
		return -1, record.Invariantf("selection weights sum to %v", sum)
	}
	idx := pickIndex(m.weights, m.pops, m.rng.Float64())
	if idx < 0 || m.pops[idx] <= 0 {
		return -1, record.Invariantf("selected source %d with no records", idx)
	}
	return idx, nil
}

// pickIndex walks the cumulative weights and returns the first index whose running
// total exceeds u. If rounding leaves the total short of u, the last source with a
// nonzero population is chosen.
func pickIndex(weights []float64, pops []int64, u float64) int {
	var cum float64
	last := -1
	for i, w := range weights {
		if pops[i] <= 0 {
			continue
		}
		last = i
		cum += w
		if u < cum {
			return i
		}
	}
	return last
}

// Step moves one record from the selected source into buf and returns the source.
func (m *WeightedMerger) Step(buf []byte) (int, error) {
	idx, err := m.Next()
	if err != nil {
		return -1, err
	}
	if err := m.sources[idx].ReadRecord(buf[:m.recordSize]); err != nil {
		return -1, err
	}
	m.pops[idx]--
	m.remaining--
	return idx, nil
}

// Run drains every source into w.
func (m *WeightedMerger) Run(ctx context.Context, w io.Writer) (MergeStats, error) {
	var stats MergeStats
	start := time.Now()
	lastLog := start
	buf := make([]byte, m.recordSize)
	total := m.remaining

	for m.remaining > 0 {
		if stats.Records%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if m.progressInterval > 0 && time.Since(lastLog) > m.progressInterval {
				elapsed := time.Since(start)
				m.log.Info().
					Int64("records", stats.Records).
					Int64("total", total).
					Float64("records_per_sec", float64(stats.Records)/elapsed.Seconds()).
					Msg("merge progress")
				lastLog = time.Now()
			}
		}
		if _, err := m.Step(buf); err != nil {
			return stats, err
		}
		if _, err := w.Write(buf); err != nil {
			return stats, record.WrapIO("write output", "", err)
		}
		stats.Fingerprint.Add(buf)
		stats.Records++
	}

	for i, p := range m.pops {
		if p != 0 {
			return stats, record.Invariantf("source %d finished with population %d", i, p)
		}
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}
