package shuffle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/bulletutils/internal/randx"
	"github.com/freeeve/bulletutils/internal/record"
)

// mergeStream is the random stream used by the merge phase. Partition streams are
// numbered by partition index and never reach it.
const mergeStream = 1 << 63

// Config configures a shuffle run.
type Config struct {
	Input        string // required
	Output       string // required
	TempDir      string // required; created if absent
	MemoryBudget int64  // bytes; required
	RecordSize   int    // bytes per record; required

	Rand            *randx.Source // nil picks an unseeded source
	Workers         int           // partition-phase parallelism (default 1)
	CompressScratch bool          // zstd-compress partition files

	Logger           zerolog.Logger
	ProgressInterval time.Duration // merge progress logging (default 10s, <0 disables)
}

// Stats describes a completed run.
type Stats struct {
	Plan          Plan
	Seed          uint64
	Input         record.Fingerprint
	Output        record.Fingerprint
	PartitionTime time.Duration
	MergeTime     time.Duration
	Elapsed       time.Duration
}

// Shuffler runs the two-phase external shuffle.
type Shuffler struct {
	cfg    Config
	layout record.Layout
	log    zerolog.Logger
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Shuffler, error) {
	if cfg.Input == "" {
		return nil, errors.New("input path is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.TempDir == "" {
		return nil, errors.New("temp directory is required")
	}
	if cfg.MemoryBudget <= 0 {
		return nil, fmt.Errorf("memory budget must be positive, got %d", cfg.MemoryBudget)
	}
	layout, err := record.NewLayout(cfg.RecordSize)
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 10 * time.Second
	}
	if cfg.Rand == nil {
		cfg.Rand = randx.NewUnseeded()
	}
	return &Shuffler{
		cfg:    cfg,
		layout: layout,
		log:    cfg.Logger.With().Str("component", "shuffle").Logger(),
	}, nil
}

// Run shuffles Input into Output. On any error the output is not created and the
// scratch files are removed.
func (s *Shuffler) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	start := time.Now()
	stats.Seed = s.cfg.Rand.Seed()

	in, err := os.Open(s.cfg.Input)
	if err != nil {
		return stats, record.WrapIO("open input", s.cfg.Input, err)
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return stats, record.WrapIO("stat input", s.cfg.Input, err)
	}
	if err := s.layout.Check(s.cfg.Input, fi.Size()); err != nil {
		return stats, err
	}

	plan, err := NewPlan(fi.Size(), s.layout, s.cfg.MemoryBudget, s.cfg.Workers)
	if err != nil {
		return stats, err
	}
	stats.Plan = plan
	s.log.Info().
		Str("input", s.cfg.Input).
		Int64("bytes", plan.InputBytes).
		Int64("records", plan.Records).
		Int("partitions", plan.Partitions).
		Int64("chunk_bytes", plan.ChunkBytes).
		Int("workers", s.cfg.Workers).
		Uint64("seed", stats.Seed).
		Msg("shuffle plan")

	parts, err := NewTempSet(s.cfg.TempDir, plan.Partitions, s.layout, s.cfg.CompressScratch)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := parts.Close(); err != nil {
			s.log.Warn().Err(err).Msg("remove scratch files")
		}
	}()
	if err := s.checkSpace(parts.Dir(), plan.InputBytes); err != nil {
		return stats, err
	}

	// Phase 1: partition
	phaseStart := time.Now()
	adviseSequential(in)
	partitioner := NewPartitioner(plan, s.cfg.Rand, s.cfg.Workers, s.log)
	stats.Input, err = partitioner.Run(ctx, in, parts)
	if err != nil {
		return stats, fmt.Errorf("partition %s: %w", s.cfg.Input, err)
	}
	if err := checkInputSize(in, s.cfg.Input, plan.InputBytes); err != nil {
		return stats, err
	}
	if err := parts.FinishAll(); err != nil {
		return stats, err
	}
	if got := parts.Records(); got != plan.Records {
		return stats, record.Invariantf("partitions hold %d records, input has %d", got, plan.Records)
	}
	stats.PartitionTime = time.Since(phaseStart)
	s.log.Info().
		Int("partitions", plan.Partitions).
		Str("dir", parts.Dir()).
		Dur("elapsed", stats.PartitionTime).
		Msg("finished splitting data")

	// Phase 2: merge
	phaseStart = time.Now()
	s.warnMergeMemory(plan)
	if err := parts.ReopenAll(plan.MergeBufSize); err != nil {
		return stats, err
	}
	out, err := CreateOutput(s.cfg.Output)
	if err != nil {
		return stats, err
	}
	merger := NewWeightedMerger(parts.Sources(), plan.RecordSize, s.cfg.Rand.Derive(mergeStream), s.log)
	merger.SetProgressInterval(max(s.cfg.ProgressInterval, 0))
	ms, err := merger.Run(ctx, out)
	if err != nil {
		out.Abort()
		return stats, fmt.Errorf("merge into %s: %w", s.cfg.Output, err)
	}
	stats.Output = ms.Fingerprint
	if !stats.Output.Equal(stats.Input) {
		out.Abort()
		return stats, record.Invariantf("output fingerprint %v does not match input %v", stats.Output, stats.Input)
	}
	if err := out.Commit(); err != nil {
		return stats, err
	}
	stats.MergeTime = time.Since(phaseStart)
	stats.Elapsed = time.Since(start)

	s.log.Info().
		Str("output", s.cfg.Output).
		Int64("records", ms.Records).
		Dur("merge", stats.MergeTime).
		Dur("elapsed", stats.Elapsed).
		Msg("shuffle complete")
	return stats, nil
}

// checkInputSize fails if the input no longer has the size the plan was built from.
func checkInputSize(f *os.File, path string, want int64) error {
	fi, err := f.Stat()
	if err != nil {
		return record.WrapIO("stat input", path, err)
	}
	if fi.Size() != want {
		return &record.FormatError{Path: path, Size: -1,
			Detail: fmt.Sprintf("input changed from %d to %d bytes while partitioning", want, fi.Size())}
	}
	return nil
}

// checkSpace fails early when raw scratch files cannot fit on dir's filesystem.
// Compressed scratch usually fits in less, so it only warns.
func (s *Shuffler) checkSpace(dir string, need int64) error {
	free, ok := freeBytes(dir)
	if !ok || free >= uint64(need) {
		return nil
	}
	if s.cfg.CompressScratch {
		s.log.Warn().
			Uint64("free_bytes", free).
			Int64("input_bytes", need).
			Msg("scratch filesystem may be too small")
		return nil
	}
	return &record.IOError{
		Op:   fmt.Sprintf("reserve %d scratch bytes", need),
		Path: dir,
		Err:  syscall.ENOSPC,
	}
}

// mergeMemory estimates what the merge phase holds: one read buffer per
// partition, plus one decoder each when scratch is compressed.
func mergeMemory(plan Plan, compressed bool) int64 {
	per := int64(plan.MergeBufSize)
	if compressed {
		per += decoderFootprint
	}
	return int64(plan.Partitions) * per
}

// warnMergeMemory logs when the merge phase is expected to exceed the budget.
// Read buffers alone stay within it unless each is clamped up to one record;
// compressed scratch adds a decoder per partition.
func (s *Shuffler) warnMergeMemory(plan Plan) {
	if need := mergeMemory(plan, s.cfg.CompressScratch); need > s.cfg.MemoryBudget {
		s.log.Warn().
			Int64("merge_bytes", need).
			Int64("budget_bytes", s.cfg.MemoryBudget).
			Int("partitions", plan.Partitions).
			Bool("compressed", s.cfg.CompressScratch).
			Msg("merge phase will exceed the memory budget")
	}
}

// Run is a convenience wrapper around New and Shuffler.Run.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	s, err := New(cfg)
	if err != nil {
		return Stats{}, err
	}
	return s.Run(ctx)
}
