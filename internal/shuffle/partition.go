package shuffle

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/bulletutils/internal/randx"
	"github.com/freeeve/bulletutils/internal/record"
)

// Partitioner splits the input into the plan's partitions, shuffling each chunk in
// memory before it is written.
//
// Partition i always covers the same byte range and draws from its own stream
// rng.Derive(i), so sequential and parallel runs write identical partitions.
type Partitioner struct {
	plan    Plan
	layout  record.Layout
	rng     *randx.Source
	workers int
	log     zerolog.Logger
}

// NewPartitioner creates a partitioner. workers < 2 selects the sequential path.
func NewPartitioner(plan Plan, rng *randx.Source, workers int, log zerolog.Logger) *Partitioner {
	if workers < 1 {
		workers = 1
	}
	return &Partitioner{
		plan:    plan,
		layout:  record.Layout{Size: plan.RecordSize},
		rng:     rng,
		workers: workers,
		log:     log,
	}
}

// Run writes every partition of parts from in and returns the fingerprint of all
// records read. in must hold exactly plan.InputBytes bytes.
func (p *Partitioner) Run(ctx context.Context, in io.ReaderAt, parts *TempSet) (record.Fingerprint, error) {
	if parts.Len() != p.plan.Partitions {
		return record.Fingerprint{}, record.Invariantf("have %d partition files, plan needs %d", parts.Len(), p.plan.Partitions)
	}
	if p.workers > 1 {
		return p.runParallel(ctx, in, parts)
	}
	return p.RunStream(ctx, io.NewSectionReader(in, 0, p.plan.InputBytes), parts)
}

// RunStream consumes in front to back, one chunk per partition, reusing a single
// chunk buffer.
func (p *Partitioner) RunStream(ctx context.Context, in io.Reader, parts *TempSet) (record.Fingerprint, error) {
	var total record.Fingerprint
	buf := make([]byte, p.plan.ChunkBytes)
	scratch := make([]byte, p.layout.Size)
	for i := 0; i < p.plan.Partitions; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		_, n := p.plan.Range(i)
		chunk := buf[:n]
		if err := readChunk(in, chunk, i); err != nil {
			return total, err
		}
		fp, err := p.writeChunk(i, chunk, scratch, parts.Partition(i))
		if err != nil {
			return total, err
		}
		total.Merge(fp)
	}
	// the plan covers the whole stream; anything left means it was longer than measured
	var extra [1]byte
	if n, _ := in.Read(extra[:]); n != 0 {
		return total, &record.FormatError{Size: -1, Detail: "input has more data than its measured size"}
	}
	return total, nil
}

func (p *Partitioner) runParallel(ctx context.Context, in io.ReaderAt, parts *TempSet) (record.Fingerprint, error) {
	fps := make([]record.Fingerprint, p.plan.Partitions)

	// one chunk buffer per worker keeps memory at workers * B
	bufs := make(chan []byte, p.workers)
	for i := 0; i < p.workers; i++ {
		bufs <- make([]byte, p.plan.ChunkBytes+int64(p.layout.Size))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < p.plan.Partitions; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			buf := <-bufs
			defer func() { bufs <- buf }()

			off, n := p.plan.Range(i)
			chunk := buf[:n]
			if err := readChunk(io.NewSectionReader(in, off, n), chunk, i); err != nil {
				return err
			}
			scratch := buf[len(buf)-p.layout.Size:]
			fp, err := p.writeChunk(i, chunk, scratch, parts.Partition(i))
			if err != nil {
				return err
			}
			fps[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return record.Fingerprint{}, err
	}

	var total record.Fingerprint
	for _, fp := range fps {
		total.Merge(fp)
	}
	return total, nil
}

func readChunk(in io.Reader, chunk []byte, i int) error {
	if len(chunk) == 0 {
		return nil
	}
	if _, err := io.ReadFull(in, chunk); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &record.FormatError{Size: -1, Detail: "input ended early while filling partition " + partitionName(i)}
		}
		return record.WrapIO("read input", "", err)
	}
	return nil
}

func (p *Partitioner) writeChunk(i int, chunk, scratch []byte, part *Partition) (record.Fingerprint, error) {
	var fp record.Fingerprint
	if len(chunk)%p.layout.Size != 0 {
		return fp, &record.FormatError{Size: int64(len(chunk)), RecordSize: p.layout.Size,
			Detail: "chunk for " + partitionName(i) + " is not record aligned"}
	}
	ShuffleRecords(chunk, p.layout, p.rng.Derive(uint64(i)), scratch)
	fp.AddAll(chunk, p.layout.Size)
	if err := part.Write(chunk); err != nil {
		return fp, err
	}
	p.log.Debug().
		Int("partition", i).
		Uint64("records", fp.Count).
		Msg("partition written")
	return fp, nil
}

// ShuffleRecords permutes the whole records of buf in place with a Fisher-Yates
// pass: for idx from the last record down to 1, swap idx with a uniform j in [0, idx].
func ShuffleRecords(buf []byte, layout record.Layout, rng *randx.Source, scratch []byte) {
	n := len(buf) / layout.Size
	for idx := n - 1; idx > 0; idx-- {
		j := rng.IntN(idx + 1)
		layout.Swap(buf, idx, j, scratch)
	}
}
