package shuffle

import (
	"fmt"

	"github.com/freeeve/bulletutils/internal/record"
)

// MinPartitions is the floor on the partition count, however small the input.
const MinPartitions = 2

// maxMergeBuffer caps the read buffer of each partition during the merge phase.
const maxMergeBuffer = 1024 * 1024

// Plan is the partition layout computed from the input size and memory budget.
type Plan struct {
	InputBytes   int64
	Records      int64
	RecordSize   int
	Partitions   int   // K
	ChunkBytes   int64 // B: upper bound on bytes per partition, a whole number of records
	MergeBufSize int   // read buffer per partition while merging
}

// NewPlan computes K and B for inputBytes of records under budget bytes of memory.
// With workers > 1 the budget is split so all chunk buffers together stay inside it.
//
// K = max(MinPartitions, ceil(S / (M / workers)))
// B = floor(N / K) * R + R
func NewPlan(inputBytes int64, layout record.Layout, budget int64, workers int) (Plan, error) {
	if workers < 1 {
		workers = 1
	}
	records, err := layout.Count("", inputBytes)
	if err != nil {
		return Plan{}, err
	}
	r := int64(layout.Size)
	chunkBudget := budget / int64(workers)
	if chunkBudget < r {
		return Plan{}, fmt.Errorf("memory budget %d bytes over %d workers cannot hold one %d-byte record", budget, workers, r)
	}

	k := (inputBytes + chunkBudget - 1) / chunkBudget
	if k < MinPartitions {
		k = MinPartitions
	}

	p := Plan{
		InputBytes: inputBytes,
		Records:    records,
		RecordSize: layout.Size,
		Partitions: int(k),
		ChunkBytes: records/k*r + r,
	}

	// read buffers share half the budget, never less than one record each
	p.MergeBufSize = int(min(max(budget/(2*k), r), maxMergeBuffer))
	return p, nil
}

// Range returns the input byte range [off, off+n) assigned to partition i.
// Trailing partitions may be empty.
func (p Plan) Range(i int) (off, n int64) {
	off = int64(i) * p.ChunkBytes
	if off >= p.InputBytes {
		return p.InputBytes, 0
	}
	n = p.ChunkBytes
	if off+n > p.InputBytes {
		n = p.InputBytes - off
	}
	return off, n
}
