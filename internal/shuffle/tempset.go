package shuffle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/freeeve/bulletutils/internal/record"
)

// TempSet owns the scratch partitions for one run. Partitions live in a private
// run directory under the caller's temp directory; Close removes both the files and
// the run directory, and the temp directory itself if this run created it.
type TempSet struct {
	root        string
	dir         string
	createdRoot bool
	parts       []*Partition
}

// NewTempSet creates k partition files under root.
func NewTempSet(root string, k int, layout record.Layout, compressed bool) (*TempSet, error) {
	if root == "" {
		return nil, errors.New("temp directory is required")
	}
	ts := &TempSet{root: root}
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		ts.createdRoot = true
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, record.WrapIO("create temp directory", root, err)
	}
	dir, err := os.MkdirTemp(root, "shuffle-")
	if err != nil {
		ts.removeRoot()
		return nil, record.WrapIO("create run directory", root, err)
	}
	ts.dir = dir

	ts.parts = make([]*Partition, 0, k)
	for i := 0; i < k; i++ {
		path := filepath.Join(dir, partitionName(i))
		p, err := createPartition(i, path, layout, compressed)
		if err != nil {
			ts.Close()
			return nil, err
		}
		ts.parts = append(ts.parts, p)
	}
	return ts, nil
}

func partitionName(i int) string {
	return fmt.Sprintf("part_%04d.bin", i+1)
}

// Dir returns the run directory holding the partition files.
func (ts *TempSet) Dir() string {
	return ts.dir
}

// Len returns the number of partitions.
func (ts *TempSet) Len() int {
	return len(ts.parts)
}

// Partition returns partition i.
func (ts *TempSet) Partition(i int) *Partition {
	return ts.parts[i]
}

// FinishAll completes the write phase for every partition. Reading may begin only
// after it returns nil.
func (ts *TempSet) FinishAll() error {
	for _, p := range ts.parts {
		if err := p.Finish(); err != nil {
			return err
		}
	}
	return nil
}

// ReopenAll opens every written partition for reading.
func (ts *TempSet) ReopenAll(bufSize int) error {
	for _, p := range ts.parts {
		if err := p.Reopen(bufSize); err != nil {
			return err
		}
	}
	return nil
}

// Sources returns the partitions as merge sources.
func (ts *TempSet) Sources() []Source {
	out := make([]Source, len(ts.parts))
	for i, p := range ts.parts {
		out[i] = p
	}
	return out
}

// Records returns the total number of records written across partitions.
func (ts *TempSet) Records() int64 {
	var n int64
	for _, p := range ts.parts {
		n += p.Written()
	}
	return n
}

// Close removes every partition and the run directory. The first error is returned
// but removal continues past it.
func (ts *TempSet) Close() error {
	var firstErr error
	for _, p := range ts.parts {
		if err := p.Remove(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ts.dir != "" {
		if err := os.RemoveAll(ts.dir); err != nil && firstErr == nil {
			firstErr = record.WrapIO("remove run directory", ts.dir, err)
		}
		ts.dir = ""
	}
	ts.removeRoot()
	return firstErr
}

func (ts *TempSet) removeRoot() {
	if ts.createdRoot {
		// fails harmlessly if someone else put files there meanwhile
		os.Remove(ts.root)
		ts.createdRoot = false
	}
}
