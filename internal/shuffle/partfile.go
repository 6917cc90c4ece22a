package shuffle

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/bulletutils/internal/record"
)

// State is the lifecycle stage of a partition file.
type State int

const (
	StateCreated  State = iota // open for writing
	StateWritten               // fully written and closed
	StateReopened              // open for reading, records remain
	StateDrained               // every record consumed, file closed
	StateDeleted               // removed from disk
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWritten:
		return "written"
	case StateReopened:
		return "reopened"
	case StateDrained:
		return "drained"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// scratchWindow is the zstd window for compressed partitions. It bounds the
// history each decoder keeps while the merge holds every partition open.
const scratchWindow = 64 * 1024

// decoderFootprint approximates what one open zstd decoder holds: its window
// plus a maximum-size block.
const decoderFootprint = scratchWindow + 128*1024

// Partition is one scratch file. It moves strictly through
// Created -> Written -> Reopened -> Drained -> Deleted.
type Partition struct {
	Index int
	Path  string

	layout     record.Layout
	compressed bool
	state      State

	file *os.File

	br  *bufio.Reader
	dec *zstd.Decoder

	written    int64 // records written
	population int64 // records not yet read
}

func createPartition(index int, path string, layout record.Layout, compressed bool) (*Partition, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, record.WrapIO("create partition", path, err)
	}
	p := &Partition{
		Index:      index,
		Path:       path,
		layout:     layout,
		compressed: compressed,
		state:      StateCreated,
		file:       f,
	}
	return p, nil
}

// State returns the current lifecycle stage.
func (p *Partition) State() State {
	return p.state
}

// Written returns the number of records written.
func (p *Partition) Written() int64 {
	return p.written
}

// Population returns the number of records not yet read.
func (p *Partition) Population() int64 {
	return p.population
}

func (p *Partition) expect(s State, op string) error {
	if p.state != s {
		return record.Invariantf("partition %d: %s in state %s, want %s", p.Index, op, p.state, s)
	}
	return nil
}

// Write appends whole records to the partition. Chunks go straight to the file;
// a compressed chunk becomes one zstd frame whose encoder is released before
// Write returns, so an idle partition holds no buffers.
func (p *Partition) Write(chunk []byte) error {
	if err := p.expect(StateCreated, "write"); err != nil {
		return err
	}
	if err := p.layout.Check(p.Path, int64(len(chunk))); err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}
	if p.compressed {
		if err := p.writeFrame(chunk); err != nil {
			return err
		}
	} else if _, err := p.file.Write(chunk); err != nil {
		return record.WrapIO("write partition", p.Path, err)
	}
	p.written += int64(len(chunk) / p.layout.Size)
	return nil
}

func (p *Partition) writeFrame(chunk []byte) error {
	enc, err := zstd.NewWriter(p.file,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
		zstd.WithWindowSize(scratchWindow),
		zstd.WithLowerEncoderMem(true))
	if err != nil {
		return record.WrapIO("create partition encoder", p.Path, err)
	}
	if _, err := enc.Write(chunk); err != nil {
		enc.Close()
		return record.WrapIO("compress partition", p.Path, err)
	}
	if err := enc.Close(); err != nil {
		return record.WrapIO("flush partition encoder", p.Path, err)
	}
	return nil
}

// Finish closes the partition for writing.
func (p *Partition) Finish() error {
	if err := p.expect(StateCreated, "finish"); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		p.file = nil
		return record.WrapIO("close partition", p.Path, err)
	}
	p.file = nil
	p.state = StateWritten
	return nil
}

// Reopen opens the written partition for reading and sets its population.
// Raw partitions take the population from the file length; compressed ones use
// the count recorded while writing.
func (p *Partition) Reopen(bufSize int) error {
	if err := p.expect(StateWritten, "reopen"); err != nil {
		return err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return record.WrapIO("reopen partition", p.Path, err)
	}

	if p.compressed {
		dec, err := zstd.NewReader(f,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
			zstd.WithDecoderMaxWindow(scratchWindow))
		if err != nil {
			f.Close()
			return record.WrapIO("open partition decoder", p.Path, err)
		}
		p.dec = dec
		p.br = bufio.NewReaderSize(dec, bufSize)
		p.population = p.written
	} else {
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return record.WrapIO("stat partition", p.Path, err)
		}
		n, err := p.layout.Count(p.Path, fi.Size())
		if err != nil {
			f.Close()
			return err
		}
		if n != p.written {
			f.Close()
			return &record.FormatError{Path: p.Path, Size: -1,
				Detail: "partition holds a different record count than was written"}
		}
		p.br = bufio.NewReaderSize(f, bufSize)
		p.population = n
	}
	adviseSequential(f)
	p.file = f
	p.state = StateReopened
	if p.population == 0 {
		return p.drain()
	}
	return nil
}

// ReadRecord reads the next record into dst, which must hold one record.
func (p *Partition) ReadRecord(dst []byte) error {
	if p.state == StateDrained {
		return record.Invariantf("partition %d: read from drained partition", p.Index)
	}
	if err := p.expect(StateReopened, "read"); err != nil {
		return err
	}
	if _, err := io.ReadFull(p.br, dst[:p.layout.Size]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &record.FormatError{Path: p.Path, Size: -1,
				Detail: "partition ended before its population was consumed"}
		}
		return record.WrapIO("read partition", p.Path, err)
	}
	p.population--
	if p.population == 0 {
		return p.drain()
	}
	return nil
}

func (p *Partition) drain() error {
	err := p.closeReader()
	p.state = StateDrained
	return err
}

func (p *Partition) closeReader() error {
	if p.dec != nil {
		p.dec.Close()
		p.dec = nil
	}
	p.br = nil
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return record.WrapIO("close partition", p.Path, err)
}

// Remove closes any open handle and deletes the file. It is valid in every state.
func (p *Partition) Remove() error {
	if p.state == StateDeleted {
		return nil
	}
	p.closeReader()
	p.state = StateDeleted
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return record.WrapIO("remove partition", p.Path, err)
	}
	return nil
}
