package shuffle

import (
	"bufio"
	"os"

	"github.com/freeeve/bulletutils/internal/record"
)

const outputBufSize = 1024 * 1024

// Output writes a result file to <path>.tmp and renames it into place on Commit.
// An output that is aborted or never committed leaves nothing at path.
type Output struct {
	path string
	tmp  string
	file *os.File
	bw   *bufio.Writer
	done bool
}

// CreateOutput opens the temporary file for path.
func CreateOutput(path string) (*Output, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, record.WrapIO("create output", tmp, err)
	}
	return &Output{
		path: path,
		tmp:  tmp,
		file: f,
		bw:   bufio.NewWriterSize(f, outputBufSize),
	}, nil
}

// Path returns the final output path.
func (o *Output) Path() string {
	return o.path
}

func (o *Output) Write(p []byte) (int, error) {
	return o.bw.Write(p)
}

// Commit flushes, syncs and renames the output into place.
func (o *Output) Commit() error {
	if o.done {
		return record.Invariantf("output %s already closed", o.path)
	}
	o.done = true
	if err := o.bw.Flush(); err != nil {
		o.discard()
		return record.WrapIO("flush output", o.tmp, err)
	}
	if err := o.file.Sync(); err != nil {
		o.discard()
		return record.WrapIO("sync output", o.tmp, err)
	}
	if err := o.file.Close(); err != nil {
		os.Remove(o.tmp)
		return record.WrapIO("close output", o.tmp, err)
	}
	if err := os.Rename(o.tmp, o.path); err != nil {
		os.Remove(o.tmp)
		return record.WrapIO("rename output", o.path, err)
	}
	return nil
}

// Abort discards the output. It is a no-op after Commit.
func (o *Output) Abort() {
	if o.done {
		return
	}
	o.done = true
	o.discard()
}

func (o *Output) discard() {
	o.file.Close()
	os.Remove(o.tmp)
}
