package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/freeeve/bulletutils/internal/record"
)

func kingsOnly() record.ChessBoard {
	var b record.ChessBoard
	b.Occ = 1<<4 | 1<<60
	b.SetPiece(0, record.King)
	b.SetPiece(1, record.King|record.OpponentFlag)
	b.Ksq = 4
	b.OppKsq = 60
	b.Result = record.ResultDraw
	return b
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileChessBoard(t *testing.T) {
	good := kingsOnly()
	badResult := kingsOnly()
	badResult.Result = 7
	badKing := kingsOnly()
	badKing.Ksq = 5

	var data []byte
	data = record.EncodeChessBoard(data, good)
	data = record.EncodeChessBoard(data, badResult)
	data = record.EncodeChessBoard(data, good)
	data = record.EncodeChessBoard(data, badKing)
	path := writeFile(t, "boards.bin", data)

	rep, err := File(context.Background(), path, record.ChessBoardLayout, Options{ChessBoard: true})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if rep.Records != 4 || rep.Invalid != 2 || rep.OK() {
		t.Fatalf("report = %+v, want 4 records, 2 invalid", rep)
	}
	if len(rep.Issues) != 2 || rep.Issues[0].Index != 1 || rep.Issues[1].Index != 3 {
		t.Errorf("issues = %+v, want records 1 and 3", rep.Issues)
	}
	if rep.Fingerprint.Count != 4 {
		t.Errorf("fingerprint count = %d", rep.Fingerprint.Count)
	}
}

func TestFileMaxIssues(t *testing.T) {
	bad := kingsOnly()
	bad.Result = 9
	var data []byte
	for i := 0; i < 25; i++ {
		data = record.EncodeChessBoard(data, bad)
	}
	path := writeFile(t, "bad.bin", data)

	rep, err := File(context.Background(), path, record.ChessBoardLayout, Options{ChessBoard: true})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if rep.Invalid != 25 || len(rep.Issues) != DefaultMaxIssues {
		t.Errorf("invalid %d, listed %d", rep.Invalid, len(rep.Issues))
	}
	rep, err = File(context.Background(), path, record.ChessBoardLayout, Options{ChessBoard: true, MaxIssues: -1})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(rep.Issues) != 0 {
		t.Errorf("listed %d issues with MaxIssues < 0", len(rep.Issues))
	}
}

func TestFileRawLayoutSkipsChecks(t *testing.T) {
	path := writeFile(t, "raw.bin", make([]byte, 96))
	rep, err := File(context.Background(), path, record.Layout{Size: 32}, Options{})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if rep.Records != 3 || !rep.OK() {
		t.Errorf("report = %+v", rep)
	}
}

func TestFileErrors(t *testing.T) {
	path := writeFile(t, "short.bin", make([]byte, 33))
	if _, err := File(context.Background(), path, record.ChessBoardLayout, Options{}); !errors.Is(err, record.ErrFormat) {
		t.Errorf("misaligned: err = %v, want ErrFormat", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.bin")
	if _, err := File(context.Background(), missing, record.ChessBoardLayout, Options{}); !errors.Is(err, record.ErrIO) {
		t.Errorf("missing: err = %v, want ErrIO", err)
	}
	if _, err := File(context.Background(), path, record.Layout{Size: 16}, Options{ChessBoard: true}); err == nil {
		t.Error("chess board checks accepted a 16-byte layout")
	}
}

func TestCompare(t *testing.T) {
	a := writeFile(t, "a.bin", []byte{1, 0, 2, 0, 3, 0})
	permuted := writeFile(t, "b.bin", []byte{3, 0, 1, 0, 2, 0})
	changed := writeFile(t, "c.bin", []byte{3, 0, 1, 0, 1, 0})
	layout := record.Layout{Size: 2}

	cmp, err := Compare(context.Background(), a, permuted, layout)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !cmp.Same() {
		t.Error("permutation reported as different")
	}
	cmp, err = Compare(context.Background(), a, changed, layout)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp.Same() {
		t.Error("different multisets reported as same")
	}
}
