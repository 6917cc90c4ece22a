package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"0", 0, false},
		{"4k", 4 << 10, false},
		{"512m", 512 << 20, false},
		{"512MB", 512 << 20, false},
		{"4g", 4 << 30, false},
		{"2GiB", 2 << 30, false},
		{"1t", 1 << 40, false},
		{" 8K ", 8 << 10, false},
		{"", 0, true},
		{"m", 0, true},
		{"-5m", 0, true},
		{"1.5g", 0, true},
		{"99999999999t", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	for n, want := range map[int64]string{
		0:          "0",
		1000:       "1000",
		4 << 10:    "4k",
		3 << 20:    "3m",
		1 << 30:    "1g",
		1025:       "1025",
		5 << 40:    "5t",
		1536 << 10: "1536k",
	} {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestSizeFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	mem := Size(64 << 20)
	fs.Var(&mem, "mem", "memory budget")
	if err := fs.Parse([]string{"--mem", "2g"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if mem.Bytes() != 2<<30 {
		t.Errorf("mem = %d, want %d", mem.Bytes(), int64(2<<30))
	}
	if got := fs.Lookup("mem").Value.String(); got != "2g" {
		t.Errorf("flag string = %q, want 2g", got)
	}
	if err := fs.Parse([]string{"--mem", "lots"}); err == nil {
		t.Error("invalid size accepted")
	}
}

func TestTempDirFallback(t *testing.T) {
	t.Setenv(EnvTempDir, "/scratch/env")
	if got := TempDir("/flag"); got != "/flag" {
		t.Errorf("TempDir with flag = %q", got)
	}
	if got := TempDir(""); got != "/scratch/env" {
		t.Errorf("TempDir from env = %q", got)
	}
	t.Setenv(EnvTempDir, "")
	if got := TempDir(""); got != "" {
		t.Errorf("TempDir with nothing set = %q, want empty", got)
	}
	t.Setenv(EnvStockfish, "/usr/bin/stockfish")
	if got := StockfishPath(""); got != "/usr/bin/stockfish" {
		t.Errorf("StockfishPath from env = %q", got)
	}
}
