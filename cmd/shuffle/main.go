package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/freeeve/bulletutils/internal/config"
	"github.com/freeeve/bulletutils/internal/logx"
	"github.com/freeeve/bulletutils/internal/randx"
	"github.com/freeeve/bulletutils/internal/record"
	"github.com/freeeve/bulletutils/internal/shuffle"
)

func main() {
	var mem config.Size
	var (
		input      = pflag.StringP("input", "i", "", "Input file of fixed-size records")
		output     = pflag.StringP("output", "o", "", "Output file")
		tmpDir     = pflag.String("tmp", "", "Scratch directory (default $"+config.EnvTempDir+")")
		seed       = pflag.Uint64("seed", 0, "Random seed (default: random, logged for replay)")
		workers    = pflag.IntP("workers", "j", 1, "Parallel partition workers, 0 = all CPUs")
		recordSize = pflag.Int("record-size", record.ChessBoardSize, "Bytes per record")
		compress   = pflag.Bool("compress-scratch", false, "zstd-compress scratch partitions")
	)
	pflag.VarP(&mem, "mem", "m", "Memory budget for chunk buffers (e.g. 512m, 4g)")
	pflag.Parse()

	scratch := config.TempDir(*tmpDir)
	if *input == "" || *output == "" || mem.Bytes() <= 0 || scratch == "" {
		fmt.Fprintln(os.Stderr, "Usage: shuffle --input <file> --output <file> --mem <size> --tmp <dir> [options]")
		pflag.PrintDefaults()
		os.Exit(1)
	}
	if *workers == 0 {
		*workers = runtime.NumCPU()
	}
	rng := randx.NewUnseeded()
	if pflag.CommandLine.Changed("seed") {
		rng = randx.New(*seed)
	}

	logger := logx.NewLogger()
	logger.Info().
		Str("input", *input).
		Str("output", *output).
		Str("mem", mem.String()).
		Int("workers", *workers).
		Uint64("seed", rng.Seed()).
		Msg("starting shuffle")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := shuffle.Run(ctx, shuffle.Config{
		Input:           *input,
		Output:          *output,
		TempDir:         scratch,
		MemoryBudget:    mem.Bytes(),
		RecordSize:      *recordSize,
		Rand:            rng,
		Workers:         *workers,
		CompressScratch: *compress,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Uint64("seed", rng.Seed()).Msg("shuffle failed")
	}

	logger.Info().
		Int64("records", stats.Plan.Records).
		Int("partitions", stats.Plan.Partitions).
		Str("fingerprint", stats.Output.String()).
		Dur("partition", stats.PartitionTime).
		Dur("merge", stats.MergeTime).
		Dur("elapsed", stats.Elapsed).
		Msg("done")
}
