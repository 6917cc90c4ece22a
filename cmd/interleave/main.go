package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/freeeve/bulletutils/internal/interleave"
	"github.com/freeeve/bulletutils/internal/logx"
	"github.com/freeeve/bulletutils/internal/randx"
	"github.com/freeeve/bulletutils/internal/record"
)

func main() {
	var (
		output     = pflag.StringP("output", "o", "", "Output file")
		seed       = pflag.Uint64("seed", 0, "Random seed (default: random, logged for replay)")
		recordSize = pflag.Int("record-size", record.ChessBoardSize, "Bytes per record")
	)
	pflag.Parse()

	if *output == "" || pflag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: interleave --output <file> [options] INPUT...")
		pflag.PrintDefaults()
		os.Exit(1)
	}
	rng := randx.NewUnseeded()
	if pflag.CommandLine.Changed("seed") {
		rng = randx.New(*seed)
	}

	logger := logx.NewLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats, err := interleave.Run(ctx, interleave.Config{
		Inputs:     pflag.Args(),
		Output:     *output,
		RecordSize: *recordSize,
		Rand:       rng,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Uint64("seed", rng.Seed()).Msg("interleave failed")
	}
	logger.Info().
		Int64("records", stats.Records).
		Ints64("per_input", stats.PerInput).
		Uint64("seed", stats.Seed).
		Str("fingerprint", stats.Fingerprint.String()).
		Msg("done")
}
