package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/freeeve/bulletutils/internal/config"
	"github.com/freeeve/bulletutils/internal/convert"
	"github.com/freeeve/bulletutils/internal/logx"
)

func main() {
	defaultRatingMin := 2000
	if envRating := os.Getenv("BULLETUTILS_RATING_MIN"); envRating != "" {
		if rating, err := strconv.Atoi(envRating); err == nil {
			defaultRatingMin = rating
		}
	}

	var (
		input      = pflag.StringP("input", "i", "", "Input file (.txt, .pgn, optionally .zst)")
		output     = pflag.StringP("output", "o", "", "Output file of 32-byte records")
		format     = pflag.String("format", "text", "Input format: text or pgn")
		ratingMin  = pflag.Int("rating-min", defaultRatingMin, "Rating floor for PGN games")
		minPly     = pflag.Int("min-ply", 8, "Skip PGN positions before this ply")
		keepChecks = pflag.Bool("keep-checks", false, "Keep PGN positions with the side to move in check")
		engine     = pflag.String("engine", "", "UCI engine for PGN scores (default $"+config.EnvStockfish+")")
		depth      = pflag.Int("depth", 8, "Engine search depth")
		hashMB     = pflag.Int("hash", 64, "Engine hash size in MB")
	)
	pflag.Parse()

	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Usage: convert --input <file> --output <file> [options]")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		stats  convert.Stats
		err    error
		scorer *convert.EngineScorer
	)
	switch *format {
	case "text":
		stats, err = convert.FromText(ctx, convert.TextConfig{Input: *input, Output: *output, Logger: logger})
	case "pgn":
		cfg := convert.PGNConfig{
			Input:      *input,
			Output:     *output,
			RatingMin:  *ratingMin,
			MinPly:     *minPly,
			KeepChecks: *keepChecks,
			Logger:     logger,
		}
		if path := config.StockfishPath(*engine); path != "" {
			scorer, err = convert.NewEngineScorer(convert.EngineConfig{Path: path, Depth: *depth, HashMB: *hashMB})
			if err != nil {
				logger.Fatal().Err(err).Str("engine", path).Msg("start engine")
			}
			cfg.Scorer = scorer
			logger.Info().Str("engine", path).Int("depth", *depth).Msg("scoring positions")
		}
		stats, err = convert.FromPGN(ctx, cfg)
	default:
		logger.Fatal().Str("format", *format).Msg("unknown format")
	}
	// Fatal exits without running defers, so the engine is stopped here
	if scorer != nil {
		scorer.Close()
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("convert failed")
	}
	logger.Info().
		Int64("read", stats.Lines).
		Int64("records", stats.Records).
		Int64("skipped", stats.Skipped).
		Dur("elapsed", stats.Elapsed).
		Msg("done")
}
