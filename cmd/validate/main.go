package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/freeeve/bulletutils/internal/logx"
	"github.com/freeeve/bulletutils/internal/record"
	"github.com/freeeve/bulletutils/internal/validate"
)

func main() {
	var (
		recordSize = pflag.Int("record-size", record.ChessBoardSize, "Bytes per record")
		layoutName = pflag.String("layout", "chessboard", "Record layout: chessboard or raw")
		compare    = pflag.String("compare", "", "Check that FILE holds the same records as this file")
		maxIssues  = pflag.Int("max-issues", validate.DefaultMaxIssues, "Bad records to list per file")
	)
	pflag.Parse()

	if pflag.NArg() == 0 || (*compare != "" && pflag.NArg() != 1) {
		fmt.Fprintln(os.Stderr, "Usage: validate [options] FILE...")
		fmt.Fprintln(os.Stderr, "       validate --compare OTHER FILE")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	logger := logx.NewLogger()
	layout, err := record.NewLayout(*recordSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad record size")
	}
	var opts validate.Options
	switch *layoutName {
	case "chessboard":
		opts.ChessBoard = true
	case "raw":
	default:
		logger.Fatal().Str("layout", *layoutName).Msg("unknown layout")
	}
	opts.MaxIssues = *maxIssues
	if *maxIssues == 0 {
		opts.MaxIssues = -1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *compare != "" {
		cmp, err := validate.Compare(ctx, *compare, pflag.Arg(0), layout)
		if err != nil {
			logger.Fatal().Err(err).Msg("compare failed")
		}
		ev := logger.Info()
		if !cmp.Same() {
			ev = logger.Error()
		}
		ev.Str("a", cmp.A.Path).
			Str("b", cmp.B.Path).
			Int64("records_a", cmp.A.Records).
			Int64("records_b", cmp.B.Records).
			Bool("same", cmp.Same()).
			Msg("compare")
		if !cmp.Same() {
			os.Exit(1)
		}
		return
	}

	failed := false
	for _, path := range pflag.Args() {
		rep, err := validate.File(ctx, path, layout, opts)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("validate failed")
			failed = true
			continue
		}
		for _, is := range rep.Issues {
			logger.Warn().Str("file", path).Int64("record", is.Index).Str("problem", is.Err).Msg("bad record")
		}
		logger.Info().
			Str("file", path).
			Int64("records", rep.Records).
			Int64("invalid", rep.Invalid).
			Str("fingerprint", rep.Fingerprint.String()).
			Msg("validated")
		if !rep.OK() {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
