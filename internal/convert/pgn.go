package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/freeeve/pgn/v3"
	"github.com/rs/zerolog"

	"github.com/freeeve/bulletutils/internal/record"
	"github.com/freeeve/bulletutils/internal/shuffle"
)

// Scorer evaluates a position. Scores are centipawns from white's point of view.
type Scorer interface {
	Score(ctx context.Context, fen string) (int, error)
}

// PGNConfig configures FromPGN.
type PGNConfig struct {
	Input      string // .pgn or .pgn.zst
	Output     string
	RatingMin  int  // both players must be rated at least this
	MinPly     int  // skip positions before this ply
	KeepChecks bool // keep positions where the side to move is in check
	Scorer     Scorer
	Logger     zerolog.Logger
}

// FromPGN replays every game in the input and writes one record per position
// before each move. Games without a final result are skipped.
func FromPGN(ctx context.Context, cfg PGNConfig) (Stats, error) {
	var stats Stats
	start := time.Now()
	log := cfg.Logger.With().Str("component", "convert").Logger()
	if !isPGNFile(cfg.Input) {
		return stats, fmt.Errorf("%s: not a .pgn or .pgn.zst file", cfg.Input)
	}
	// the parser reports open failures as parse errors, so check readability here
	f, err := os.Open(cfg.Input)
	if err != nil {
		return stats, record.WrapIO("open", cfg.Input, err)
	}
	f.Close()

	out, err := shuffle.CreateOutput(cfg.Output)
	if err != nil {
		return stats, err
	}
	parser := pgn.Games(cfg.Input)
	buf := make([]byte, 0, record.ChessBoardSize)
	lastLog := time.Now()

	var convErr error
gameLoop:
	for game := range parser.Games {
		if err := ctx.Err(); err != nil {
			convErr = err
			parser.Stop()
			break gameLoop
		}
		stats.Lines++

		whiteResult, err := ParseResult(game.Tags["Result"])
		if err != nil {
			stats.Skipped++
			continue
		}
		if parseRating(game.Tags["WhiteElo"]) < cfg.RatingMin || parseRating(game.Tags["BlackElo"]) < cfg.RatingMin {
			stats.Skipped++
			continue
		}

		n, err := writeGame(ctx, cfg, game, whiteResult, out, buf)
		stats.Records += n
		if err != nil {
			convErr = err
			parser.Stop()
			break gameLoop
		}

		if time.Since(lastLog) > 10*time.Second {
			log.Info().
				Str("file", filepath.Base(cfg.Input)).
				Int64("games", stats.Lines).
				Int64("skipped", stats.Skipped).
				Int64("records", stats.Records).
				Msg("convert progress")
			lastLog = time.Now()
		}
	}
	if convErr == nil {
		if err := parser.Err(); err != nil {
			convErr = &record.FormatError{Path: cfg.Input, Size: -1, Detail: err.Error()}
		}
	}
	if convErr != nil {
		out.Abort()
		return stats, convErr
	}
	if err := out.Commit(); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)
	log.Info().
		Str("input", cfg.Input).
		Int64("games", stats.Lines).
		Int64("skipped", stats.Skipped).
		Int64("records", stats.Records).
		Dur("elapsed", stats.Elapsed).
		Msg("pgn conversion complete")
	return stats, nil
}

// writeGame emits the positions of one game and returns how many were written.
func writeGame(ctx context.Context, cfg PGNConfig, game *pgn.Game, whiteResult uint8, out *shuffle.Output, buf []byte) (int64, error) {
	var written int64
	pos := pgn.NewStartingPosition()
	for ply, mv := range game.Moves {
		if ply >= cfg.MinPly && (cfg.KeepChecks || !pos.IsInCheck()) {
			fen := pos.ToFEN()
			score := 0
			if cfg.Scorer != nil {
				s, err := cfg.Scorer.Score(ctx, fen)
				if err != nil {
					return written, fmt.Errorf("score %q: %w", fen, err)
				}
				score = s
			}
			b, err := BoardFromFEN(fen, score, whiteResult)
			if err != nil {
				return written, record.Invariantf("position %q from game replay: %v", fen, err)
			}
			buf = record.EncodeChessBoard(buf[:0], b)
			if _, err := out.Write(buf); err != nil {
				return written, record.WrapIO("write", out.Path(), err)
			}
			written++
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
	}
	return written, nil
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		return filepath.Ext(name[:len(name)-4]) == ".pgn"
	}
	return false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}
