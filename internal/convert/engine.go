package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/uci"
)

// EngineConfig configures a UCI engine scorer.
type EngineConfig struct {
	Path    string
	Depth   int // search depth per position (default 8)
	HashMB  int // default 64
	Threads int // default 1
}

// EngineScorer scores positions with a UCI engine such as Stockfish.
// It is not safe for concurrent use.
type EngineScorer struct {
	engine *uci.Engine
	depth  int
}

// NewEngineScorer starts the engine at cfg.Path.
func NewEngineScorer(cfg EngineConfig) (*EngineScorer, error) {
	if cfg.Path == "" {
		return nil, errors.New("engine path is required")
	}
	if cfg.Depth == 0 {
		cfg.Depth = 8
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 64
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}

	engine, err := uci.NewEngine(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	opts := uci.Options{
		Hash:    cfg.HashMB,
		Threads: cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := engine.SetOptions(opts); err != nil {
		engine.Close()
		return nil, fmt.Errorf("set options: %w", err)
	}
	return &EngineScorer{engine: engine, depth: cfg.Depth}, nil
}

// Score searches fen to the configured depth. Mate scores are clamped to
// +-MaxScore.
func (s *EngineScorer) Score(ctx context.Context, fen string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.engine.SetFEN(fen); err != nil {
		return 0, fmt.Errorf("set FEN: %w", err)
	}
	results, err := s.engine.GoDepth(s.depth, uci.HighestDepthOnly)
	if err != nil {
		return 0, fmt.Errorf("engine eval: %w", err)
	}
	if len(results.Results) == 0 {
		return 0, errors.New("no results from engine")
	}
	best := results.Results[0]
	for _, r := range results.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}

	score := best.Score
	if best.Mate {
		score = MaxScore
		if best.Score < 0 {
			score = -MaxScore
		}
	}
	// engine scores are side-to-move relative
	if strings.Contains(fen, " b ") {
		score = -score
	}
	return score, nil
}

// Close stops the engine.
func (s *EngineScorer) Close() {
	s.engine.Close()
}
