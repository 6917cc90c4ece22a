package convert

import (
	"fmt"
	"strings"

	"github.com/freeeve/bulletutils/internal/record"
)

// MaxScore bounds stored centipawn scores; engine mate scores are clamped to it.
const MaxScore = 32000

var pieceCodes = map[byte]uint8{
	'p': record.Pawn,
	'n': record.Knight,
	'b': record.Bishop,
	'r': record.Rook,
	'q': record.Queen,
	'k': record.King,
}

// ParseFEN builds a board from the placement and side-to-move fields of fen,
// seen from the side to move. When black is to move the board is mirrored
// vertically so the side to move always plays up the board.
func ParseFEN(fen string) (record.ChessBoard, bool, error) {
	var b record.ChessBoard
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return b, false, fmt.Errorf("fen %q: need placement and side to move", fen)
	}
	var black bool
	switch fields[1] {
	case "w":
	case "b":
		black = true
	default:
		return b, false, fmt.Errorf("fen %q: bad side to move %q", fen, fields[1])
	}

	var codes [64]uint8
	var occ uint64
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return b, false, fmt.Errorf("fen %q: %d ranks", fen, len(ranks))
	}
	kings, oppKings := 0, 0
	for i, rank := range ranks {
		r := 7 - i
		file := 0
		for j := 0; j < len(rank); j++ {
			c := rank[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			if file > 7 {
				return b, false, fmt.Errorf("fen %q: rank %d overflows", fen, r+1)
			}
			lower := c | 0x20
			code, ok := pieceCodes[lower]
			if !ok {
				return b, false, fmt.Errorf("fen %q: bad piece %q", fen, c)
			}
			white := c != lower
			sq := uint8(r*8 + file)
			if black {
				sq ^= 56
			}
			if white == black {
				code |= record.OpponentFlag
			}
			switch code {
			case record.King:
				kings++
				b.Ksq = sq
			case record.King | record.OpponentFlag:
				oppKings++
				b.OppKsq = sq
			}
			codes[sq] = code
			occ |= 1 << sq
			file++
		}
		if file != 8 {
			return b, false, fmt.Errorf("fen %q: rank %d has %d files", fen, r+1, file)
		}
	}
	if kings != 1 || oppKings != 1 {
		return b, false, fmt.Errorf("fen %q: want one king per side", fen)
	}

	b.Occ = occ
	n := 0
	for sq := 0; sq < 64; sq++ {
		if occ&(1<<sq) == 0 {
			continue
		}
		if n == 32 {
			return b, false, fmt.Errorf("fen %q: more than 32 pieces", fen)
		}
		b.SetPiece(n, codes[sq])
		n++
	}
	return b, black, nil
}

// BoardFromFEN builds a training record from a FEN with a score and result
// given from white's point of view.
func BoardFromFEN(fen string, whiteScore int, whiteResult uint8) (record.ChessBoard, error) {
	if whiteResult > record.ResultWin {
		return record.ChessBoard{}, fmt.Errorf("result %d out of range", whiteResult)
	}
	b, black, err := ParseFEN(fen)
	if err != nil {
		return b, err
	}
	score := clampScore(whiteScore)
	if black {
		score = -score
		whiteResult = record.ResultWin - whiteResult
	}
	b.Score = int16(score)
	b.Result = whiteResult
	return b, nil
}

func clampScore(s int) int {
	return min(max(s, -MaxScore), MaxScore)
}

// ParseResult reads a game result from white's point of view. It accepts
// "1.0", "0.5", "0.0" and the PGN forms "1-0", "1/2-1/2", "0-1".
func ParseResult(s string) (uint8, error) {
	switch strings.TrimSpace(s) {
	case "1.0", "1", "1-0":
		return record.ResultWin, nil
	case "0.5", "1/2-1/2":
		return record.ResultDraw, nil
	case "0.0", "0", "0-1":
		return record.ResultLoss, nil
	}
	return 0, fmt.Errorf("unknown result %q", s)
}
