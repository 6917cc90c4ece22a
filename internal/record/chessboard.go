package record

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// ChessBoard encoding: 32 bytes, little endian
// - Occ (uint64): occupancy bitboard, square 0 = a1, from side-to-move's view
// - Pcs ([16]byte): 4-bit piece codes in ascending occupancy order, low nibble first
// - Score (int16): centipawns, side-to-move relative
// - Result (uint8): 0 = loss, 1 = draw, 2 = win for side to move
// - Ksq (uint8): side-to-move king square
// - OppKsq (uint8): opponent king square, from side-to-move's view
// - Extra ([3]byte): reserved

const ChessBoardSize = 8 + 16 + 2 + 1 + 1 + 1 + 3 // 32 bytes

// Piece codes stored in the low three bits of a nibble. Bit 3 marks an opponent piece.
const (
	Pawn uint8 = iota
	Knight
	Bishop
	Rook
	Queen
	King

	OpponentFlag uint8 = 0x8
	pieceMask    uint8 = 0x7
)

// Game results from the side to move's perspective.
const (
	ResultLoss uint8 = 0
	ResultDraw uint8 = 1
	ResultWin  uint8 = 2
)

// ChessBoard is a decoded training position.
type ChessBoard struct {
	Occ    uint64
	Pcs    [16]byte
	Score  int16
	Result uint8
	Ksq    uint8
	OppKsq uint8
	Extra  [3]byte
}

// EncodeChessBoard appends the 32-byte encoding of b to dst.
func EncodeChessBoard(dst []byte, b ChessBoard) []byte {
	var buf [ChessBoardSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], b.Occ)
	copy(buf[8:24], b.Pcs[:])
	binary.LittleEndian.PutUint16(buf[24:26], uint16(b.Score))
	buf[26] = b.Result
	buf[27] = b.Ksq
	buf[28] = b.OppKsq
	copy(buf[29:32], b.Extra[:])
	return append(dst, buf[:]...)
}

// DecodeChessBoard decodes one record.
func DecodeChessBoard(data []byte) (ChessBoard, error) {
	if len(data) < ChessBoardSize {
		return ChessBoard{}, fmt.Errorf("chess board too short: got %d bytes, need %d", len(data), ChessBoardSize)
	}
	var b ChessBoard
	b.Occ = binary.LittleEndian.Uint64(data[0:8])
	copy(b.Pcs[:], data[8:24])
	b.Score = int16(binary.LittleEndian.Uint16(data[24:26]))
	b.Result = data[26]
	b.Ksq = data[27]
	b.OppKsq = data[28]
	copy(b.Extra[:], data[29:32])
	return b, nil
}

// PieceCount returns the number of occupied squares.
func (b *ChessBoard) PieceCount() int {
	return bits.OnesCount64(b.Occ)
}

// Piece returns the nibble for the i-th occupied square.
func (b *ChessBoard) Piece(i int) uint8 {
	v := b.Pcs[i/2]
	if i%2 == 1 {
		v >>= 4
	}
	return v & 0xF
}

// SetPiece stores the nibble for the i-th occupied square.
func (b *ChessBoard) SetPiece(i int, code uint8) {
	shift := uint(i%2) * 4
	b.Pcs[i/2] = b.Pcs[i/2]&^(0xF<<shift) | (code&0xF)<<shift
}

// PieceAt returns the nibble at sq and whether sq is occupied.
func (b *ChessBoard) PieceAt(sq uint8) (uint8, bool) {
	if sq >= 64 || b.Occ&(1<<sq) == 0 {
		return 0, false
	}
	idx := bits.OnesCount64(b.Occ & (1<<sq - 1))
	return b.Piece(idx), true
}

// Validate checks the structural consistency of a decoded board.
func (b *ChessBoard) Validate() error {
	n := b.PieceCount()
	if n > 32 {
		return fmt.Errorf("%d occupied squares, max 32", n)
	}
	if b.Result > ResultWin {
		return fmt.Errorf("result %d out of range", b.Result)
	}
	if b.Ksq >= 64 || b.OppKsq >= 64 {
		return fmt.Errorf("king squares %d/%d out of range", b.Ksq, b.OppKsq)
	}
	var kings, oppKings int
	for i := 0; i < n; i++ {
		code := b.Piece(i)
		if code&pieceMask > King {
			return fmt.Errorf("piece %d has invalid code %#x", i, code)
		}
		if code&pieceMask == King {
			if code&OpponentFlag != 0 {
				oppKings++
			} else {
				kings++
			}
		}
	}
	if kings != 1 || oppKings != 1 {
		return fmt.Errorf("found %d/%d kings, want 1/1", kings, oppKings)
	}
	if code, ok := b.PieceAt(b.Ksq); !ok || code != King {
		return fmt.Errorf("king square %d does not hold the side-to-move king", b.Ksq)
	}
	if code, ok := b.PieceAt(b.OppKsq); !ok || code != King|OpponentFlag {
		return fmt.Errorf("king square %d does not hold the opponent king", b.OppKsq)
	}
	for i := n; i < 32; i++ {
		if b.Piece(i) != 0 {
			return fmt.Errorf("unused piece slot %d is not zero", i)
		}
	}
	return nil
}
