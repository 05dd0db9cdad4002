// Package judge is the rules check the game runner trusts: it validates moves
// and decides when a game is over, independent of what the engines claim.
package judge

import (
	"fmt"
	"sort"

	"github.com/notnil/chess"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Reason explains why a position is terminal.
type Reason string

const (
	Checkmate            Reason = "checkmate"
	Stalemate            Reason = "stalemate"
	InsufficientMaterial Reason = "insufficient_material"
	Repetition           Reason = "repetition"
	FiftyMoves           Reason = "fifty_moves"
)

// Verdict is the rules check's view of the current position.
type Verdict struct {
	Over   bool
	Winner chess.Color // chess.NoColor for draws
	Reason Reason
}

// Board wraps a chess game that started from a given FEN.
type Board struct {
	start string
	g     *chess.Game
	moves []string
}

// Validate reports whether fen describes a legal, playable position.
func Validate(fen string) error {
	b, err := New(fen)
	if err != nil {
		return err
	}
	if v := b.Verdict(); v.Over {
		return fmt.Errorf("position is already terminal (%s)", v.Reason)
	}
	return nil
}

func New(fen string) (*Board, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	g := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	if err := kingCount(g.Position()); err != nil {
		return nil, err
	}
	return &Board{start: fen, g: g}, nil
}

// kingCount rejects positions without exactly one king per side; the FEN
// decoder accepts them.
func kingCount(pos *chess.Position) error {
	var kings [3]int
	for _, p := range pos.Board().SquareMap() {
		if p.Type() == chess.King {
			kings[p.Color()]++
		}
	}
	if kings[chess.White] != 1 || kings[chess.Black] != 1 {
		return fmt.Errorf("position needs exactly one king per side")
	}
	return nil
}

func (b *Board) StartFEN() string { return b.start }

// FEN of the current position.
func (b *Board) FEN() string { return b.g.Position().String() }

func (b *Board) Moves() []string { return append([]string(nil), b.moves...) }

func (b *Board) Plies() int { return len(b.moves) }

func (b *Board) Turn() chess.Color { return b.g.Position().Turn() }

// LegalMoves returns the legal moves in UCI notation, sorted.
func (b *Board) LegalMoves() []string {
	pos := b.g.Position()
	valid := pos.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, m := range valid {
		out = append(out, chess.UCINotation{}.Encode(pos, m))
	}
	sort.Strings(out)
	return out
}

// Play applies a UCI move. An error means the move is illegal here.
func (b *Board) Play(uci string) error {
	if b.g.Outcome() != chess.NoOutcome {
		return fmt.Errorf("game already over")
	}
	if err := b.g.MoveStr(uci); err != nil {
		return fmt.Errorf("illegal move %q: %w", uci, err)
	}
	b.moves = append(b.moves, uci)
	return nil
}

// Verdict reports whether the game is over. Threefold repetition and the
// fifty-move rule are claimed on behalf of the players as soon as they apply.
func (b *Board) Verdict() Verdict {
	if b.g.Outcome() == chess.NoOutcome {
		for _, m := range b.g.EligibleDraws() {
			if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
				if err := b.g.Draw(m); err == nil {
					break
				}
			}
		}
	}
	switch b.g.Outcome() {
	case chess.NoOutcome:
		return Verdict{}
	case chess.WhiteWon:
		return Verdict{Over: true, Winner: chess.White, Reason: reasonOf(b.g.Method())}
	case chess.BlackWon:
		return Verdict{Over: true, Winner: chess.Black, Reason: reasonOf(b.g.Method())}
	default:
		return Verdict{Over: true, Winner: chess.NoColor, Reason: reasonOf(b.g.Method())}
	}
}

func reasonOf(m chess.Method) Reason {
	switch m {
	case chess.Checkmate:
		return Checkmate
	case chess.Stalemate:
		return Stalemate
	case chess.InsufficientMaterial:
		return InsufficientMaterial
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return Repetition
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return FiftyMoves
	}
	return Reason(fmt.Sprint(m))
}
