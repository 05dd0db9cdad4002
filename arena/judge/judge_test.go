package judge

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
)

func TestFoolsMate(t *testing.T) {
	b, err := New(StartFEN)
	require.NoError(t, err)
	require.Equal(t, chess.White, b.Turn())

	for _, m := range []string{"f2f3", "e7e5", "g2g4"} {
		require.NoError(t, b.Play(m))
		require.False(t, b.Verdict().Over)
	}
	require.NoError(t, b.Play("d8h4"))

	v := b.Verdict()
	require.True(t, v.Over)
	require.Equal(t, chess.Black, v.Winner)
	require.Equal(t, Checkmate, v.Reason)
	require.Equal(t, 4, b.Plies())
	require.Error(t, b.Play("e2e4"))
}

func TestIllegalMove(t *testing.T) {
	b, err := New(StartFEN)
	require.NoError(t, err)
	require.Error(t, b.Play("e2e5"))
	require.Error(t, b.Play("zz"))
	require.Zero(t, b.Plies())
}

func TestLegalMovesSorted(t *testing.T) {
	b, err := New(StartFEN)
	require.NoError(t, err)
	moves := b.LegalMoves()
	require.Len(t, moves, 20)
	require.Equal(t, "a2a3", moves[0])
	require.Contains(t, moves, "g1f3")
}

func TestStalemate(t *testing.T) {
	b, err := New("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)
	v := b.Verdict()
	require.True(t, v.Over)
	require.Equal(t, chess.NoColor, v.Winner)
	require.Equal(t, Stalemate, v.Reason)
}

func TestRepetitionIsClaimed(t *testing.T) {
	b, err := New(StartFEN)
	require.NoError(t, err)
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	for i := 0; i < 2; i++ {
		for _, m := range shuffle {
			require.False(t, b.Verdict().Over)
			require.NoError(t, b.Play(m))
		}
	}
	v := b.Verdict()
	require.True(t, v.Over)
	require.Equal(t, Repetition, v.Reason)
	require.Equal(t, chess.NoColor, v.Winner)
}

func TestFiftyMoveRuleFromFEN(t *testing.T) {
	b, err := New("4k3/8/8/8/8/8/4P3/4K2R w K - 99 80")
	require.NoError(t, err)
	require.False(t, b.Verdict().Over)
	require.NoError(t, b.Play("h1h2"))
	v := b.Verdict()
	require.True(t, v.Over)
	require.Equal(t, FiftyMoves, v.Reason)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(StartFEN))
	require.Error(t, Validate("not a fen"))
	require.Error(t, Validate("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"))
}
