package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpectedScoreRoundTrip(t *testing.T) {
	for _, diff := range []float64{-400, -35, 0, 10, 200} {
		require.InDelta(t, diff, EloFromScore(ExpectedScore(diff)), 1e-9)
	}
	require.True(t, math.IsInf(EloFromScore(0), -1))
	require.True(t, math.IsInf(EloFromScore(1), 1))
}

func TestEstimateElo(t *testing.T) {
	e := EstimateElo(200, 150, 50)
	require.InDelta(t, 0.5625, e.Score, 1e-12)
	require.InDelta(t, 43.66, e.Elo, 0.05)
	require.Greater(t, e.Error, 0.0)
	require.Less(t, e.Error, 60.0)
	require.InDelta(t, 0.125, e.Draws, 1e-12)
	require.Greater(t, e.LOS, 0.99)

	empty := EstimateElo(0, 0, 0)
	require.Equal(t, 0.5, empty.Score)
	require.Zero(t, empty.Elo)
}

func TestLOS(t *testing.T) {
	require.Equal(t, 0.5, LOS(0, 0))
	require.InDelta(t, 0.5, LOS(10, 10), 1e-12)
	require.Less(t, LOS(5, 20), 0.01)
}

func TestWilsonCI95(t *testing.T) {
	lo, hi := WilsonCI95(0, 0, 0)
	require.Equal(t, 0.0, lo)
	require.Equal(t, 1.0, hi)

	lo, hi = WilsonCI95(200, 50, 400)
	require.Less(t, lo, 0.5625)
	require.Greater(t, hi, 0.5625)
	require.Greater(t, lo, 0.5)
}

func TestGlickoPair(t *testing.T) {
	p := NewPair()
	for i := 0; i < 20; i++ {
		p.Record(1)
	}
	require.Greater(t, p.New.Rating, 1500.0)
	require.Less(t, p.Base.Rating, 1500.0)
	require.Less(t, p.New.RD, 350.0)
	require.Equal(t, 20, p.New.Games)

	// symmetric after an even split
	q := NewPair()
	q.Record(1)
	q.Record(0)
	require.InDelta(t, 3000.0, q.New.Rating+q.Base.Rating, 1e-6)
}
