package stats

import "math"

// ExpectedScore is the logistic expected score for an Elo difference.
func ExpectedScore(diff float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, -diff/400.0))
}

// EloFromScore inverts ExpectedScore. Scores of 0 and 1 map to -Inf/+Inf.
func EloFromScore(score float64) float64 {
	switch {
	case score <= 0:
		return math.Inf(-1)
	case score >= 1:
		return math.Inf(1)
	}
	return -400.0 * math.Log10(1.0/score-1.0)
}

// Estimate is an Elo difference with its 95% error margin.
type Estimate struct {
	Elo   float64 `json:"elo"`
	Error float64 `json:"error"`
	Score float64 `json:"score"`
	LOS   float64 `json:"los"`
	Draws float64 `json:"draw_ratio"`
}

const z95 = 1.959963984540054

// EstimateElo derives the Elo difference from trinomial counts (new engine's view).
func EstimateElo(wins, losses, draws int) Estimate {
	n := float64(wins + losses + draws)
	if n == 0 {
		return Estimate{Score: 0.5, LOS: 0.5}
	}
	w, l, d := float64(wins)/n, float64(losses)/n, float64(draws)/n
	score := w + d/2

	dev := w*sq(1-score) + l*sq(0-score) + d*sq(0.5-score)
	stdev := math.Sqrt(dev) / math.Sqrt(n)

	lo := clamp(score-z95*stdev, 1e-9, 1-1e-9)
	hi := clamp(score+z95*stdev, 1e-9, 1-1e-9)

	return Estimate{
		Elo:   EloFromScore(clamp(score, 1e-9, 1-1e-9)),
		Error: (EloFromScore(hi) - EloFromScore(lo)) / 2,
		Score: score,
		LOS:   LOS(wins, losses),
		Draws: d,
	}
}

// LOS is the likelihood of superiority from decisive games only.
func LOS(wins, losses int) float64 {
	if wins+losses == 0 {
		return 0.5
	}
	return 0.5 * (1 + math.Erf(float64(wins-losses)/math.Sqrt(2*float64(wins+losses))))
}

// ---- helpers ----

func sq(x float64) float64 { return x * x }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
