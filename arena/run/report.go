package run

import (
	"fmt"
	"time"

	"engine-arena/arena/match"
	"engine-arena/arena/stats"
)

// Report is the outcome of a run with its supporting statistics.
type Report struct {
	RunID     string             `json:"run_id"`
	Verdict   Verdict            `json:"verdict"`
	StoppedBy StopReason         `json:"stopped_by"`
	Params    stats.Params       `json:"sprt"`
	Snapshot  match.Snapshot     `json:"result"`
	ScoreLow  float64            `json:"score_ci_low"`
	ScoreHigh float64            `json:"score_ci_high"`
	Trace     []match.TracePoint `json:"llr_trace"`
	Duration  time.Duration      `json:"duration_ns"`
}

// Err is ErrRunIncomplete unless the SPRT reached a decision.
func (r *Report) Err() error {
	if r.Verdict == Inconclusive {
		return ErrRunIncomplete
	}
	return nil
}

// GamesPerHour is the counted game throughput.
func (r *Report) GamesPerHour() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Snapshot.Games) / r.Duration.Hours()
}

func wld(s match.Snapshot) string {
	return fmt.Sprintf("%d-%d-%d", s.Wins, s.Losses, s.Draws)
}
