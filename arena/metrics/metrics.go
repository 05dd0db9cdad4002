// Package metrics exposes run progress to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
)

var (
	// gamesTotal counts committed games by outcome from the new engine's view
	gamesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_games_total",
		Help: "Committed games by result (win, loss, draw, discarded)",
	}, []string{"result"})

	// terminationsTotal counts how games ended
	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_game_terminations_total",
		Help: "Committed games by termination reason",
	}, []string{"termination"})

	gameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_game_duration_seconds",
		Help:    "Wall-clock duration of committed games",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	})

	moveLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_move_seconds",
		Help:    "Time engines took to answer go",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"engine"})

	llr = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_sprt_llr",
		Help: "Current SPRT log-likelihood ratio",
	})

	eloEstimate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_elo_estimate",
		Help: "Current Elo difference estimate of new over base",
	})
)

// Sink updates the collectors for every committed game.
type Sink struct{}

func (Sink) Name() string { return "metrics" }

func (Sink) Record(_ context.Context, rec game.Record, snap match.Snapshot) error {
	terminationsTotal.WithLabelValues(string(rec.Termination)).Inc()
	gameDuration.Observe(rec.Duration.Seconds())
	llr.Set(snap.LLR)
	eloEstimate.Set(snap.Elo.Elo)

	if !rec.Counted() {
		gamesTotal.WithLabelValues("discarded").Inc()
		return nil
	}
	switch rec.Score() {
	case 1:
		gamesTotal.WithLabelValues("win").Inc()
	case 0:
		gamesTotal.WithLabelValues("loss").Inc()
	default:
		gamesTotal.WithLabelValues("draw").Inc()
	}
	return nil
}

// ObserveMove is a game.Runner OnMove hook.
func ObserveMove(engine string, elapsed time.Duration) {
	moveLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
}
