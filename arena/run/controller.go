// Package run drives a match until the SPRT decides or the game cap is hit.
package run

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/stats"
)

// ErrRunIncomplete is reported when a run ends without an SPRT decision.
var ErrRunIncomplete = errors.New("run ended without an sprt decision")

// Verdict is the single externally meaningful result of a run.
type Verdict string

const (
	Pass         Verdict = "pass"
	Fail         Verdict = "fail"
	Inconclusive Verdict = "inconclusive"
)

// StopReason records what ended the run.
type StopReason string

const (
	StoppedByBound     StopReason = "sprt_bound"
	StoppedByCap       StopReason = "game_cap"
	StoppedByInterrupt StopReason = "interrupted"
	StoppedBySchedule  StopReason = "schedule_exhausted"
)

// GameSink receives every committed game with the tally after it.
type GameSink interface {
	Name() string
	Record(ctx context.Context, rec game.Record, snap match.Snapshot) error
}

// Lifecycle is implemented by sinks that also track the run as a whole.
type Lifecycle interface {
	Begin(ctx context.Context, runID string, p stats.Params) error
	End(ctx context.Context, rep *Report) error
}

// Scheduler is the part of match.Scheduler the controller drives.
type Scheduler interface {
	Run(ctx context.Context, out chan<- game.Record) error
	Stop()
}

type Controller struct {
	id       string
	state    *match.State
	sched    Scheduler
	maxGames int
	sinks    []GameSink

	interrupted atomic.Bool
	started     time.Time
}

// New wires a controller. maxGames caps counted games; 0 means no cap.
func New(state *match.State, sched Scheduler, maxGames int, sinks ...GameSink) *Controller {
	return &Controller{
		id:       uuid.NewString(),
		state:    state,
		sched:    sched,
		maxGames: maxGames,
		sinks:    sinks,
	}
}

func (c *Controller) ID() string { return c.id }

// Stop ends the run gracefully: no new games, in-flight games finish and
// are counted.
func (c *Controller) Stop() {
	c.interrupted.Store(true)
	c.sched.Stop()
}

// Run plays until a decision, the cap, or cancellation. Cancelling ctx is a
// hard stop: games in flight are discarded. The returned report is always
// usable; err is ErrRunIncomplete for inconclusive runs.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	c.started = time.Now()
	results := make(chan game.Record)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = c.sched.Run(ctx, results)
	}()

	lg := log.With().Str("run", c.id).Logger()
	reason := StopReason("")
	// sinks outlive a hard stop so the last games still reach the archive
	sinkCtx := context.WithoutCancel(ctx)
	live := c.begin(sinkCtx)

	for rec := range results {
		if reason == StoppedByCap {
			// the tally is frozen at the cap
			lg.Info().Int("game", rec.ID).Str("outcome", string(rec.Outcome)).Msg("game finished past the cap, not counted")
			continue
		}
		snap, err := c.state.Commit(rec)
		if err != nil {
			lg.Error().Err(err).Int("game", rec.ID).Msg("commit rejected")
			continue
		}
		lg.Info().
			Int("game", rec.ID).
			Str("outcome", string(rec.Outcome)).
			Str("termination", string(rec.Termination)).
			Str("wld", wld(snap)).
			Float64("llr", snap.LLR).
			Msg("game committed")

		live = c.publish(sinkCtx, live, rec, snap)

		if reason != "" {
			continue
		}
		switch {
		case snap.Decision != stats.Continue:
			reason = StoppedByBound
			lg.Info().Str("decision", snap.Decision.String()).Float64("llr", snap.LLR).Msg("sprt bound crossed, draining")
			c.sched.Stop()
		case c.maxGames > 0 && snap.Games >= c.maxGames:
			reason = StoppedByCap
			lg.Info().Int("games", snap.Games).Msg("game cap reached, draining")
			c.sched.Stop()
		}
	}
	<-schedDone

	if reason == "" {
		switch {
		case ctx.Err() != nil || c.interrupted.Load():
			reason = StoppedByInterrupt
		default:
			reason = StoppedBySchedule
		}
	}
	rep := c.report(reason)
	for _, s := range live {
		if lc, ok := s.(Lifecycle); ok {
			if err := lc.End(sinkCtx, rep); err != nil {
				lg.Warn().Err(err).Str("sink", s.Name()).Msg("closing sink")
			}
		}
	}
	lg.Info().Str("verdict", string(rep.Verdict)).Str("stopped_by", string(reason)).Msg("run finished")
	return rep, rep.Err()
}

func (c *Controller) begin(ctx context.Context) []GameSink {
	live := make([]GameSink, 0, len(c.sinks))
	for _, s := range c.sinks {
		if lc, ok := s.(Lifecycle); ok {
			if err := lc.Begin(ctx, c.id, c.state.Params()); err != nil {
				log.Warn().Err(err).Str("sink", s.Name()).Msg("sink unavailable, disabling it for this run")
				continue
			}
		}
		live = append(live, s)
	}
	return live
}

// publish hands the game to every sink; a failing sink is dropped for the rest
// of the run.
func (c *Controller) publish(ctx context.Context, sinks []GameSink, rec game.Record, snap match.Snapshot) []GameSink {
	keep := sinks[:0]
	for _, s := range sinks {
		if err := s.Record(ctx, rec, snap); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("sink failed, disabling it for this run")
			continue
		}
		keep = append(keep, s)
	}
	return keep
}

func (c *Controller) report(reason StopReason) *Report {
	snap := c.state.Snapshot()
	v := Inconclusive
	switch snap.Decision {
	case stats.AcceptH1:
		v = Pass
	case stats.AcceptH0:
		v = Fail
	}
	lo, hi := stats.WilsonCI95(snap.Wins, snap.Draws, snap.Games)
	return &Report{
		RunID:     c.id,
		Verdict:   v,
		StoppedBy: reason,
		Params:    c.state.Params(),
		Snapshot:  snap,
		ScoreLow:  lo,
		ScoreHigh: hi,
		Trace:     c.state.Trace(),
		Duration:  time.Since(c.started),
	}
}
