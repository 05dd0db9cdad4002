package run

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"engine-arena/arena/game"
	"engine-arena/arena/judge"
	"engine-arena/arena/match"
	"engine-arena/arena/openings"
	"engine-arena/arena/stats"
	"engine-arena/arena/uci"
)

// feed is a scheduler that plays a fixed outcome pattern from the new
// engine's point of view ('w', 'l', 'd', 'x' for discarded).
type feed struct {
	pattern string
	limit   int

	mu      sync.Mutex
	stopped bool
	sent    int
}

func (f *feed) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *feed) Run(ctx context.Context, out chan<- game.Record) error {
	defer close(out)
	for n := 0; f.limit == 0 || n < f.limit; n++ {
		f.mu.Lock()
		stopped := f.stopped
		f.mu.Unlock()
		if stopped || ctx.Err() != nil {
			return ctx.Err()
		}
		rec := game.Record{ID: n, Round: n / 2, NewColor: game.White, Phase: game.Decided}
		switch f.pattern[n%len(f.pattern)] {
		case 'w':
			rec.Outcome = game.WhiteWin
		case 'l':
			rec.Outcome = game.BlackWin
		case 'd':
			rec.Outcome = game.Draw
		default:
			rec.Outcome, rec.Discarded, rec.Phase = game.Aborted, true, game.Abandoned
		}
		f.sent++
		out <- rec
	}
	return nil
}

func newController(t *testing.T, f *feed, maxGames int, sinks ...GameSink) *Controller {
	t.Helper()
	sp, err := stats.NewSPRT(stats.Params{Elo0: 0, Elo1: 10, Alpha: 0.05, Beta: 0.05})
	require.NoError(t, err)
	return New(match.NewState(sp), f, maxGames, sinks...)
}

type memSink struct {
	name  string
	fail  error
	games []int
	began string
	ended *Report
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Record(_ context.Context, rec game.Record, _ match.Snapshot) error {
	if m.fail != nil {
		return m.fail
	}
	m.games = append(m.games, rec.ID)
	return nil
}

func (m *memSink) Begin(_ context.Context, id string, _ stats.Params) error {
	m.began = id
	return nil
}

func (m *memSink) End(_ context.Context, rep *Report) error {
	m.ended = rep
	return nil
}

func TestPass(t *testing.T) {
	f := &feed{pattern: "wwdwl"}
	sink := &memSink{name: "mem"}
	c := newController(t, f, 0, sink)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Pass, rep.Verdict)
	require.Equal(t, StoppedByBound, rep.StoppedBy)
	require.GreaterOrEqual(t, rep.Snapshot.LLR, rep.Snapshot.Upper)
	require.Len(t, rep.Trace, rep.Snapshot.Games)
	require.Equal(t, f.sent, len(sink.games))
	require.Equal(t, c.ID(), sink.began)
	require.Same(t, rep, sink.ended)
	require.Equal(t, c.ID(), rep.RunID)
}

func TestFail(t *testing.T) {
	rep, err := newController(t, &feed{pattern: "lldlw"}, 0).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Fail, rep.Verdict)
	require.LessOrEqual(t, rep.Snapshot.LLR, rep.Snapshot.Lower)
}

func TestInconclusiveAtCap(t *testing.T) {
	f := &feed{pattern: "wldx"}
	rep, err := newController(t, f, 30).Run(context.Background())
	require.ErrorIs(t, err, ErrRunIncomplete)
	require.Equal(t, Inconclusive, rep.Verdict)
	require.Equal(t, StoppedByCap, rep.StoppedBy)
	require.Equal(t, 30, rep.Snapshot.Games)
	require.Equal(t, 9, rep.Snapshot.Discarded)
	require.Equal(t, stats.Continue, rep.Snapshot.Decision)
}

func TestCapHoldsWithGamesInFlight(t *testing.T) {
	book, err := openings.Parse(strings.NewReader(judge.StartFEN+"\n"), "book")
	require.NoError(t, err)
	src, err := openings.NewSource(book, openings.Options{Policy: openings.Sequential, Repeat: 2})
	require.NoError(t, err)

	// the new engine wins every game, enough of them would pass the test
	var played atomic.Int32
	play := func(ctx context.Context, a game.Assignment) game.Record {
		played.Add(1)
		time.Sleep(5 * time.Millisecond)
		out := game.WhiteWin
		if a.NewColor == game.Black {
			out = game.BlackWin
		}
		return game.Record{
			ID:          a.ID,
			Round:       a.Round,
			Opening:     a.Opening,
			White:       a.White.Name,
			Black:       a.Black.Name,
			NewColor:    a.NewColor,
			Outcome:     out,
			Termination: game.Checkmate,
			Phase:       game.Decided,
		}
	}
	pair := match.Pair{New: uci.Engine{Name: "new"}, Base: uci.Engine{Name: "base"}}
	sched, err := match.NewScheduler(pair, src, play, match.Options{Concurrency: 8})
	require.NoError(t, err)

	sp, err := stats.NewSPRT(stats.Params{Elo0: 0, Elo1: 10, Alpha: 0.05, Beta: 0.05})
	require.NoError(t, err)
	sink := &memSink{name: "mem"}
	rep, err := New(match.NewState(sp), sched, 10, sink).Run(context.Background())

	require.ErrorIs(t, err, ErrRunIncomplete)
	require.Greater(t, int(played.Load()), 10)
	require.Equal(t, StoppedByCap, rep.StoppedBy)
	require.Equal(t, Inconclusive, rep.Verdict)
	require.Equal(t, 10, rep.Snapshot.Games)
	require.Equal(t, 10, rep.Snapshot.Wins)
	require.Equal(t, stats.Continue, rep.Snapshot.Decision)
	require.Len(t, rep.Trace, 10)
	require.Len(t, sink.games, 10)
}

func TestScheduleExhausted(t *testing.T) {
	rep, err := newController(t, &feed{pattern: "wl", limit: 8}, 0).Run(context.Background())
	require.ErrorIs(t, err, ErrRunIncomplete)
	require.Equal(t, StoppedBySchedule, rep.StoppedBy)
	require.Equal(t, 8, rep.Snapshot.Games)
}

func TestInterrupted(t *testing.T) {
	f := &feed{pattern: "wl", limit: 1000}
	c := newController(t, f, 0)
	c.Stop()
	rep, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrRunIncomplete)
	require.Equal(t, StoppedByInterrupt, rep.StoppedBy)
	require.Zero(t, rep.Snapshot.Games)
}

func TestFailingSinkIsDisabled(t *testing.T) {
	bad := &memSink{name: "bad", fail: errors.New("db down")}
	good := &memSink{name: "good"}
	rep, err := newController(t, &feed{pattern: "wwdwl"}, 0, bad, good).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Pass, rep.Verdict)
	require.Len(t, good.games, rep.Snapshot.Games)
	require.Nil(t, bad.ended)
	require.NotNil(t, good.ended)
}
