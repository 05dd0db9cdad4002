package game

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"engine-arena/arena/internal/fakeengine"
	"engine-arena/arena/judge"
	"engine-arena/arena/openings"
	"engine-arena/arena/uci"
)

func TestMain(m *testing.M) {
	if fakeengine.Requested() {
		fakeengine.Main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// scripted replays a fixed list of replies.
type scripted struct {
	name     string
	replies  []string
	errs     map[int]error // reply index -> error returned instead
	exited   bool
	shutdown int
	n        int
}

func (s *scripted) Name() string { return s.name }
func (s *scripted) NewGame(context.Context, time.Duration) error { return nil }
func (s *scripted) Position(string, []string) error { return nil }
func (s *scripted) Exited() bool { return s.exited }
func (s *scripted) Shutdown() { s.shutdown++ }

func (s *scripted) Go(ctx context.Context, _ uci.Limits, _ time.Duration) (uci.BestMove, error) {
	if err := ctx.Err(); err != nil {
		return uci.BestMove{}, err
	}
	i := s.n
	s.n++
	if err, ok := s.errs[i]; ok {
		return uci.BestMove{}, err
	}
	if i >= len(s.replies) {
		return uci.BestMove{}, &uci.TimeoutError{Engine: s.name, Op: "go", After: time.Millisecond}
	}
	return uci.BestMove{Move: s.replies[i], Elapsed: time.Millisecond}, nil
}

func starter(w, b *scripted, startErr map[string]error) StartFunc {
	return func(_ context.Context, e uci.Engine, _ time.Duration) (Session, error) {
		if err := startErr[e.Name]; err != nil {
			return nil, err
		}
		if e.Name == w.name {
			return w, nil
		}
		return b, nil
	}
}

func assignment() Assignment {
	return Assignment{
		ID:       7,
		Round:    3,
		Opening:  openings.Opening{Index: 0, FEN: judge.StartFEN},
		White:    uci.Engine{Name: "new"},
		Black:    uci.Engine{Name: "base"},
		NewColor: White,
	}
}

var fastTC = Config{TimeControl: TimeControl{MoveTime: 10 * time.Millisecond}}

func TestCheckmate(t *testing.T) {
	w := &scripted{name: "new", replies: []string{"f2f3", "g2g4"}}
	b := &scripted{name: "base", replies: []string{"e7e5", "d8h4"}}
	var observed int
	r := NewRunner(fastTC, starter(w, b, nil))
	r.OnMove = func(string, time.Duration) { observed++ }

	rec := r.Play(context.Background(), assignment())

	require.Equal(t, BlackWin, rec.Outcome)
	require.Equal(t, Checkmate, rec.Termination)
	require.Equal(t, Decided, rec.Phase)
	require.Equal(t, 4, rec.Plies)
	require.Equal(t, []string{"f2f3", "e7e5", "g2g4", "d8h4"}, rec.UCIMoves())
	require.Equal(t, 4, observed)
	require.True(t, rec.Counted())
	require.Equal(t, 0.0, rec.Score())
	require.Equal(t, 7, rec.ID)
	require.Equal(t, 1, w.shutdown)
	require.Equal(t, 1, b.shutdown)
}

func TestTimeoutForfeit(t *testing.T) {
	w := &scripted{name: "new", replies: []string{"e2e4"}}
	b := &scripted{name: "base"}
	rec := NewRunner(fastTC, starter(w, b, nil)).Play(context.Background(), assignment())

	require.Equal(t, WhiteWin, rec.Outcome)
	require.Equal(t, Timeout, rec.Termination)
	require.Equal(t, Black, rec.Forfeit)
	require.Equal(t, Abandoned, rec.Phase)
	require.True(t, rec.Counted())
	require.Equal(t, 1.0, rec.Score())
	require.Equal(t, 1, b.shutdown)
}

func TestFaultClassification(t *testing.T) {
	cases := map[string]struct {
		err  error
		want Termination
	}{
		"crash":    {&uci.CrashError{Engine: "new", Op: "go"}, Crash},
		"protocol": {&uci.ProtocolError{Engine: "new", Msg: "malformed move"}, ProtocolFault},
		"timeout":  {&uci.TimeoutError{Engine: "new", Op: "go"}, Timeout},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := &scripted{name: "new", errs: map[int]error{0: tc.err}}
			b := &scripted{name: "base"}
			rec := NewRunner(fastTC, starter(w, b, nil)).Play(context.Background(), assignment())
			require.Equal(t, tc.want, rec.Termination)
			require.Equal(t, White, rec.Forfeit)
			require.Equal(t, BlackWin, rec.Outcome)
		})
	}
}

func TestIllegalMoveForfeit(t *testing.T) {
	w := &scripted{name: "new", replies: []string{"e2e5"}}
	b := &scripted{name: "base"}
	rec := NewRunner(fastTC, starter(w, b, nil)).Play(context.Background(), assignment())
	require.Equal(t, IllegalMove, rec.Termination)
	require.Equal(t, White, rec.Forfeit)
	require.Zero(t, rec.Plies)
}

func TestNoMoveInLivePosition(t *testing.T) {
	w := &scripted{name: "new", replies: []string{""}}
	b := &scripted{name: "base"}
	rec := NewRunner(fastTC, starter(w, b, nil)).Play(context.Background(), assignment())
	require.Equal(t, ProtocolFault, rec.Termination)
	require.Equal(t, White, rec.Forfeit)
}

func TestBothFaultedIsDiscarded(t *testing.T) {
	w := &scripted{name: "new", errs: map[int]error{0: &uci.CrashError{Engine: "new", Op: "go"}}}
	b := &scripted{name: "base", exited: true}
	rec := NewRunner(fastTC, starter(w, b, nil)).Play(context.Background(), assignment())
	require.True(t, rec.Discarded)
	require.False(t, rec.Counted())
	require.Equal(t, Aborted, rec.Outcome)
	require.Equal(t, BothFaulted, rec.Termination)
}

func TestStartFailures(t *testing.T) {
	boom := errors.New("exec: no such file")

	w, b := &scripted{name: "new"}, &scripted{name: "base"}
	rec := NewRunner(fastTC, starter(w, b, map[string]error{"base": boom})).Play(context.Background(), assignment())
	require.Equal(t, StartFailure, rec.Termination)
	require.Equal(t, Black, rec.Forfeit)
	require.Equal(t, WhiteWin, rec.Outcome)
	require.Equal(t, 1, w.shutdown)

	w, b = &scripted{name: "new"}, &scripted{name: "base"}
	rec = NewRunner(fastTC, starter(w, b, map[string]error{"base": boom, "new": boom})).Play(context.Background(), assignment())
	require.True(t, rec.Discarded)
	require.Equal(t, BothFaulted, rec.Termination)
}

func TestMoveLimit(t *testing.T) {
	shuffleW := []string{"g1f3", "f3g1", "b1c3", "c3b1"}
	shuffleB := []string{"g8f6", "f6g8", "b8c6", "c6b8"}

	cfg := fastTC
	cfg.MaxPlies = 6
	w, b := &scripted{name: "new", replies: shuffleW}, &scripted{name: "base", replies: shuffleB}
	rec := NewRunner(cfg, starter(w, b, nil)).Play(context.Background(), assignment())
	require.Equal(t, Draw, rec.Outcome)
	require.Equal(t, MoveLimit, rec.Termination)
	require.Equal(t, 6, rec.Plies)
	require.Equal(t, 0.5, rec.Score())

	cfg.MoveLimit = Discard
	w, b = &scripted{name: "new", replies: shuffleW}, &scripted{name: "base", replies: shuffleB}
	rec = NewRunner(cfg, starter(w, b, nil)).Play(context.Background(), assignment())
	require.True(t, rec.Discarded)
	require.Equal(t, MoveLimit, rec.Termination)
}

func TestRepetitionDraw(t *testing.T) {
	w := &scripted{name: "new", replies: []string{"g1f3", "f3g1", "g1f3", "f3g1"}}
	b := &scripted{name: "base", replies: []string{"g8f6", "f6g8", "g8f6", "f6g8"}}
	rec := NewRunner(fastTC, starter(w, b, nil)).Play(context.Background(), assignment())
	require.Equal(t, Draw, rec.Outcome)
	require.Equal(t, Repetition, rec.Termination)
	require.Equal(t, 8, rec.Plies)
}

func TestCancelledGameIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, b := &scripted{name: "new"}, &scripted{name: "base"}
	rec := NewRunner(fastTC, starter(w, b, nil)).Play(ctx, assignment())
	require.True(t, rec.Discarded)
	require.Equal(t, Cancelled, rec.Termination)
	require.Equal(t, 1, w.shutdown)
	require.Equal(t, 1, b.shutdown)
}

func TestGameTimeoutForfeitsSideToMove(t *testing.T) {
	cfg := fastTC
	cfg.GameTimeout = time.Nanosecond
	w, b := &scripted{name: "new", replies: []string{"e2e4"}}, &scripted{name: "base"}
	rec := NewRunner(cfg, starter(w, b, nil)).Play(context.Background(), assignment())
	require.Equal(t, Timeout, rec.Termination)
	require.Equal(t, White, rec.Forfeit)
}

func TestSubprocessEngines(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns engine processes")
	}
	cfg := Config{
		TimeControl:    TimeControl{MoveTime: 20 * time.Millisecond, Margin: 200 * time.Millisecond},
		MaxPlies:       10,
		StartupTimeout: 5 * time.Second,
	}
	r := NewRunner(cfg, nil)

	t.Run("move limit", func(t *testing.T) {
		a := assignment()
		a.White = fakeengine.Engine("new", fakeengine.Normal)
		a.Black = fakeengine.Engine("base", fakeengine.Normal)
		rec := r.Play(context.Background(), a)
		require.Equal(t, MoveLimit, rec.Termination, rec.Detail)
		require.Equal(t, 10, rec.Plies)
		require.Equal(t, "a2a3", rec.Moves[0].UCI)
	})

	t.Run("silent engine forfeits on time", func(t *testing.T) {
		a := assignment()
		a.White = fakeengine.Engine("new", fakeengine.Normal)
		a.Black = fakeengine.Engine("base", fakeengine.Silent)
		began := time.Now()
		rec := r.Play(context.Background(), a)
		require.Equal(t, Timeout, rec.Termination, rec.Detail)
		require.Equal(t, Black, rec.Forfeit)
		require.Less(t, time.Since(began), 5*time.Second)
	})

	t.Run("illegal move", func(t *testing.T) {
		a := assignment()
		a.White = fakeengine.Engine("new", fakeengine.Illegal)
		a.Black = fakeengine.Engine("base", fakeengine.Normal)
		rec := r.Play(context.Background(), a)
		require.Equal(t, IllegalMove, rec.Termination, rec.Detail)
		require.Equal(t, White, rec.Forfeit)
	})
}

func TestParseTimeControl(t *testing.T) {
	tc, err := ParseTimeControl("10+0.1")
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, tc.Base)
	require.Equal(t, 100*time.Millisecond, tc.Increment)
	require.Equal(t, "10+0.1", tc.String())

	tc, err = ParseTimeControl("0+0.05")
	require.NoError(t, err)
	require.Zero(t, tc.Base)
	lim, wait := newClock(tc).limits(White)
	require.Equal(t, 50*time.Millisecond, lim.MoveTime)
	require.Equal(t, 50*time.Millisecond, wait)

	tc, err = ParseTimeControl("movetime=100ms")
	require.NoError(t, err)
	require.Equal(t, 100*time.Millisecond, tc.MoveTime)

	for _, bad := range []string{"", "x+1", "0+0", "-1+0", "movetime=abc"} {
		_, err := ParseTimeControl(bad)
		require.Error(t, err, bad)
	}
}

func TestClockSpend(t *testing.T) {
	c := newClock(TimeControl{Base: time.Second, Increment: 100 * time.Millisecond, Margin: 50 * time.Millisecond})
	lim, wait := c.limits(Black)
	require.Equal(t, time.Second, lim.BTime)
	require.Equal(t, 1050*time.Millisecond, wait)

	c.spend(White, 300*time.Millisecond)
	require.Equal(t, 800*time.Millisecond, c.remain[White])

	c.spend(Black, 2*time.Second)
	require.Equal(t, 100*time.Millisecond, c.remain[Black])
}
