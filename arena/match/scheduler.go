// Package match schedules games between the new and the base engine and
// keeps the shared tally they feed.
package match

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"engine-arena/arena/game"
	"engine-arena/arena/openings"
	"engine-arena/arena/uci"
)

// Pair is the two builds under test.
type Pair struct {
	New  uci.Engine `yaml:"new" validate:"required"`
	Base uci.Engine `yaml:"base" validate:"required"`
}

// PlayFunc plays one assignment to a terminal record.
type PlayFunc func(ctx context.Context, a game.Assignment) game.Record

type Options struct {
	Concurrency int
	GamesLimit  int // 0 means no limit
}

// Scheduler runs games on a fixed pool of workers until stopped, cancelled
// or out of games.
type Scheduler struct {
	pair Pair
	src  *openings.Source
	play PlayFunc
	opts Options

	next     atomic.Int64
	started  atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewScheduler(pair Pair, src *openings.Source, play PlayFunc, opts Options) (*Scheduler, error) {
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	if opts.GamesLimit < 0 {
		return nil, fmt.Errorf("games limit must not be negative")
	}
	if src == nil || play == nil {
		return nil, fmt.Errorf("scheduler needs an opening source and a play function")
	}
	return &Scheduler{
		pair: pair,
		src:  src,
		play: play,
		opts: opts,
		stop: make(chan struct{}),
	}, nil
}

// Assign builds game n. The new engine takes white on even game numbers, so
// with repeat=2 each opening is played once from each side in succession.
func (s *Scheduler) Assign(n int) game.Assignment {
	round, op, _ := s.src.Slot(n)
	a := game.Assignment{ID: n, Round: round, Opening: op}
	if n%2 == 0 {
		a.White, a.Black, a.NewColor = s.pair.New, s.pair.Base, game.White
	} else {
		a.White, a.Black, a.NewColor = s.pair.Base, s.pair.New, game.Black
	}
	return a
}

// Stop prevents new games from starting. Games in flight finish normally.
// Safe to call any number of times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		log.Debug().Int64("started", s.started.Load()).Msg("scheduler stopping")
	})
}

func (s *Scheduler) Stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Started is the number of games handed to workers so far.
func (s *Scheduler) Started() int { return int(s.started.Load()) }

// Run plays games and sends every record to out in completion order. It
// returns once all workers are idle and closes out. Cancelling ctx aborts
// games in flight; their discarded records are still delivered and Run
// reports ctx.Err(). A stop or an exhausted schedule returns nil.
func (s *Scheduler) Run(ctx context.Context, out chan<- game.Record) error {
	defer close(out)
	var g errgroup.Group
	for w := 0; w < s.opts.Concurrency; w++ {
		g.Go(func() error { return s.work(ctx, w, out) })
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, worker int, out chan<- game.Record) error {
	lg := log.With().Int("worker", worker).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Stopped() {
			return nil
		}
		n := int(s.next.Add(1) - 1)
		if s.opts.GamesLimit > 0 && n >= s.opts.GamesLimit {
			return nil
		}
		s.started.Add(1)
		a := s.Assign(n)
		lg.Debug().Int("game", n).Int("opening", a.Opening.Index).Str("white", a.White.Name).Msg("start")
		out <- s.play(ctx, a)
	}
}
