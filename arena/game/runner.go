package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"engine-arena/arena/judge"
	"engine-arena/arena/openings"
	"engine-arena/arena/uci"
)

// Session is the part of a uci.Session the runner drives.
type Session interface {
	Name() string
	NewGame(ctx context.Context, timeout time.Duration) error
	Position(fen string, moves []string) error
	Go(ctx context.Context, lim uci.Limits, limit time.Duration) (uci.BestMove, error)
	Exited() bool
	Shutdown()
}

// StartFunc launches and handshakes one engine.
type StartFunc func(ctx context.Context, e uci.Engine, timeout time.Duration) (Session, error)

// StartUCI starts a real engine subprocess.
func StartUCI(ctx context.Context, e uci.Engine, timeout time.Duration) (Session, error) {
	s, err := uci.Start(ctx, e, timeout)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MoveLimitPolicy decides what a game stopped by MaxPlies is worth.
type MoveLimitPolicy string

const (
	ScoreDraw MoveLimitPolicy = "draw"
	Discard   MoveLimitPolicy = "discard"
)

type Config struct {
	TimeControl    TimeControl     `yaml:"time_control"`
	MaxPlies       int             `yaml:"max_plies"`
	MoveLimit      MoveLimitPolicy `yaml:"move_limit"`
	GameTimeout    time.Duration   `yaml:"game_timeout"`
	StartupTimeout time.Duration   `yaml:"startup_timeout"`
}

// Assignment is a scheduled game: who plays which side from where.
type Assignment struct {
	ID       int
	Round    int
	Opening  openings.Opening
	White    uci.Engine
	Black    uci.Engine
	NewColor Color
}

type Runner struct {
	cfg   Config
	start StartFunc

	// OnMove, when set, is called after every accepted move.
	OnMove func(engine string, elapsed time.Duration)
}

func NewRunner(cfg Config, start StartFunc) *Runner {
	if start == nil {
		start = StartUCI
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	if cfg.MoveLimit == "" {
		cfg.MoveLimit = ScoreDraw
	}
	return &Runner{cfg: cfg, start: start}
}

// play holds the state of one game in progress.
type play struct {
	ctx  context.Context
	rec  *Record
	sess [3]Session
	log  zerolog.Logger
}

// Play runs one game to a terminal record. Engine faults end the game as a
// forfeit; they are never returned as errors. Both sessions are shut down
// before Play returns.
func (r *Runner) Play(ctx context.Context, a Assignment) (rec Record) {
	rec = Record{
		ID:        a.ID,
		Round:     a.Round,
		Opening:   a.Opening,
		White:     a.White.Name,
		Black:     a.Black.Name,
		NewColor:  a.NewColor,
		Phase:     NotStarted,
		StartedAt: time.Now(),
	}
	p := &play{
		ctx: ctx,
		rec: &rec,
		log: log.With().Int("game", a.ID).Int("round", a.Round).Logger(),
	}
	defer func() {
		for _, s := range p.sess {
			if s != nil {
				s.Shutdown()
			}
		}
		rec.Plies = len(rec.Moves)
		rec.Duration = time.Since(rec.StartedAt)
		p.log.Debug().
			Str("white", rec.White).Str("black", rec.Black).
			Str("outcome", string(rec.Outcome)).Str("termination", string(rec.Termination)).
			Int("plies", rec.Plies).Msg("game over")
	}()

	if !r.startBoth(p, a) {
		return rec
	}
	for _, side := range []Color{White, Black} {
		if err := p.sess[side].NewGame(ctx, r.cfg.StartupTimeout); err != nil {
			p.fault(side, err)
			return rec
		}
	}

	board, err := judge.New(a.Opening.FEN)
	if err != nil {
		p.discard(BothFaulted, fmt.Sprintf("opening %d: %v", a.Opening.Index, err))
		return rec
	}
	r.loop(p, board)
	return rec
}

func (r *Runner) startBoth(p *play, a Assignment) bool {
	var errs [3]error
	var g errgroup.Group
	for _, side := range []Color{White, Black} {
		eng := a.White
		if side == Black {
			eng = a.Black
		}
		g.Go(func() error {
			p.sess[side], errs[side] = r.start(p.ctx, eng, r.cfg.StartupTimeout)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case p.ctx.Err() != nil:
		p.discard(Cancelled, p.ctx.Err().Error())
	case errs[White] != nil && errs[Black] != nil:
		p.discard(BothFaulted, errors.Join(errs[White], errs[Black]).Error())
	case errs[White] != nil:
		p.forfeit(White, StartFailure, errs[White])
	case errs[Black] != nil:
		p.forfeit(Black, StartFailure, errs[Black])
	default:
		return true
	}
	return false
}

func (r *Runner) loop(p *play, board *judge.Board) {
	rec := p.rec
	clk := newClock(r.cfg.TimeControl)
	var deadline time.Time
	if r.cfg.GameTimeout > 0 {
		deadline = rec.StartedAt.Add(r.cfg.GameTimeout)
	}
	rec.Phase = InProgress

	for {
		if v := board.Verdict(); v.Over {
			p.decide(v)
			return
		}
		if r.cfg.MaxPlies > 0 && board.Plies() >= r.cfg.MaxPlies {
			if r.cfg.MoveLimit == Discard {
				p.discard(MoveLimit, "")
			} else {
				rec.Outcome, rec.Termination, rec.Phase = Draw, MoveLimit, Decided
			}
			return
		}

		side := colorOf(board.Turn())
		s := p.sess[side]
		lim, wait := clk.limits(side)
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				p.forfeit(side, Timeout, errors.New("game time limit reached"))
				return
			}
			if left < wait {
				wait = left
			}
		}

		if err := s.Position(board.StartFEN(), board.Moves()); err != nil {
			p.fault(side, err)
			return
		}
		bm, err := s.Go(p.ctx, lim, wait)
		if err != nil {
			p.fault(side, err)
			return
		}
		if bm.Move == "" {
			p.forfeit(side, ProtocolFault, errors.New("engine reported no move in a live position"))
			return
		}
		if err := board.Play(bm.Move); err != nil {
			p.forfeit(side, IllegalMove, err)
			return
		}
		clk.spend(side, bm.Elapsed)
		rec.Moves = append(rec.Moves, Move{
			UCI:    bm.Move,
			Millis: bm.Elapsed.Milliseconds(),
			Depth:  bm.Info.Depth,
			Score:  bm.Info.Score,
		})
		if r.OnMove != nil {
			r.OnMove(s.Name(), bm.Elapsed)
		}
	}
}

// fault classifies a session error for side. Cancellation discards the game;
// so does a fault while the opponent's process is gone as well.
func (p *play) fault(side Color, err error) {
	if p.ctx.Err() != nil && errors.Is(err, p.ctx.Err()) {
		p.discard(Cancelled, err.Error())
		return
	}
	if o := p.sess[side.Other()]; o != nil && o.Exited() {
		p.discard(BothFaulted, err.Error())
		return
	}
	var (
		te *uci.TimeoutError
		ce *uci.CrashError
	)
	switch {
	case errors.As(err, &te):
		p.forfeit(side, Timeout, err)
	case errors.As(err, &ce):
		p.forfeit(side, Crash, err)
	default:
		p.forfeit(side, ProtocolFault, err)
	}
}

func (p *play) forfeit(side Color, why Termination, err error) {
	p.rec.Outcome = winFor(side.Other())
	p.rec.Termination = why
	p.rec.Forfeit = side
	p.rec.Phase = Abandoned
	if err != nil {
		p.rec.Detail = err.Error()
	}
	p.log.Warn().Err(err).Str("side", side.String()).Str("termination", string(why)).Msg("forfeit")
}

func (p *play) discard(why Termination, detail string) {
	p.rec.Outcome = Aborted
	p.rec.Termination = why
	p.rec.Discarded = true
	p.rec.Phase = Abandoned
	p.rec.Detail = detail
	p.log.Warn().Str("termination", string(why)).Str("detail", detail).Msg("game discarded")
}

func (p *play) decide(v judge.Verdict) {
	p.rec.Phase = Decided
	p.rec.Termination = Termination(v.Reason)
	switch v.Winner {
	case chess.White:
		p.rec.Outcome = WhiteWin
	case chess.Black:
		p.rec.Outcome = BlackWin
	default:
		p.rec.Outcome = Draw
	}
}

func colorOf(c chess.Color) Color {
	if c == chess.Black {
		return Black
	}
	return White
}
