package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"engine-arena/arena/game"
	"engine-arena/arena/stats"
)

var (
	ErrDuplicate   = errors.New("game already committed")
	ErrNotTerminal = errors.New("game is not finished")
)

// TracePoint is the LLR after a counted game.
type TracePoint struct {
	Games int       `json:"games"`
	LLR   float64   `json:"llr"`
	At    time.Time `json:"at"`
}

// Snapshot is a consistent copy of the tally.
type Snapshot struct {
	Wins      int            `json:"wins"`
	Losses    int            `json:"losses"`
	Draws     int            `json:"draws"`
	Discarded int            `json:"discarded"`
	Games     int            `json:"games"`
	Rounds    int            `json:"rounds"`
	LLR       float64        `json:"llr"`
	Lower     float64        `json:"lower"`
	Upper     float64        `json:"upper"`
	Decision  stats.Decision `json:"decision"`
	Elo       stats.Estimate `json:"elo"`
	Glicko    stats.Pair     `json:"glicko"`

	Terminations map[game.Termination]int `json:"terminations"`
}

// State is the run-wide tally. Commit is the only mutator.
type State struct {
	mu sync.Mutex

	sprt      *stats.SPRT
	wins      int
	losses    int
	draws     int
	discarded int
	log       []game.Record
	seen      map[int]struct{}
	rounds    map[int]struct{}
	trace     []TracePoint
	glicko    stats.Pair
	ends      map[game.Termination]int
}

func NewState(sprt *stats.SPRT) *State {
	return &State{
		sprt:   sprt,
		seen:   make(map[int]struct{}),
		rounds: make(map[int]struct{}),
		glicko: stats.NewPair(),
		ends:   make(map[game.Termination]int),
	}
}

// Commit applies one finished game: counts, log, LLR and trace in one step.
func (st *State) Commit(rec game.Record) (Snapshot, error) {
	if rec.Phase != game.Decided && rec.Phase != game.Abandoned {
		return Snapshot{}, fmt.Errorf("game %d: %w", rec.ID, ErrNotTerminal)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, dup := st.seen[rec.ID]; dup {
		return st.snapshotLocked(), fmt.Errorf("game %d: %w", rec.ID, ErrDuplicate)
	}
	st.seen[rec.ID] = struct{}{}
	st.log = append(st.log, rec)
	st.ends[rec.Termination]++

	if !rec.Counted() {
		st.discarded++
		return st.snapshotLocked(), nil
	}
	switch rec.Score() {
	case 1:
		st.wins++
	case 0:
		st.losses++
	default:
		st.draws++
	}
	st.rounds[rec.Round] = struct{}{}
	st.glicko.Record(rec.Score())
	st.sprt.Update(st.wins, st.losses, st.draws)
	st.trace = append(st.trace, TracePoint{Games: st.sprt.Games(), LLR: st.sprt.LLR(), At: time.Now()})
	return st.snapshotLocked(), nil
}

func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

func (st *State) snapshotLocked() Snapshot {
	lo, hi := st.sprt.Bounds()
	ends := make(map[game.Termination]int, len(st.ends))
	for k, v := range st.ends {
		ends[k] = v
	}
	return Snapshot{
		Wins:         st.wins,
		Losses:       st.losses,
		Draws:        st.draws,
		Discarded:    st.discarded,
		Games:        st.wins + st.losses + st.draws,
		Rounds:       len(st.rounds),
		LLR:          st.sprt.LLR(),
		Lower:        lo,
		Upper:        hi,
		Decision:     st.sprt.Decision(),
		Elo:          stats.EstimateElo(st.wins, st.losses, st.draws),
		Glicko:       st.glicko,
		Terminations: ends,
	}
}

// Params returns the hypotheses under test.
func (st *State) Params() stats.Params { return st.sprt.Params() }

// Games returns the completion-order log, counted and discarded alike.
func (st *State) Games() []game.Record {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]game.Record(nil), st.log...)
}

func (st *State) Trace() []TracePoint {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]TracePoint(nil), st.trace...)
}
