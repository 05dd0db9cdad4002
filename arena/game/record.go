// Package game plays one game between two engine sessions and reports it as
// a Record.
package game

import (
	"fmt"
	"time"

	"engine-arena/arena/openings"
)

// Color of a side. NoColor marks "neither" (draws, no forfeit).
type Color int

const (
	NoColor Color = iota
	White
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	}
	return "none"
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	switch string(b) {
	case "white":
		*c = White
	case "black":
		*c = Black
	case "none", "":
		*c = NoColor
	default:
		return fmt.Errorf("unknown color %q", b)
	}
	return nil
}

// Other returns the opposing side.
func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	}
	return NoColor
}

// Outcome is the scored result of a game. Aborted games are not counted.
type Outcome string

const (
	WhiteWin Outcome = "1-0"
	BlackWin Outcome = "0-1"
	Draw     Outcome = "1/2-1/2"
	Aborted  Outcome = "*"
)

func winFor(c Color) Outcome {
	if c == White {
		return WhiteWin
	}
	return BlackWin
}

// Termination says how a game ended.
type Termination string

const (
	Checkmate            Termination = "checkmate"
	Stalemate            Termination = "stalemate"
	InsufficientMaterial Termination = "insufficient_material"
	Repetition           Termination = "repetition"
	FiftyMoves           Termination = "fifty_moves"
	MoveLimit            Termination = "move_limit"
	Timeout              Termination = "timeout"
	IllegalMove          Termination = "illegal_move"
	ProtocolFault        Termination = "protocol_error"
	Crash                Termination = "crash"
	StartFailure         Termination = "start_failure"
	Cancelled            Termination = "cancelled"
	BothFaulted          Termination = "both_faulted"
)

// Phase is the runner's state for one game.
type Phase string

const (
	NotStarted Phase = "not_started"
	InProgress Phase = "in_progress"
	Decided    Phase = "decided"
	Abandoned  Phase = "aborted"
)

// Move is one accepted move with the mover's last search report.
type Move struct {
	UCI    string `json:"uci"`
	Millis int64  `json:"ms"`
	Depth  int    `json:"depth,omitempty"`
	Score  string `json:"score,omitempty"`
}

// Record is a finished game. It is owned by the runner until Play returns and
// immutable afterwards.
type Record struct {
	ID          int              `json:"id"`
	Round       int              `json:"round"`
	Opening     openings.Opening `json:"opening"`
	White       string           `json:"white"`
	Black       string           `json:"black"`
	NewColor    Color            `json:"new_color"`
	Moves       []Move           `json:"moves"`
	Plies       int              `json:"plies"`
	Outcome     Outcome          `json:"outcome"`
	Termination Termination      `json:"termination"`
	Forfeit     Color            `json:"forfeit,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	Discarded   bool             `json:"discarded,omitempty"`
	Phase       Phase            `json:"phase"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration_ns"`
}

// Counted reports whether the game enters the match statistics.
func (r Record) Counted() bool {
	return !r.Discarded && r.Outcome != Aborted
}

// Score is the result from the new engine's point of view: 1, 0.5 or 0.
// Only meaningful when Counted.
func (r Record) Score() float64 {
	switch r.Outcome {
	case Draw:
		return 0.5
	case winFor(r.NewColor):
		return 1
	}
	return 0
}

// UCIMoves returns the move list in UCI notation.
func (r Record) UCIMoves() []string {
	out := make([]string, len(r.Moves))
	for i, m := range r.Moves {
		out[i] = m.UCI
	}
	return out
}
