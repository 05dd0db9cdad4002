package game

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"engine-arena/arena/uci"
)

// TimeControl is the per-move budget. With Base > 0 each side runs a clock
// that gains Increment per move. With Base == 0 every move gets MoveTime, or
// Increment when MoveTime is unset. Margin is the grace added on top before
// a move counts as overstepped.
type TimeControl struct {
	Base      time.Duration `yaml:"base" json:"base"`
	Increment time.Duration `yaml:"increment" json:"increment"`
	MoveTime  time.Duration `yaml:"movetime" json:"movetime"`
	Margin    time.Duration `yaml:"margin" json:"margin"`
}

// ParseTimeControl reads "base+inc" in seconds ("10+0.1", "0+0.05") or
// "movetime=<duration>" ("movetime=100ms").
func ParseTimeControl(s string) (TimeControl, error) {
	s = strings.TrimSpace(s)
	if v, ok := strings.CutPrefix(s, "movetime="); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return TimeControl{}, fmt.Errorf("bad movetime %q", v)
		}
		return TimeControl{MoveTime: d}, nil
	}
	b, i, ok := strings.Cut(s, "+")
	if !ok {
		i = "0"
	}
	base, err := seconds(b)
	if err != nil {
		return TimeControl{}, fmt.Errorf("bad base time %q: %w", b, err)
	}
	inc, err := seconds(i)
	if err != nil {
		return TimeControl{}, fmt.Errorf("bad increment %q: %w", i, err)
	}
	tc := TimeControl{Base: base, Increment: inc}
	return tc, tc.Validate()
}

func seconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("negative")
	}
	return time.Duration(f * float64(time.Second)), nil
}

func (tc TimeControl) Validate() error {
	if tc.Base < 0 || tc.Increment < 0 || tc.MoveTime < 0 || tc.Margin < 0 {
		return fmt.Errorf("time control values must not be negative")
	}
	if tc.Base == 0 && tc.Increment == 0 && tc.MoveTime == 0 {
		return fmt.Errorf("time control gives no thinking time")
	}
	return nil
}

func (tc TimeControl) String() string {
	if tc.Base == 0 && tc.MoveTime > 0 {
		return "movetime=" + tc.MoveTime.String()
	}
	return strconv.FormatFloat(tc.Base.Seconds(), 'f', -1, 64) + "+" +
		strconv.FormatFloat(tc.Increment.Seconds(), 'f', -1, 64)
}

// clock tracks both sides' remaining time for one game.
type clock struct {
	tc     TimeControl
	remain [3]time.Duration // indexed by Color
}

func newClock(tc TimeControl) *clock {
	c := &clock{tc: tc}
	c.remain[White], c.remain[Black] = tc.Base, tc.Base
	return c
}

// limits returns the go parameters and how long to wait for side's reply.
func (c *clock) limits(side Color) (uci.Limits, time.Duration) {
	if c.tc.Base == 0 {
		mt := c.tc.MoveTime
		if mt == 0 {
			mt = c.tc.Increment
		}
		return uci.Limits{MoveTime: mt}, mt + c.tc.Margin
	}
	lim := uci.Limits{
		WTime: c.remain[White],
		BTime: c.remain[Black],
		WInc:  c.tc.Increment,
		BInc:  c.tc.Increment,
	}
	return lim, c.remain[side] + c.tc.Margin
}

// spend charges elapsed to side and adds the increment.
func (c *clock) spend(side Color, elapsed time.Duration) {
	if c.tc.Base == 0 {
		return
	}
	r := c.remain[side] - elapsed
	if r < 0 {
		r = 0
	}
	c.remain[side] = r + c.tc.Increment
}
