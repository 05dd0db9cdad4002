package openings

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
)

// Policy decides the order openings are handed out in.
type Policy string

const (
	Sequential Policy = "sequential"
	Random     Policy = "random"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Sequential:
		return Sequential, nil
	case Random:
		return Random, nil
	}
	return "", fmt.Errorf("unknown opening policy %q (want sequential|random)", s)
}

// Options configure a Source.
type Options struct {
	Policy Policy
	Repeat int    // games played per opening; 2 replays each opening with colors swapped
	Start  int    // index of the first opening used
	Seed   uint64 // Random policy only
}

// Source maps game numbers to openings. Safe for concurrent use once built.
type Source struct {
	book  *Book
	opts  Options
	order []int
}

func NewSource(b *Book, o Options) (*Source, error) {
	if b == nil || b.Len() == 0 {
		return nil, fmt.Errorf("empty opening book")
	}
	if o.Repeat < 1 {
		return nil, fmt.Errorf("repeat must be at least 1, got %d", o.Repeat)
	}
	if o.Start < 0 || o.Start >= b.Len() {
		return nil, fmt.Errorf("start %d outside book of %d positions", o.Start, b.Len())
	}
	p, err := ParsePolicy(string(o.Policy))
	if err != nil {
		return nil, err
	}
	o.Policy = p

	s := &Source{book: b, opts: o}
	if p == Random {
		s.order = rand.New(rand.NewSource(o.Seed)).Perm(b.Len())
	}
	return s, nil
}

func (s *Source) Book() *Book      { return s.book }
func (s *Source) Options() Options { return s.opts }

// Draw returns the opening for the given round. Rounds past the end of the
// book wrap around.
func (s *Source) Draw(round int) Opening {
	i := (s.opts.Start + round) % s.book.Len()
	if s.order != nil {
		i = s.order[i]
	}
	return s.book.Openings[i]
}

// Slot places game number n (0-based): its round, the round's opening and
// whether it is the color-swapped replay of an earlier game in the round.
func (s *Source) Slot(n int) (round int, op Opening, replay bool) {
	round = n / s.opts.Repeat
	return round, s.Draw(round), n%s.opts.Repeat != 0
}
