package stats

import (
	"fmt"
	"math"
	"strings"
)

// Decision is the running state of a sequential test.
type Decision int

const (
	Continue Decision = iota
	AcceptH1
	AcceptH0
)

func (d Decision) String() string {
	switch d {
	case AcceptH1:
		return "H1"
	case AcceptH0:
		return "H0"
	default:
		return "continue"
	}
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decision) UnmarshalText(b []byte) error {
	switch string(b) {
	case "H1":
		*d = AcceptH1
	case "H0":
		*d = AcceptH0
	case "continue":
		*d = Continue
	default:
		return fmt.Errorf("unknown decision %q", b)
	}
	return nil
}

// Model selects the likelihood model used for the LLR.
type Model string

const (
	// Logistic is the fishtest/fastchess GSPRT: normal approximation of the
	// trinomial score distribution, hypotheses in logistic Elo.
	Logistic Model = "logistic"
	// Bayesian is the cutechess BayesElo model with a draw Elo estimated
	// from the observed results.
	Bayesian Model = "bayesian"
)

func ParseModel(s string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(s))) {
	case "", Logistic:
		return Logistic, nil
	case Bayesian:
		return Bayesian, nil
	}
	return "", fmt.Errorf("unknown sprt model %q (want logistic|bayesian)", s)
}

// Params are the hypotheses and error bounds of one test.
type Params struct {
	Elo0  float64 `yaml:"elo0" json:"elo0"`
	Elo1  float64 `yaml:"elo1" json:"elo1"`
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
	Model Model   `yaml:"model" json:"model"`
}

func (p Params) Validate() error {
	if !(p.Elo0 < p.Elo1) {
		return fmt.Errorf("elo0 (%g) must be lower than elo1 (%g)", p.Elo0, p.Elo1)
	}
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return fmt.Errorf("alpha %g outside (0,1)", p.Alpha)
	}
	if p.Beta <= 0 || p.Beta >= 1 {
		return fmt.Errorf("beta %g outside (0,1)", p.Beta)
	}
	if p.Alpha+p.Beta >= 1 {
		return fmt.Errorf("alpha+beta must be below 1")
	}
	if _, err := ParseModel(string(p.Model)); err != nil {
		return err
	}
	return nil
}

// Bounds returns the lower (accept H0) and upper (accept H1) LLR bounds.
func (p Params) Bounds() (lower, upper float64) {
	return math.Log(p.Beta / (1 - p.Alpha)), math.Log((1 - p.Beta) / p.Alpha)
}

// SPRT evaluates the log-likelihood ratio of H1 (elo1) against H0 (elo0).
// Not safe for concurrent use; match.State serializes access.
type SPRT struct {
	params   Params
	lower    float64
	upper    float64
	llr      float64
	games    int
	decision Decision
}

func NewSPRT(p Params) (*SPRT, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Model, _ = ParseModel(string(p.Model))
	lo, hi := p.Bounds()
	return &SPRT{params: p, lower: lo, upper: hi}, nil
}

func (s *SPRT) Params() Params     { return s.params }
func (s *SPRT) LLR() float64       { return s.llr }
func (s *SPRT) Games() int         { return s.games }
func (s *SPRT) Decision() Decision { return s.decision }
func (s *SPRT) Bounds() (lower, upper float64) {
	return s.lower, s.upper
}

// Update recomputes the LLR for the cumulative counts. Once a bound has been
// crossed the decision no longer changes, the LLR keeps tracking the counts.
func (s *SPRT) Update(wins, losses, draws int) Decision {
	s.games = wins + losses + draws
	s.llr = LLR(s.params.Model, wins, losses, draws, s.params.Elo0, s.params.Elo1)
	if s.decision != Continue {
		return s.decision
	}
	switch {
	case s.llr >= s.upper:
		s.decision = AcceptH1
	case s.llr <= s.lower:
		s.decision = AcceptH0
	}
	return s.decision
}

// LLR computes the log-likelihood ratio for the given counts under model.
func LLR(model Model, wins, losses, draws int, elo0, elo1 float64) float64 {
	if model == Bayesian {
		return llrBayes(wins, losses, draws, elo0, elo1)
	}
	return llrLogistic(wins, losses, draws, elo0, elo1)
}

// emptyCell is the pseudo-count given to a result that has not occurred
// yet. Without it a one-sided sample has zero variance (logistic) or an
// undefined draw Elo (BayesElo) and the LLR could never leave 0.
const emptyCell = 0.5

func regularize(wins, losses, draws int) (w, l, d float64) {
	cell := func(x int) float64 {
		if x == 0 {
			return emptyCell
		}
		return float64(x)
	}
	return cell(wins), cell(losses), cell(draws)
}

func llrLogistic(wins, losses, draws int, elo0, elo1 float64) float64 {
	if wins+losses+draws == 0 {
		return 0
	}
	nw, nl, nd := regularize(wins, losses, draws)
	n := nw + nl + nd
	w, d := nw/n, nd/n
	score := w + d/2
	variance := w + d/4 - score*score
	if variance <= 0 {
		return 0
	}
	s0, s1 := ExpectedScore(elo0), ExpectedScore(elo1)
	return n * (s1 - s0) * (2*score - s0 - s1) / (2 * variance)
}

// ---- BayesElo ----

type bayesElo struct{ elo, drawElo float64 }

type trinomial struct{ win, loss, draw float64 }

func (b bayesElo) probs() trinomial {
	w := 1.0 / (1.0 + math.Pow(10, (b.drawElo-b.elo)/400.0))
	l := 1.0 / (1.0 + math.Pow(10, (b.drawElo+b.elo)/400.0))
	return trinomial{win: w, loss: l, draw: 1 - w - l}
}

// scale converts logistic Elo into BayesElo for a given draw Elo.
func (b bayesElo) scale() float64 {
	x := math.Pow(10, -b.drawElo/400.0)
	return 4 * x / ((1 + x) * (1 + x))
}

func llrBayes(wins, losses, draws int, elo0, elo1 float64) float64 {
	if wins+losses+draws == 0 {
		return 0
	}
	nw, nl, nd := regularize(wins, losses, draws)
	n := nw + nl + nd
	pw, pl := nw/n, nl/n
	drawElo := 200.0 * math.Log10((1-pl)/pl*(1-pw)/pw)

	est := bayesElo{drawElo: drawElo}
	sc := est.scale()
	p0 := bayesElo{elo: elo0 / sc, drawElo: drawElo}.probs()
	p1 := bayesElo{elo: elo1 / sc, drawElo: drawElo}.probs()

	return nw*math.Log(p1.win/p0.win) +
		nl*math.Log(p1.loss/p0.loss) +
		nd*math.Log(p1.draw/p0.draw)
}
