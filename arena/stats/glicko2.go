package stats

import "math"

// --- Glicko-2 constants & helpers (paper values) ---
const (
	g2Scale = 173.7178          // rating scale between r<->mu
	q       = math.Ln10 / 400.0 // q = ln(10)/400
	pi2     = math.Pi * math.Pi
	g2Tau   = 0.5
)

// Glicko2 holds the public "1500-scale" values (not mu/phi).
type Glicko2 struct {
	Rating     float64 `json:"rating"`
	RD         float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
	Games      int     `json:"games"`
}

// NewGlicko2 returns a fresh rating at the standard defaults.
func NewGlicko2() Glicko2 {
	return Glicko2{Rating: 1500, RD: 350, Volatility: 0.06}
}

func toMuPhi(r, rd float64) (mu, phi float64)   { return (r - 1500.0) / g2Scale, rd / g2Scale }
func fromMuPhi(mu, phi float64) (r, rd float64) { return mu*g2Scale + 1500.0, phi * g2Scale }

func g(phi float64) float64 { return 1.0 / math.Sqrt(1.0+3.0*q*q*phi*phi/pi2) }
func gExp(mu, muj, phij float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phij)*(mu-muj)))
}

// Update applies a single-opponent rating period with score s in [0,1].
// opp must hold the opponent's values from before this game.
func (a *Glicko2) Update(opp Glicko2, s float64) {
	muA, phiA := toMuPhi(a.Rating, a.RD)
	muB, phiB := toMuPhi(opp.Rating, opp.RD)

	gB := g(phiB)
	e := gExp(muA, muB, phiB)
	v := 1.0 / (q * q * gB * gB * e * (1.0 - e))
	delta := v * q * gB * (s - e)

	vol := a.Volatility
	if math.Abs(delta) >= 1e-12 {
		vol = solveVolatility(delta, phiA, v, a.Volatility)
	}

	phiStar := math.Sqrt(phiA*phiA + vol*vol)
	phiNew := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muNew := muA + (phiNew*phiNew)*q*gB*(s-e)

	a.Rating, a.RD = fromMuPhi(muNew, phiNew)
	a.Volatility = vol
	a.Games++
}

// solveVolatility finds sigma' via the Illinois iteration of the paper.
func solveVolatility(delta, phi, v, sigma float64) float64 {
	a2 := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
		return (num / den) - (x-a2)/(g2Tau*g2Tau)
	}

	A := a2
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a2-k*g2Tau) < 0 && k < 1e6 {
			k++
		}
		B = a2 - k*g2Tau
	}
	fA, fB := f(A), f(B)

	for it := 0; it < 60 && math.Abs(B-A) > 1e-6; it++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if math.IsNaN(fC) || math.IsInf(fC, 0) {
			break
		}
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	return math.Exp(A / 2.0)
}

// Pair tracks Glicko-2 ratings of the new and base engine game by game.
type Pair struct {
	New  Glicko2 `json:"new"`
	Base Glicko2 `json:"base"`
}

func NewPair() Pair { return Pair{New: NewGlicko2(), Base: NewGlicko2()} }

// Record applies one game; score is the new engine's result (1, 0.5, 0).
func (p *Pair) Record(score float64) {
	oldNew, oldBase := p.New, p.Base
	p.New.Update(oldBase, score)
	p.Base.Update(oldNew, 1-score)
}
