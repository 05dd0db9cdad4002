package uci

import (
	"strconv"
	"strings"
	"time"
)

// Limits are the search constraints sent with "go". MoveTime takes precedence
// over the clock fields when set.
type Limits struct {
	WTime    time.Duration
	BTime    time.Duration
	WInc     time.Duration
	BInc     time.Duration
	MoveTime time.Duration
}

func (l Limits) String() string {
	if l.MoveTime > 0 {
		return "go movetime " + ms(l.MoveTime)
	}
	var b strings.Builder
	b.WriteString("go wtime ")
	b.WriteString(ms(l.WTime))
	b.WriteString(" btime ")
	b.WriteString(ms(l.BTime))
	if l.WInc > 0 || l.BInc > 0 {
		b.WriteString(" winc ")
		b.WriteString(ms(l.WInc))
		b.WriteString(" binc ")
		b.WriteString(ms(l.BInc))
	}
	return b.String()
}

func ms(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// Info is the last search report seen before bestmove.
type Info struct {
	Depth int      `json:"depth,omitempty"`
	Score string   `json:"score,omitempty"` // "cp 31" or "mate -4"
	Nodes int64    `json:"nodes,omitempty"`
	PV    []string `json:"pv,omitempty"`
}

// parse folds an "info ..." line into i. Fields it does not know are skipped.
func (i *Info) parse(line string) {
	f := strings.Fields(line)
	for k := 1; k < len(f); k++ {
		switch f[k] {
		case "depth":
			if k+1 < len(f) {
				if n, err := strconv.Atoi(f[k+1]); err == nil {
					i.Depth = n
				}
				k++
			}
		case "nodes":
			if k+1 < len(f) {
				if n, err := strconv.ParseInt(f[k+1], 10, 64); err == nil {
					i.Nodes = n
				}
				k++
			}
		case "score":
			if k+2 < len(f) && (f[k+1] == "cp" || f[k+1] == "mate") {
				i.Score = f[k+1] + " " + f[k+2]
				k += 2
			}
		case "pv":
			i.PV = append([]string(nil), f[k+1:]...)
			return
		case "string":
			return
		}
	}
}

// BestMove is an engine's answer to "go". Move is empty when the engine
// reported that it has no move.
type BestMove struct {
	Move    string
	Ponder  string
	Info    Info
	Elapsed time.Duration
}
