package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"engine-arena/arena/game"
	"engine-arena/arena/run"
	"engine-arena/arena/stats"
)

// reportStyles are bound to one output so colors appear only on terminals.
type reportStyles struct {
	box   lipgloss.Style
	title lipgloss.Style
	label lipgloss.Style
	dim   lipgloss.Style
	pass  lipgloss.Style
	fail  lipgloss.Style
	open  lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	r := lipgloss.NewRenderer(w)
	return reportStyles{
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1),
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label: r.NewStyle().Width(14).Foreground(lipgloss.Color("245")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("241")),
		pass:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		open:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
}

func (s reportStyles) verdict(v run.Verdict) string {
	label := strings.ToUpper(string(v))
	switch v {
	case run.Pass:
		return s.pass.Render(label)
	case run.Fail:
		return s.fail.Render(label)
	}
	return s.open.Render(label)
}

func (s reportStyles) row(b *strings.Builder, label, value string) {
	b.WriteString(s.label.Render(label))
	b.WriteString(value)
	b.WriteByte('\n')
}

// renderReport writes the final summary box for a finished run.
func renderReport(w io.Writer, rep *run.Report, newName, baseName string) {
	st := newReportStyles(w)
	snap := rep.Snapshot
	p := rep.Params

	var b strings.Builder
	b.WriteString(st.title.Render(fmt.Sprintf("SPRT %s vs %s", newName, baseName)))
	b.WriteByte('\n')
	b.WriteString(st.dim.Render(fmt.Sprintf("run %s", rep.RunID)))
	b.WriteString("\n\n")

	st.row(&b, "verdict", st.verdict(rep.Verdict)+st.dim.Render(" ("+string(rep.StoppedBy)+")"))
	st.row(&b, "hypotheses", fmt.Sprintf("elo0=%g elo1=%g alpha=%g beta=%g %s", p.Elo0, p.Elo1, p.Alpha, p.Beta, p.Model))
	st.row(&b, "llr", fmt.Sprintf("%.3f  [%.3f, %.3f]", snap.LLR, snap.Lower, snap.Upper))
	st.row(&b, "games", fmt.Sprintf("%d  W %d  L %d  D %d", snap.Games, snap.Wins, snap.Losses, snap.Draws))
	if snap.Discarded > 0 {
		st.row(&b, "discarded", fmt.Sprintf("%d", snap.Discarded))
	}
	st.row(&b, "rounds", fmt.Sprintf("%d", snap.Rounds))
	st.row(&b, "elo", fmt.Sprintf("%+.1f ± %.1f", snap.Elo.Elo, snap.Elo.Error))
	st.row(&b, "score", fmt.Sprintf("%.3f  (95%% CI %.3f..%.3f)", snap.Elo.Score, rep.ScoreLow, rep.ScoreHigh))
	st.row(&b, "los", fmt.Sprintf("%.1f%%", snap.Elo.LOS*100))
	st.row(&b, "draw ratio", fmt.Sprintf("%.1f%%", snap.Elo.Draws*100))
	st.row(&b, "glicko-2", glickoLine(snap.Glicko))
	if ends := terminationLine(snap.Terminations); ends != "" {
		st.row(&b, "endings", ends)
	}
	st.row(&b, "duration", fmt.Sprintf("%s  (%.0f games/h)", rep.Duration.Round(time.Second), rep.GamesPerHour()))

	fmt.Fprintln(w, st.box.Render(strings.TrimRight(b.String(), "\n")))
}

func glickoLine(g stats.Pair) string {
	return fmt.Sprintf("new %.0f (rd %.0f)  base %.0f (rd %.0f)", g.New.Rating, g.New.RD, g.Base.Rating, g.Base.RD)
}

// terminationLine lists endings by frequency, most common first.
func terminationLine(m map[game.Termination]int) string {
	keys := make([]game.Termination, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
