package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"engine-arena/arena/internal/fakeengine"
	"engine-arena/arena/run"
)

func TestMain(m *testing.M) {
	if fakeengine.Requested() {
		fakeengine.Main()
		return
	}
	os.Exit(m.Run())
}

// runCLI executes the root command and captures its output.
func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := execute(context.Background(), args, &out, &out)
	return code, out.String()
}

func TestSPRTCommand(t *testing.T) {
	code, out := runCLI(t, "sprt", "--wins=200", "--losses=150", "--draws=50", "--elo0=0", "--elo1=10")
	require.Equal(t, exitPass, code)
	require.Contains(t, out, "llr       1.4815")
	require.Contains(t, out, "decision  continue")

	code, out = runCLI(t, "sprt", "-w", "200", "-l", "150", "-d", "50", "--elo1=10", "--model=bayesian")
	require.Equal(t, exitPass, code)
	require.Contains(t, out, "llr       1.4590")

	code, _ = runCLI(t, "sprt", "--wins=1", "--elo0=10", "--elo1=0")
	require.Equal(t, exitError, code)
}

func TestCheckOpeningsCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.epd")
	require.NoError(t, os.WriteFile(good, []byte(
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - ; id \"e4\"\n"+
			"rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq - 0 1\n"), 0o644))
	code, out := runCLI(t, "check-openings", good)
	require.Equal(t, exitPass, code)
	require.Contains(t, out, "2 positions ok")

	bad := filepath.Join(dir, "bad.epd")
	require.NoError(t, os.WriteFile(bad, []byte("not a position\n"), 0o644))
	code, out = runCLI(t, "check-openings", bad)
	require.Equal(t, exitError, code)
	require.Contains(t, out, "bad.epd:1")
}

func TestExecuteMapsErrors(t *testing.T) {
	code, out := runCLI(t, "run", "--concurrency=0")
	require.Equal(t, exitError, code)
	require.Contains(t, out, "config:")

	code, _ = runCLI(t, "no-such-command")
	require.Equal(t, exitError, code)
}

func TestVerdictExit(t *testing.T) {
	require.NoError(t, verdictExit(&run.Report{Verdict: run.Pass}, false))
	require.Equal(t, exitCode(exitFail), verdictExit(&run.Report{Verdict: run.Fail}, true))
	require.Equal(t, exitCode(exitInconclusive), verdictExit(&run.Report{Verdict: run.Inconclusive}, false))
	require.Equal(t, exitCode(exitInterrupted), verdictExit(&run.Report{Verdict: run.Inconclusive}, true))
}

func TestRunCommandWithFakeEngines(t *testing.T) {
	if testing.Short() {
		t.Skip("starts engine processes")
	}
	dir := t.TempDir()
	book := filepath.Join(dir, "book.epd")
	require.NoError(t, os.WriteFile(book, []byte(
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -\n"), 0o644))
	gamesOut := filepath.Join(dir, "games.jsonl")

	t.Setenv("ARENA_NEW_ENV", "ARENA_FAKE_ENGINE="+fakeengine.Normal)
	t.Setenv("ARENA_BASE_ENV", "ARENA_FAKE_ENGINE="+fakeengine.Normal)
	self := os.Args[0]
	code, out := runCLI(t, "run",
		"--new-name=dev", "--new-path="+self, "--new-arg=-test.run=^$",
		"--base-name=master", "--base-path="+self, "--base-arg=-test.run=^$",
		"--openings="+book,
		"--tc=movetime=1s",
		"--max-plies=12",
		"--max-games=4",
		"--concurrency=2",
		"--games-out="+gamesOut,
		"--log-level=error",
	)
	require.Equal(t, exitInconclusive, code, out)
	require.Contains(t, out, "INCONCLUSIVE")
	require.Contains(t, out, "(game_cap)")

	f, err := os.Open(gamesOut)
	require.NoError(t, err)
	defer f.Close()
	var games, summaries int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		switch e["type"] {
		case "game":
			games++
			g := e["game"].(map[string]any)
			require.Equal(t, "1/2-1/2", g["outcome"], g["termination"])
		case "summary":
			summaries++
		}
	}
	require.GreaterOrEqual(t, games, 4)
	require.LessOrEqual(t, games, 6)
	require.Equal(t, 1, summaries)
	require.True(t, strings.HasSuffix(strings.TrimSpace(out), "╯"))
}

