package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"engine-arena/arena/game"
	"engine-arena/arena/judge"
	"engine-arena/arena/match"
	"engine-arena/arena/openings"
	"engine-arena/arena/run"
	"engine-arena/arena/stats"
	"engine-arena/arena/uci"
)

func sample(id int) game.Record {
	return game.Record{
		ID:          id,
		Round:       id / 2,
		Opening:     openings.Opening{Index: 0, FEN: judge.StartFEN},
		White:       "new",
		Black:       "base",
		NewColor:    game.White,
		Moves:       []game.Move{{UCI: "f2f3"}, {UCI: "e7e5"}, {UCI: "g2g4"}, {UCI: "d8h4"}},
		Plies:       4,
		Outcome:     game.BlackWin,
		Termination: game.Checkmate,
		Phase:       game.Decided,
		StartedAt:   time.Now(),
		Duration:    time.Second,
	}
}

func TestGameLogLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewGameLog(&buf)
	ctx := context.Background()

	require.NoError(t, l.Begin(ctx, "run-1", stats.Params{}))
	require.NoError(t, l.Record(ctx, sample(0), match.Snapshot{Losses: 1, LLR: -0.1}))
	require.NoError(t, l.Record(ctx, sample(1), match.Snapshot{Losses: 2, LLR: -0.2}))
	require.NoError(t, l.End(ctx, &run.Report{RunID: "run-1", Verdict: run.Inconclusive}))

	var entries []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		entries = append(entries, m)
	}
	require.Len(t, entries, 3)
	require.Equal(t, "game", entries[0]["type"])
	require.Equal(t, "run-1", entries[0]["run"])
	g := entries[1]["game"].(map[string]any)
	require.Equal(t, float64(1), g["id"])
	require.Equal(t, "0-1", g["outcome"])
	require.Equal(t, "white", g["new_color"])
	require.Equal(t, "summary", entries[2]["type"])
	require.Equal(t, "inconclusive", entries[2]["summary"].(map[string]any)["verdict"])
}

func TestOpenGameLogAppends(t *testing.T) {
	p := filepath.Join(t.TempDir(), "games.jsonl")
	for i := 0; i < 2; i++ {
		l, err := OpenGameLog(p)
		require.NoError(t, err)
		require.NoError(t, l.Record(context.Background(), sample(i), match.Snapshot{}))
		require.NoError(t, l.Close())
	}
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

// TestArchive needs a scratch database: ARENA_TEST_DSN=postgres://...
func TestArchive(t *testing.T) {
	dsn := os.Getenv("ARENA_TEST_DSN")
	if dsn == "" {
		t.Skip("ARENA_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping(ctx))
	require.NoError(t, Migrate(ctx, db))

	pair := match.Pair{New: uci.Engine{Name: "new-" + uuid.NewString(), Path: "/bin/new"}, Base: uci.Engine{Name: "base", Path: "/bin/base"}}
	a := NewArchive(db, pair)
	runID := uuid.NewString()
	require.NoError(t, a.Begin(ctx, runID, stats.Params{Elo0: 0, Elo1: 5, Alpha: 0.05, Beta: 0.05, Model: stats.Logistic}))
	require.NoError(t, a.Record(ctx, sample(0), match.Snapshot{Games: 1, Losses: 1, Glicko: stats.NewPair()}))
	require.NoError(t, a.End(ctx, &run.Report{Verdict: run.Inconclusive, StoppedBy: run.StoppedByCap}))

	var games, points int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM games WHERE run_id = $1`, runID).Scan(&games))
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM llr_points WHERE run_id = $1`, runID).Scan(&points))
	require.Equal(t, 1, games)
	require.Equal(t, 1, points)
}
