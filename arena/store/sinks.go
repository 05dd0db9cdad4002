package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/run"
	"engine-arena/arena/stats"
)

// Archive writes the run, every game and the LLR trace to Postgres.
type Archive struct {
	db    *DB
	pair  match.Pair
	runID string
}

func NewArchive(db *DB, pair match.Pair) *Archive { return &Archive{db: db, pair: pair} }

func (a *Archive) Name() string { return "postgres" }

func (a *Archive) Begin(ctx context.Context, runID string, p stats.Params) error {
	newID, err := a.db.UpsertEngine(ctx, a.pair.New)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", a.pair.New.Name, err)
	}
	baseID, err := a.db.UpsertEngine(ctx, a.pair.Base)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", a.pair.Base.Name, err)
	}
	if err := a.db.CreateRun(ctx, runID, newID, baseID, p); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	a.runID = runID
	return nil
}

func (a *Archive) Record(ctx context.Context, rec game.Record, snap match.Snapshot) error {
	return a.db.InsertGame(ctx, a.runID, rec, snap)
}

func (a *Archive) End(ctx context.Context, rep *run.Report) error {
	return a.db.CompleteRun(ctx, a.runID, RunSummary{
		Verdict:   string(rep.Verdict),
		StoppedBy: string(rep.StoppedBy),
		Snapshot:  rep.Snapshot,
	})
}

// GameLog appends one JSON object per line: a "game" entry for every
// committed game and a closing "summary" entry.
type GameLog struct {
	mu    sync.Mutex
	enc   *json.Encoder
	c     io.Closer
	runID string
}

type logEntry struct {
	Type    string       `json:"type"`
	Run     string       `json:"run"`
	Game    *game.Record `json:"game,omitempty"`
	Wins    int          `json:"wins"`
	Losses  int          `json:"losses"`
	Draws   int          `json:"draws"`
	LLR     float64      `json:"llr"`
	Summary *run.Report  `json:"summary,omitempty"`
}

// OpenGameLog appends to path, creating it if needed.
func OpenGameLog(path string) (*GameLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l := NewGameLog(f)
	l.c = f
	return l, nil
}

func NewGameLog(w io.Writer) *GameLog { return &GameLog{enc: json.NewEncoder(w)} }

func (l *GameLog) Name() string { return "game-log" }

func (l *GameLog) Begin(_ context.Context, runID string, _ stats.Params) error {
	l.mu.Lock()
	l.runID = runID
	l.mu.Unlock()
	return nil
}

func (l *GameLog) Record(_ context.Context, rec game.Record, snap match.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(logEntry{
		Type:   "game",
		Run:    l.runID,
		Game:   &rec,
		Wins:   snap.Wins,
		Losses: snap.Losses,
		Draws:  snap.Draws,
		LLR:    snap.LLR,
	})
}

func (l *GameLog) End(_ context.Context, rep *run.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := rep.Snapshot
	return l.enc.Encode(logEntry{
		Type:    "summary",
		Run:     l.runID,
		Wins:    s.Wins,
		Losses:  s.Losses,
		Draws:   s.Draws,
		LLR:     s.LLR,
		Summary: rep,
	})
}

func (l *GameLog) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
