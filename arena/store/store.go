package store

import (
	"context"
	"embed"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/stats"
	"engine-arena/arena/uci"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(ctx context.Context, dsn string) (*DB, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Write helpers
------------------------------*/

// UpsertEngine records an engine build and returns its id.
func (db *DB) UpsertEngine(ctx context.Context, e uci.Engine) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
        INSERT INTO engines(name, path)
        VALUES ($1,$2)
        ON CONFLICT (name) DO UPDATE
          SET path = EXCLUDED.path,
              updated_at = now()
        RETURNING id
    `, e.Name, e.Path).Scan(&id)
	return id, err
}

// CreateRun inserts the run row. Engine ids may be zero when unknown.
func (db *DB) CreateRun(ctx context.Context, runID string, newID, baseID int64, p stats.Params) error {
	_, err := db.Exec(ctx, `
		INSERT INTO runs(id, new_engine, base_engine, elo0, elo1, alpha, beta, model)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, runID, nullID(newID), nullID(baseID), p.Elo0, p.Elo1, p.Alpha, p.Beta, string(p.Model))
	return err
}

// InsertGame stores a finished game and, for counted games, the LLR point
// after it, atomically.
func (db *DB) InsertGame(ctx context.Context, runID string, rec game.Record, snap match.Snapshot) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	var forfeit any
	if rec.Forfeit != game.NoColor {
		forfeit = rec.Forfeit.String()
	}
	if _, err := tx.Exec(ctx, `
        INSERT INTO games(
            run_id, game_id, round, opening_index, opening_fen,
            white, black, new_color, outcome, termination, forfeit,
            discarded, plies, moves, started_at, duration_ms
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
    `, runID, rec.ID, rec.Round, rec.Opening.Index, rec.Opening.FEN,
		rec.White, rec.Black, rec.NewColor.String(), string(rec.Outcome), string(rec.Termination), forfeit,
		rec.Discarded, rec.Plies, strings.Join(rec.UCIMoves(), " "), rec.StartedAt, rec.Duration.Milliseconds()); err != nil {
		return err
	}

	if rec.Counted() {
		if _, err := tx.Exec(ctx, `
            INSERT INTO llr_points(
                run_id, games, wins, losses, draws, llr,
                g_new, g_new_rd, g_base, g_base_rd
            ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
            ON CONFLICT (run_id, games) DO NOTHING
        `, runID, snap.Games, snap.Wins, snap.Losses, snap.Draws, snap.LLR,
			snap.Glicko.New.Rating, snap.Glicko.New.RD, snap.Glicko.Base.Rating, snap.Glicko.Base.RD); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RunSummary is what CompleteRun writes back to the run row.
type RunSummary struct {
	Verdict   string
	StoppedBy string
	Snapshot  match.Snapshot
}

func (db *DB) CompleteRun(ctx context.Context, runID string, s RunSummary) error {
	_, err := db.Exec(ctx, `
		UPDATE runs
		   SET finished_at = $2,
		       verdict = $3,
		       stopped_by = $4,
		       wins = $5,
		       losses = $6,
		       draws = $7,
		       discarded = $8,
		       llr = $9,
		       elo = $10,
		       elo_error = $11
		 WHERE id = $1
	`, runID, time.Now(), s.Verdict, s.StoppedBy,
		s.Snapshot.Wins, s.Snapshot.Losses, s.Snapshot.Draws, s.Snapshot.Discarded,
		s.Snapshot.LLR, finite(s.Snapshot.Elo.Elo), finite(s.Snapshot.Elo.Error))
	return err
}

func nullID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

// finite maps ±Inf and NaN to NULL.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
