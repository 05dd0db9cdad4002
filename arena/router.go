package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/stats"
)

// status is the live view of a run served by the API.
type status struct {
	RunID   string         `json:"run_id"`
	Params  stats.Params   `json:"sprt"`
	Started time.Time      `json:"started_at"`
	Playing int            `json:"games_started"`
	Result  match.Snapshot `json:"result"`
}

// apiDeps is what the router reads; all of it is safe to call while the run
// is in progress.
type apiDeps struct {
	RunID   string
	State   *match.State
	Started func() int // games handed to workers so far, may be nil
	Hub     *Hub
	Since   time.Time
}

func Router(d apiDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Health
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		s := status{
			RunID:   d.RunID,
			Params:  d.State.Params(),
			Started: d.Since,
			Result:  d.State.Snapshot(),
		}
		if d.Started != nil {
			s.Playing = d.Started()
		}
		writeJSON(w, s)
	})

	// Completion-order game log, paged.
	r.Get("/api/games", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := atoiDef(q.Get("limit"), 100)
		offset := atoiDef(q.Get("offset"), 0)
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		if offset < 0 {
			offset = 0
		}
		all := d.State.Games()
		page := []game.Record{}
		if offset < len(all) {
			end := min(offset+limit, len(all))
			page = all[offset:end]
		}
		writeJSON(w, map[string]any{"total": len(all), "offset": offset, "games": page})
	})

	r.Get("/api/games/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		for _, g := range d.State.Games() {
			if g.ID == id {
				writeJSON(w, g)
				return
			}
		}
		http.Error(w, "no such game", http.StatusNotFound)
	})

	r.Get("/api/trace", func(w http.ResponseWriter, r *http.Request) {
		lo, hi := d.State.Params().Bounds()
		writeJSON(w, map[string]any{"lower": lo, "upper": hi, "points": d.State.Trace()})
	})

	if d.Hub != nil {
		r.Handle("/ws/events", d.Hub)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
