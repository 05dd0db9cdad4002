package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/metrics"
	"engine-arena/arena/openings"
	"engine-arena/arena/run"
	"engine-arena/arena/stats"
	"engine-arena/arena/store"
)

// collection flags are copied over whole rather than re-parsed
var collectionFlags = map[string]func(dst, src *Config){
	"new-arg":     func(d, s *Config) { d.New.Args = s.New.Args },
	"base-arg":    func(d, s *Config) { d.Base.Args = s.Base.Args },
	"new-option":  func(d, s *Config) { d.New.Options = s.New.Options },
	"base-option": func(d, s *Config) { d.Base.Options = s.Base.Options },
}

// bindRunFlags registers run flags on fs, targeting c and using its current
// values as defaults.
func bindRunFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVar(&c.New.Name, "new-name", c.New.Name, "name of the engine under test")
	fs.StringVar(&c.New.Path, "new-path", c.New.Path, "executable of the engine under test")
	fs.StringSliceVar(&c.New.Args, "new-arg", c.New.Args, "argument for the engine under test (repeatable)")
	fs.StringVar(&c.New.Dir, "new-dir", c.New.Dir, "working directory of the engine under test")
	fs.StringToStringVar(&c.New.Options, "new-option", c.New.Options, "UCI option for the engine under test, name=value")
	fs.StringVar(&c.Base.Name, "base-name", c.Base.Name, "name of the base engine")
	fs.StringVar(&c.Base.Path, "base-path", c.Base.Path, "executable of the base engine")
	fs.StringSliceVar(&c.Base.Args, "base-arg", c.Base.Args, "argument for the base engine (repeatable)")
	fs.StringVar(&c.Base.Dir, "base-dir", c.Base.Dir, "working directory of the base engine")
	fs.StringToStringVar(&c.Base.Options, "base-option", c.Base.Options, "UCI option for the base engine, name=value")

	fs.StringVar(&c.Openings, "openings", c.Openings, "EPD/FEN opening book")
	fs.StringVar(&c.OpeningOrder, "opening-order", c.OpeningOrder, "sequential|random")
	fs.IntVar(&c.OpeningStart, "opening-start", c.OpeningStart, "index of the first opening")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "seed for random opening order")
	fs.IntVar(&c.Repeat, "repeat", c.Repeat, "games per opening, colors alternate")

	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "games played at once")
	fs.IntVar(&c.MaxGames, "max-games", c.MaxGames, "stop after this many counted games (0 = no cap)")
	fs.IntVar(&c.ScheduleLimit, "schedule-limit", c.ScheduleLimit, "start at most this many games, discarded ones included (0 = no limit)")
	fs.StringVar(&c.TimeControl, "tc", c.TimeControl, `time control, "base+inc" seconds or "movetime=100ms"`)
	fs.DurationVar(&c.Margin, "margin", c.Margin, "grace before a move counts as a time loss")
	fs.IntVar(&c.MaxPlies, "max-plies", c.MaxPlies, "ply ceiling per game (0 = none)")
	fs.StringVar(&c.MoveLimit, "move-limit", c.MoveLimit, "what a game at the ply ceiling is worth: draw|discard")
	fs.DurationVar(&c.GameTimeout, "game-timeout", c.GameTimeout, "wall-clock cap per game (0 = none)")
	fs.DurationVar(&c.StartupTimeout, "startup-timeout", c.StartupTimeout, "engine handshake deadline")

	fs.Float64Var(&c.Elo0, "elo0", c.Elo0, "Elo difference under H0")
	fs.Float64Var(&c.Elo1, "elo1", c.Elo1, "Elo difference under H1")
	fs.Float64Var(&c.Alpha, "alpha", c.Alpha, "false positive rate")
	fs.Float64Var(&c.Beta, "beta", c.Beta, "false negative rate")
	fs.StringVar(&c.Model, "model", c.Model, "LLR model: logistic|bayesian")

	fs.StringVar(&c.GamesOut, "games-out", c.GamesOut, "append every game as JSON lines to this file")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "Postgres archive DSN")
	fs.BoolVar(&c.AutoMigrate, "auto-migrate", c.AutoMigrate, "apply the archive schema before the run")
	fs.StringVar(&c.Listen, "listen", c.Listen, "serve the live status API on this address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace|debug|info|warn|error")

	fs.BoolVar(&c.StopImmediate, "stop-immediate", c.StopImmediate, "first interrupt discards games in flight")
	fs.IntVar(&c.MaxSeconds, "max-seconds", c.MaxSeconds, "stop gracefully after this many seconds (0 = never)")
	fs.StringVar(&c.StopFile, "stop-file", c.StopFile, "stop gracefully once this file exists")
}

func newRunCmd() *cobra.Command {
	flagged := defaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play games until the SPRT decides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Flags(), configPath, &flagged)
			if err != nil {
				return err
			}
			return runMatch(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	bindRunFlags(cmd.Flags(), &flagged)
	return cmd
}

// resolveConfig loads file and environment settings, then reapplies the
// flags the user actually set.
func resolveConfig(flags *pflag.FlagSet, path string, flagged *Config) (Config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return cfg, err
	}
	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	bindRunFlags(overlay, &cfg)

	var setErr error
	flags.Visit(func(f *pflag.Flag) {
		if setErr != nil {
			return
		}
		if copyFn, ok := collectionFlags[f.Name]; ok {
			copyFn(&cfg, flagged)
			return
		}
		if overlay.Lookup(f.Name) == nil {
			return
		}
		if err := overlay.Set(f.Name, f.Value.String()); err != nil {
			setErr = &ConfigError{Field: f.Name, Err: err}
		}
	})
	if setErr != nil {
		return cfg, setErr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runMatch(cmd *cobra.Command, cfg Config) error {
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}
	book, err := openings.Load(cfg.Openings)
	if err != nil {
		return err
	}
	src, err := openings.NewSource(book, cfg.SourceOptions())
	if err != nil {
		return &ConfigError{Field: "openings", Err: err}
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	sprt, err := stats.NewSPRT(params)
	if err != nil {
		return &ConfigError{Field: "sprt", Err: err}
	}
	gcfg, err := cfg.GameConfig()
	if err != nil {
		return err
	}
	runner := game.NewRunner(gcfg, nil)
	runner.OnMove = metrics.ObserveMove

	pair := cfg.Pair()
	sched, err := match.NewScheduler(pair, src, runner.Play, cfg.SchedulerOptions())
	if err != nil {
		return &ConfigError{Field: "concurrency", Err: err}
	}
	state := match.NewState(sprt)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sinks := []run.GameSink{metrics.Sink{}}
	if cfg.GamesOut != "" {
		gl, err := store.OpenGameLog(cfg.GamesOut)
		if err != nil {
			return &ConfigError{Field: "games-out", Err: err}
		}
		defer gl.Close()
		sinks = append(sinks, gl)
	}
	if db := openArchive(ctx, cfg); db != nil {
		defer db.Close()
		sinks = append(sinks, store.NewArchive(db, pair))
	}
	var hub *Hub
	if cfg.Listen != "" {
		hub = NewHub()
		sinks = append(sinks, hub)
	}

	ctrl := run.New(state, sched, cfg.MaxGames, sinks...)
	stop := newStopper(ctrl.Stop, cancel, cfg.StopImmediate)
	go stop.watchSignals(ctx)
	if cfg.MaxSeconds > 0 {
		defer stop.deadline(time.Duration(cfg.MaxSeconds) * time.Second)()
	}
	if cfg.StopFile != "" {
		if err := stop.watchFile(ctx, cfg.StopFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.StopFile).Msg("stop file not watched")
		}
	}

	if cfg.Listen != "" {
		srv := &http.Server{
			Addr: cfg.Listen,
			Handler: Router(apiDeps{
				RunID:   ctrl.ID(),
				State:   state,
				Started: sched.Started,
				Hub:     hub,
				Since:   time.Now(),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Listen).Msg("status API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status API")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	log.Info().
		Str("run", ctrl.ID()).
		Str("new", pair.New.Name).
		Str("base", pair.Base.Name).
		Int("openings", book.Len()).
		Str("tc", gcfg.TimeControl.String()).
		Int("concurrency", cfg.Concurrency).
		Float64("elo0", params.Elo0).
		Float64("elo1", params.Elo1).
		Msg("run starting")

	rep, _ := ctrl.Run(ctx)
	renderReport(cmd.OutOrStdout(), rep, pair.New.Name, pair.Base.Name)
	return verdictExit(rep, stop.Interrupted())
}

// openArchive connects the Postgres archive. Any failure disables it for
// this run.
func openArchive(ctx context.Context, cfg Config) *store.DB {
	if cfg.DatabaseURL == "" {
		return nil
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err == nil {
		err = db.Ping(ctx)
		if err != nil {
			db.Close()
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("DB disabled (open failed)")
		return nil
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			log.Warn().Err(err).Msg("migrate failed (continuing without DB)")
			db.Close()
			return nil
		}
	}
	return db
}

// verdictExit maps a finished run onto the process exit status.
func verdictExit(rep *run.Report, interrupted bool) error {
	switch rep.Verdict {
	case run.Pass:
		return nil
	case run.Fail:
		return exitCode(exitFail)
	}
	if interrupted {
		return exitCode(exitInterrupted)
	}
	return exitCode(exitInconclusive)
}
