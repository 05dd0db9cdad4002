package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"engine-arena/arena/openings"
	"engine-arena/arena/stats"
	"engine-arena/arena/store"
)

func newCheckOpeningsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-openings <file>",
		Short: "Validate an EPD/FEN opening book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openings.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d positions ok\n", book.Path, book.Len())
			return nil
		},
	}
}

// newSPRTCmd is an offline calculator: the LLR and decision for a given
// result, without playing anything.
func newSPRTCmd() *cobra.Command {
	var (
		wins, losses, draws int
		p                   = stats.Params{Elo0: 0, Elo1: 5, Alpha: 0.05, Beta: 0.05}
		model               string
	)
	cmd := &cobra.Command{
		Use:   "sprt",
		Short: "Evaluate the SPRT for a given win/loss/draw count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := stats.ParseModel(model)
			if err != nil {
				return &ConfigError{Field: "model", Err: err}
			}
			p.Model = m
			if wins < 0 || losses < 0 || draws < 0 {
				return &ConfigError{Field: "wins/losses/draws", Err: fmt.Errorf("counts must not be negative")}
			}
			s, err := stats.NewSPRT(p)
			if err != nil {
				return &ConfigError{Field: "sprt", Err: err}
			}
			d := s.Update(wins, losses, draws)
			lo, hi := s.Bounds()
			est := stats.EstimateElo(wins, losses, draws)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "games     %d (W %d L %d D %d)\n", wins+losses+draws, wins, losses, draws)
			fmt.Fprintf(out, "llr       %.4f [%.4f, %.4f] %s\n", s.LLR(), lo, hi, p.Model)
			fmt.Fprintf(out, "decision  %s\n", d)
			fmt.Fprintf(out, "elo       %+.2f ± %.2f (los %.1f%%)\n", est.Elo, est.Error, est.LOS*100)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&wins, "wins", "w", 0, "wins of the new engine")
	f.IntVarP(&losses, "losses", "l", 0, "losses of the new engine")
	f.IntVarP(&draws, "draws", "d", 0, "draws")
	f.Float64Var(&p.Elo0, "elo0", p.Elo0, "Elo difference under H0")
	f.Float64Var(&p.Elo1, "elo1", p.Elo1, "Elo difference under H1")
	f.Float64Var(&p.Alpha, "alpha", p.Alpha, "false positive rate")
	f.Float64Var(&p.Beta, "beta", p.Beta, "false negative rate")
	f.StringVar(&model, "model", string(stats.Logistic), "logistic|bayesian")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres archive schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return &ConfigError{Field: "database-url", Err: fmt.Errorf("not set (flag or DATABASE_URL)")}
			}
			ctx := cmd.Context()
			db, err := store.Open(ctx, dsn)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := store.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("migrated")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", "", "Postgres DSN (default $DATABASE_URL)")
	return cmd
}
