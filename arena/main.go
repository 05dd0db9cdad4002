// Command arena runs SPRT matches between two UCI chess engines.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitPass         = 0
	exitFail         = 1
	exitInconclusive = 2
	exitError        = 3
	exitInterrupted  = 130
)

// exitCode carries a non-zero status out of a command without printing an
// error for it.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitPass
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	fmt.Fprintln(root.ErrOrStderr(), "arena:", err)
	return exitError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arena",
		Short: "Sequential probability ratio tests between two UCI chess engines",
		Long: `arena plays a new engine build against a base build from an opening book
and stops as soon as the SPRT accepts or rejects the Elo gain hypothesis.

Exit status: 0 pass, 1 fail, 2 inconclusive, 3 error, 130 interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := os.Getenv("ARENA_LOG_LEVEL")
			if level == "" {
				level = "info"
			}
			return setupLogging(level)
		},
	}
	root.AddCommand(
		newRunCmd(),
		newCheckOpeningsCmd(),
		newSPRTCmd(),
		newMigrateCmd(),
	)
	return root
}
