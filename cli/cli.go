// Package cli wires the stash commands onto cobra and maps typed errors to
// exit codes. Only this dispatcher terminates the process; everything below
// it returns errors.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stashvcs/stash/internal/stash"
)

var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "Save and restore uncommitted working-tree state",
	Long: `Stash shelves tracked modifications, staged state, and optionally
untracked files as retrievable entries, and reapplies them later with a
three-way merge, even onto a working tree that has since diverged.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the dispatcher. Exit codes: 0 success, 1 generic failure,
// 128 for a revision that is not a stash-like commit.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var iv *stash.InvariantViolation
		if errors.As(err, &iv) {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(128)
		}
		var ue *stash.UsageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "usage error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd, commitCmd, statusCmd)
	rootCmd.AddCommand(pushCmd, createCmd, storeCmd)
	rootCmd.AddCommand(applyCmd, popCmd, branchCmd, resolveCmd)
	rootCmd.AddCommand(listCmd, showCmd, dropCmd, clearCmd)
}

// openContext opens the repository in the working directory and builds the
// operation context for one command invocation. The returned func releases
// the repository.
func openContext(cmd *cobra.Command) (*stash.Context, func(), error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("get working directory: %w", err)
	}
	repo, err := stash.Open(wd)
	if err != nil {
		return nil, nil, err
	}

	ctx := stash.NewContext(repo)
	if q, err := cmd.Flags().GetBool("quiet"); err == nil {
		ctx.Quiet = q
	}
	return ctx, func() { repo.Close() }, nil
}

func quietFlag(cmd *cobra.Command) {
	cmd.Flags().BoolP("quiet", "q", false, "suppress status output")
}
