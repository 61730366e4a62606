package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/stashvcs/stash/internal/stash"
)

var applyCmd = &cobra.Command{
	Use:   "apply [<revision>]",
	Short: "Restore a stash entry onto the working tree, keeping the entry",
	Args:  cobra.MaximumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runRestore(cmd, args, false) },
}

var popCmd = &cobra.Command{
	Use:   "pop [<revision>]",
	Short: "Restore a stash entry and drop it if the restore succeeds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runRestore(cmd, args, true) },
}

func runRestore(cmd *cobra.Command, args []string, drop bool) error {
	ctx, done, err := openContext(cmd)
	if err != nil {
		return err
	}
	defer done()

	info, err := stash.ResolveInfo(ctx, args)
	if err != nil {
		return err
	}

	restoreIndex, _ := cmd.Flags().GetBool("index")
	if drop {
		err = stash.Pop(ctx, info, restoreIndex)
	} else {
		err = stash.Apply(ctx, info, restoreIndex)
	}

	var ce *stash.ConflictError
	if errors.As(err, &ce) {
		for _, p := range ce.Paths {
			ctx.Errorf("CONFLICT (content): merge conflict in %s\n", p)
		}
		ctx.Errorf("The stash entry is kept in case you need it again.\n")
	}
	return err
}

var branchCmd = &cobra.Command{
	Use:   "branch <name> [<revision>]",
	Short: "Create a branch at a stash entry's base and apply the entry to it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		info, err := stash.ResolveInfo(ctx, args[1:])
		if err != nil {
			return err
		}
		return stash.Branch(ctx, args[0], info)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [<path>...]",
	Short: "Mark conflicted paths from the last restore as resolved",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()
		return stash.Resolve(ctx, args)
	},
}

func init() {
	applyCmd.Flags().Bool("index", false, "also restore the captured index state")
	quietFlag(resolveCmd)
	popCmd.Flags().Bool("index", false, "also restore the captured index state")
	quietFlag(applyCmd)
	quietFlag(popCmd)
	quietFlag(branchCmd)
}
