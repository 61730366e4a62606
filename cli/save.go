package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stashvcs/stash/internal/stash"
)

var pushCmd = &cobra.Command{
	Use:   "push [<path>...]",
	Short: "Save local changes as a new stash entry and reset the working tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		opts := stash.CreateOptions{Paths: args}
		opts.Message, _ = cmd.Flags().GetString("message")
		opts.IncludeUntracked, _ = cmd.Flags().GetBool("include-untracked")
		opts.Patch, _ = cmd.Flags().GetBool("patch")

		created, err := stash.Create(ctx, opts)
		if errors.Is(err, stash.ErrNoChanges) {
			ctx.Printf("No local changes to save\n")
			return nil
		}
		if errors.Is(err, stash.ErrNothingSelected) {
			ctx.Printf("No changes selected\n")
			return nil
		}
		if err != nil {
			return err
		}

		if err := stash.Push(ctx, created.Info.W, created.Message); err != nil {
			return err
		}
		ctx.Printf("Saved working directory and index state %s\n", created.Message)

		// The saved changes leave the working tree: everything in full
		// mode, only the selected hunks in patch mode.
		if opts.Patch {
			return stash.RevertSelection(ctx, created.Info)
		}
		if err := stash.ResetToHead(ctx); err != nil {
			return err
		}
		if created.Info.HasUntracked {
			return stash.RemoveUntracked(ctx, created.Info.UTree)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create [<message>]",
	Short: "Build a stash entry without storing it anywhere",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		opts := stash.CreateOptions{}
		if len(args) == 1 {
			opts.Message = args[0]
		}

		created, err := stash.Create(ctx, opts)
		if errors.Is(err, stash.ErrNoChanges) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(created.Info.W)
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:   "store <commit>",
	Short: "Store a previously created stash entry on the stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		commit, err := ctx.Repo.Resolver.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("%s: not a valid commit", args[0])
		}
		msg, _ := cmd.Flags().GetString("message")
		return stash.Push(ctx, commit, msg)
	},
}

func init() {
	pushCmd.Flags().StringP("message", "m", "", "stash entry message")
	pushCmd.Flags().BoolP("include-untracked", "u", false, "include untracked files")
	pushCmd.Flags().BoolP("patch", "p", false, "interactively select hunks")
	quietFlag(pushCmd)

	storeCmd.Flags().StringP("message", "m", "", "reflog message")
	quietFlag(storeCmd)
	quietFlag(createCmd)
}
