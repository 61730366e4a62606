package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stashvcs/stash/internal/stash"
	"github.com/stashvcs/stash/internal/worktree"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stash entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		lines, err := stash.List(ctx)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [<revision>]",
	Short: "Show the changes recorded in a stash entry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		info, err := stash.ResolveInfo(ctx, args)
		if err != nil {
			return err
		}
		changes, err := stash.Show(ctx, info)
		if err != nil {
			return err
		}

		if patch, _ := cmd.Flags().GetBool("patch"); patch {
			text, err := renderPatch(ctx, changes)
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		}
		fmt.Println(worktree.Summary(changes))
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop [<revision>]",
	Short: "Remove a stash entry from the stack",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		info, err := stash.ResolveInfo(ctx, args)
		if err != nil {
			return err
		}
		return stash.Drop(ctx, info)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stash entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()
		return stash.Clear(ctx)
	},
}

func init() {
	showCmd.Flags().BoolP("patch", "p", false, "show the entry as a patch")
	quietFlag(dropCmd)
}
