package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/stash"
	"github.com/stashvcs/stash/internal/tree"
	"github.com/stashvcs/stash/internal/worktree"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a repository in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		repo, err := stash.Init(wd)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Refs.SetHead("main"); err != nil {
			return err
		}
		fmt.Printf("Initialized empty repository in %s\n", repo.MetaDir)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Stage file contents into the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()

		return index.Locked(ctx.WorkspacePath, func(f *index.File) error {
			return ctx.Repo.Worktree().Stage(f, args)
		})
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record the staged index as a commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, _ := cmd.Flags().GetString("message")
		if strings.TrimSpace(msg) == "" {
			return stash.Usagef("commit requires a message (-m)")
		}

		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()
		repo := ctx.Repo

		idx, err := index.Load(ctx.WorkspacePath)
		if err != nil {
			return err
		}
		treeRef, err := idx.WriteTree(tree.NewBuilder(repo.Objects))
		if err != nil {
			return err
		}

		var parents []cas.Hash
		var expect *cas.Hash
		if head, err := repo.Refs.HeadCommit(); err == nil {
			parents = append(parents, head)
			expect = &head
		} else {
			expect = &cas.Hash{}
		}

		commit, err := repo.Commits.Commit(treeRef.Hash, parents, repo.Author(), msg)
		if err != nil {
			return err
		}

		branch, err := repo.Refs.Head()
		if err != nil {
			return err
		}
		if branch == "" {
			branch = "main"
			if err := repo.Refs.SetHead(branch); err != nil {
				return err
			}
		}
		if err := repo.Refs.Update("refs/heads/"+branch, commit, expect, msg, true); err != nil {
			return err
		}

		fmt.Printf("[%s %s] %s\n", branch, commit.Short(), msg)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize staged and working-tree changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, done, err := openContext(cmd)
		if err != nil {
			return err
		}
		defer done()
		repo := ctx.Repo

		idx, err := index.Load(ctx.WorkspacePath)
		if err != nil {
			return err
		}

		var headTree tree.Ref
		if head, err := repo.Refs.HeadCommit(); err == nil {
			commit, err := repo.Commits.Read(head)
			if err != nil {
				return err
			}
			headTree, err = tree.NewLoader(repo.Objects).Load(commit.Tree)
			if err != nil {
				return err
			}
		}

		iTree, err := idx.WriteTree(tree.NewBuilder(repo.Objects))
		if err != nil {
			return err
		}
		staged, err := tree.NewLoader(repo.Objects).Diff(headTree, iTree)
		if err != nil {
			return err
		}

		if len(staged) > 0 {
			fmt.Println("Staged changes:")
			fmt.Println(worktree.Summary(staged))
		}

		untracked, err := repo.Worktree().Untracked(idx, nil)
		if err != nil {
			return err
		}
		if len(untracked) > 0 {
			fmt.Println("Untracked files:")
			for _, p := range untracked {
				fmt.Printf("?  %s\n", p)
			}
		}
		if len(staged) == 0 && len(untracked) == 0 {
			fmt.Println("nothing to report, working tree clean")
		}
		return nil
	},
}

func init() {
	commitCmd.Flags().StringP("message", "m", "", "commit message")
	quietFlag(addCmd)
	quietFlag(commitCmd)
}
