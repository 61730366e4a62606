package stash

import (
	"fmt"
)

// Resolve marks conflicted paths from the last restore as resolved. With no
// paths, every remaining conflict is marked. The merge record is removed
// once nothing is left unresolved, which re-enables restores.
func Resolve(ctx *Context, paths []string) error {
	rec, err := ctx.Repo.Records.Load()
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no merge in progress")
	}

	if len(paths) == 0 {
		paths = rec.Unresolved()
	}
	for _, p := range paths {
		if _, ok := rec.Files[p]; !ok {
			return Usagef("%s has no recorded conflict", p)
		}
		rec.MarkResolved(p)
	}

	if remaining := rec.Unresolved(); len(remaining) > 0 {
		ctx.Printf("%d conflicted path(s) remaining\n", len(remaining))
		return ctx.Repo.Records.Save(rec)
	}
	if err := ctx.Repo.Records.Delete(); err != nil {
		return err
	}
	ctx.Printf("All conflicts resolved.\n")
	return nil
}
