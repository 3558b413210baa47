// Package uirepo locates the separate UI tests repository that processed and
// diff screenshots can be stored in.
package uirepo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Info describes the checked-out UI tests repository.
type Info struct {
	// Root is the worktree root directory.
	Root string
	// Head is the commit hash HEAD points at; empty before the first commit.
	Head string
	// Branch is the short name of the checked-out branch, if any.
	Branch string
}

// Resolve opens the git repository containing path, searching parent
// directories for the .git directory.
func Resolve(path string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, fmt.Errorf("failed to open ui tests repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Info{}, fmt.Errorf("ui tests repository at %s has no worktree: %w", path, err)
	}
	info := Info{Root: wt.Filesystem.Root()}

	head, err := repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return info, nil
	case err != nil:
		return Info{}, fmt.Errorf("failed to read HEAD of %s: %w", info.Root, err)
	}

	info.Head = head.Hash().String()
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, nil
}
