package git

import (
	"context"
	"strings"

	"github.com/skein-dev/skein/internal/errors"
)

// ListBranches returns the local branches of the repository at dir, with
// any branch literally named "main" or "master" moved to the front. The
// remaining branches keep the order git reported them in.
func ListBranches(ctx context.Context, dir string) ([]string, error) {
	const op = errors.Op("git.ListBranches")

	if err := ValidateRepo(ctx, dir); err != nil {
		return nil, err
	}

	output, err := executor.Output(ctx, dir, "git", "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, errors.E(op, errors.KindGit, err, "failed to list branches")
	}

	var branches []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			branches = append(branches, line)
		}
	}

	return SortDefaultFirst(branches), nil
}

// SortDefaultFirst returns branches with any entry literally named "main"
// or "master" moved to the front. All other entries keep their relative
// order. The input slice is not modified.
func SortDefaultFirst(branches []string) []string {
	if len(branches) == 0 {
		return branches
	}

	primary := make([]string, 0, 2)
	rest := make([]string, 0, len(branches))
	for _, b := range branches {
		if b == "main" || b == "master" {
			primary = append(primary, b)
		} else {
			rest = append(rest, b)
		}
	}

	return append(primary, rest...)
}
