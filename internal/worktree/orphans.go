package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/skein-dev/skein/internal/logger"
)

// Orphan is a worktree under the worktree root with no matching
// session record.
type Orphan struct {
	Path       string // worktree directory
	ProjectDir string // owning repository, from the bucket marker
	Branch     string // branch checked out in the worktree, if known
}

// worktreeInfo is one entry of `git worktree list --porcelain`.
type worktreeInfo struct {
	Path   string
	Branch string
}

// FindOrphans scans every project bucket under root and returns the
// worktrees whose paths are not in the known set. Buckets whose owning
// repository is gone contribute their directories with no branch info.
func FindOrphans(ctx context.Context, root string, known map[string]bool) ([]Orphan, error) {
	logger.Log("Worktree: Searching for orphans under %s", root)

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var orphans []Orphan
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bucket := filepath.Join(root, entry.Name())
		owner := readMarker(bucket)
		if owner == "" {
			continue
		}

		infos, err := listWorktrees(ctx, owner)
		if err != nil {
			// Owning repo is gone. Everything left in the bucket is
			// an orphan we can only remove from disk.
			logger.Warn("Worktree: Cannot list worktrees for %s: %v", owner, err)
			orphans = append(orphans, bucketLeftovers(bucket, known)...)
			continue
		}

		prefix := bucket + string(filepath.Separator)
		for _, info := range infos {
			if !strings.HasPrefix(info.Path, prefix) {
				continue
			}
			if !known[info.Path] {
				orphans = append(orphans, Orphan{Path: info.Path, ProjectDir: owner, Branch: info.Branch})
			}
		}
	}

	logger.Log("Worktree: Found %d orphans", len(orphans))
	return orphans, nil
}

// PruneOrphans removes all orphaned worktrees. Branches are deleted
// only when they live in the session branch namespace, so custom-named
// branches a user may still want survive. Returns how many worktrees
// were removed.
func PruneOrphans(ctx context.Context, root string, known map[string]bool) (int, error) {
	orphans, err := FindOrphans(ctx, root, known)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, orphan := range orphans {
		logger.Log("Worktree: Pruning orphan %s", orphan.Path)

		if orphan.ProjectDir != "" {
			if _, _, err := executor.Run(ctx, orphan.ProjectDir, "git", "worktree", "remove", orphan.Path, "--force"); err != nil {
				logger.Warn("Worktree: git worktree remove failed, trying direct removal")
				if err := os.RemoveAll(orphan.Path); err != nil {
					logger.Error("Worktree: Failed to remove orphan %s: %v", orphan.Path, err)
					continue
				}
			}
			executor.Run(ctx, orphan.ProjectDir, "git", "worktree", "prune")

			if strings.HasPrefix(orphan.Branch, BranchNamespace+"/") {
				executor.Run(ctx, orphan.ProjectDir, "git", "branch", "-D", orphan.Branch)
			}
		} else {
			if err := os.RemoveAll(orphan.Path); err != nil {
				logger.Error("Worktree: Failed to remove orphan %s: %v", orphan.Path, err)
				continue
			}
		}

		pruned++
	}

	return pruned, nil
}

// bucketLeftovers returns the first-level directories of a bucket that
// are not known worktree paths, with no owner attached.
func bucketLeftovers(bucket string, known map[string]bool) []Orphan {
	entries, err := os.ReadDir(bucket)
	if err != nil {
		return nil
	}

	var orphans []Orphan
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(bucket, entry.Name())
		if !known[path] {
			orphans = append(orphans, Orphan{Path: path})
		}
	}
	return orphans
}

// listWorktrees parses `git worktree list --porcelain` for the
// repository at projectDir.
func listWorktrees(ctx context.Context, projectDir string) ([]worktreeInfo, error) {
	output, err := executor.Output(ctx, projectDir, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var infos []worktreeInfo
	var cur worktreeInfo
	for _, line := range strings.Split(string(output), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if cur.Path != "" {
				infos = append(infos, cur)
			}
			cur = worktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	if cur.Path != "" {
		infos = append(infos, cur)
	}
	return infos, nil
}
