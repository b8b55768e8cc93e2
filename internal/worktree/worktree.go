// Package worktree provisions isolated git worktrees for sessions.
//
// Each project gets a bucket directory under the worktree root, named
// after the project directory's basename. A marker file inside the
// bucket records which project owns it, so two repositories that share
// a basename map to distinct buckets. Session worktrees live inside
// the bucket and are backed by their own branch.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/skein-dev/skein/internal/errors"
	pexec "github.com/skein-dev/skein/internal/exec"
	"github.com/skein-dev/skein/internal/logger"
)

// executor is the command executor used by this package.
// It can be swapped for testing via SetExecutor.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// GetExecutor returns the current command executor.
func GetExecutor() pexec.CommandExecutor {
	return executor
}

// MarkerFile is the name of the ownership marker written inside each
// project bucket. Its contents are the absolute project directory path.
const MarkerFile = ".skein-project"

// BranchNamespace prefixes auto-generated session branch names.
const BranchNamespace = "skein"

// shortUUIDLen is how many characters of the session UUID go into
// auto-generated branch names.
const shortUUIDLen = 8

// Request carries everything Provision needs. The caller has already
// validated ProjectDir (exists, is a git repository) and CustomName
// (well-formed, not colliding with an existing branch).
type Request struct {
	ProjectDir    string
	ParentBranch  string
	SessionNumber int
	SessionUUID   string
	CustomName    string
	WorktreeRoot  string
}

// Provision creates a worktree and branch for a session, replacing any
// stale leftovers at the target path first. Only the worktree-add
// failure propagates; pre-clean failures are logged and swallowed.
func Provision(ctx context.Context, req Request) (worktreePath, branchName string, err error) {
	startTime := time.Now()
	logger.Log("Worktree: Provisioning for project=%s, number=%d, custom=%q, parent=%s",
		req.ProjectDir, req.SessionNumber, req.CustomName, req.ParentBranch)

	bucket, err := bucketFor(req.WorktreeRoot, req.ProjectDir)
	if err != nil {
		return "", "", errors.E(errors.Op("worktree.Provision"), errors.KindIO, err, "failed to prepare worktree directory")
	}

	dirName, branch := names(req)
	worktreePath = filepath.Join(bucket, dirName)

	preClean(ctx, req.ProjectDir, worktreePath, branch)

	logger.Log("Worktree: Creating git worktree: branch=%s, path=%s, from=%s", branch, worktreePath, req.ParentBranch)
	addStart := time.Now()
	output, err := executor.CombinedOutput(ctx, req.ProjectDir, "git", "worktree", "add", "-b", branch, worktreePath, req.ParentBranch)
	if err != nil {
		logger.Error("Worktree: Failed to create worktree after %v: %s", time.Since(addStart), strings.TrimSpace(string(output)))
		return "", "", errors.WorktreeAddFailed(branch, fmt.Errorf("%s: %w", strings.TrimSpace(string(output)), err))
	}

	logger.Info("Worktree: Provisioned path=%s, branch=%s in %v", worktreePath, branch, time.Since(startTime))
	return worktreePath, branch, nil
}

// Teardown force-removes a session's worktree and branch. Every step is
// best-effort; failures are logged and never returned, so a session
// record delete always succeeds even when repository cleanup does not.
func Teardown(ctx context.Context, projectDir, worktreePath, branchName string) {
	logger.Log("Worktree: Teardown worktree=%s, branch=%s", worktreePath, branchName)

	if worktreePath != "" {
		output, err := executor.CombinedOutput(ctx, projectDir, "git", "worktree", "remove", worktreePath, "--force")
		if err != nil {
			logger.Warn("Worktree: git worktree remove failed (best-effort): %s", strings.TrimSpace(string(output)))
			if err := os.RemoveAll(worktreePath); err != nil {
				logger.Warn("Worktree: direct removal failed: %v", err)
			}
		}
		executor.Run(ctx, projectDir, "git", "worktree", "prune")
	}

	if branchName != "" {
		output, err := executor.CombinedOutput(ctx, projectDir, "git", "branch", "-D", branchName)
		if err != nil {
			logger.Warn("Worktree: branch delete failed (may already be deleted): %s", strings.TrimSpace(string(output)))
		}
	}
}

// names returns the worktree directory name and branch name for a
// request. A custom name is used verbatim for both; otherwise the
// directory is session<N> and the branch carries a UUID suffix so a
// reused session number never collides with a prior branch.
func names(req Request) (dirName, branch string) {
	if req.CustomName != "" {
		return req.CustomName, req.CustomName
	}
	dirName = fmt.Sprintf("session%d", req.SessionNumber)
	branch = fmt.Sprintf("%s/%s-%s", BranchNamespace, dirName, shortUUID(req.SessionUUID))
	return dirName, branch
}

func shortUUID(id string) string {
	if len(id) > shortUUIDLen {
		return id[:shortUUIDLen]
	}
	return id
}

// bucketFor resolves the project's bucket directory under root,
// creating it and stamping the ownership marker on first use. When the
// basename is already owned by a different project, the bucket name
// gains a short hash of the project path. The mapping is deterministic,
// so the same project resolves to the same bucket across restarts.
func bucketFor(root, projectDir string) (string, error) {
	base := filepath.Base(projectDir)
	candidate := filepath.Join(root, base)

	owner := readMarker(candidate)
	if owner != "" && owner != projectDir {
		logger.Log("Worktree: Bucket %s owned by %s, disambiguating", candidate, owner)
		candidate = filepath.Join(root, base+"-"+pathHash(projectDir))
	}

	if err := os.MkdirAll(candidate, 0755); err != nil {
		return "", err
	}
	if readMarker(candidate) == "" {
		if err := os.WriteFile(filepath.Join(candidate, MarkerFile), []byte(projectDir+"\n"), 0644); err != nil {
			return "", err
		}
	}
	return candidate, nil
}

// readMarker returns the owning project path recorded in dir's marker
// file, or "" if there is none.
func readMarker(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// pathHash returns a short stable hash of a project path, used to
// disambiguate colliding bucket basenames.
func pathHash(path string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(path))[:8]
}

// preClean removes a stale worktree directory and branch left behind by
// a crash or incomplete teardown. Absence is the expected case, so all
// failures are swallowed.
func preClean(ctx context.Context, projectDir, worktreePath, branch string) {
	if _, err := os.Stat(worktreePath); err == nil {
		logger.Warn("Worktree: Stale worktree at %s, removing", worktreePath)
		if _, err := executor.CombinedOutput(ctx, projectDir, "git", "worktree", "remove", worktreePath, "--force"); err != nil {
			if err := os.RemoveAll(worktreePath); err != nil {
				logger.Warn("Worktree: stale removal failed: %v", err)
			}
		}
		executor.Run(ctx, projectDir, "git", "worktree", "prune")
	}

	if _, _, err := executor.Run(ctx, projectDir, "git", "rev-parse", "--verify", branch); err == nil {
		logger.Warn("Worktree: Stale branch %s, deleting", branch)
		if output, err := executor.CombinedOutput(ctx, projectDir, "git", "branch", "-D", branch); err != nil {
			logger.Warn("Worktree: stale branch delete failed: %s", strings.TrimSpace(string(output)))
		}
	}
}
