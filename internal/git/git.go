// Package git wraps the git commands skein needs for repository
// inspection: branch listing, branch existence, default-branch
// discovery, and branch name validation. Worktree lifecycle lives in
// the worktree package.
package git

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/skein-dev/skein/internal/errors"
	pexec "github.com/skein-dev/skein/internal/exec"
)

// executor is the command executor used by this package.
// It can be swapped for testing via SetExecutor.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
// This is primarily used for testing.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// GetExecutor returns the current command executor.
func GetExecutor() pexec.CommandExecutor {
	return executor
}

// MaxBranchNameLength is the maximum length for user-provided branch names.
const MaxBranchNameLength = 100

// validBranchNameRegex matches valid git branch name characters.
// Git branch names cannot contain: space, ~, ^, :, ?, *, [, \, or control
// characters. They also cannot start with - or end with .lock.
var validBranchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// ValidateBranchName checks if a branch name is valid for git.
// Empty is allowed; callers treat it as "generate a name for me".
func ValidateBranchName(branch string) error {
	if branch == "" {
		return nil
	}

	if len(branch) > MaxBranchNameLength {
		return fmt.Errorf("branch name too long (max %d characters)", MaxBranchNameLength)
	}

	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}

	if strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch name cannot end with '.lock'")
	}

	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}

	if !validBranchNameRegex.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters (use letters, numbers, /, _, ., -)")
	}

	return nil
}

// IsRepo reports whether dir is inside a git repository.
func IsRepo(ctx context.Context, dir string) bool {
	_, _, err := executor.Run(ctx, dir, "git", "rev-parse", "--git-dir")
	return err == nil
}

// ValidateRepo returns an error if dir is not inside a git repository.
func ValidateRepo(ctx context.Context, dir string) error {
	if !IsRepo(ctx, dir) {
		return errors.GitNotRepo(dir)
	}
	return nil
}

// BranchExists checks if a branch already exists in the repo.
func BranchExists(ctx context.Context, repoPath, branch string) bool {
	_, _, err := executor.Run(ctx, repoPath, "git", "rev-parse", "--verify", branch)
	return err == nil
}

// CurrentBranch returns the checked-out branch name for the repo.
// Returns "HEAD" as fallback if it cannot be determined (detached HEAD).
func CurrentBranch(ctx context.Context, repoPath string) string {
	output, err := executor.Output(ctx, repoPath, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err == nil {
		branch := strings.TrimSpace(string(output))
		if branch != "" {
			return branch
		}
	}
	return "HEAD"
}

// DefaultBranch returns the default branch name for the repo (e.g. "main"
// or "master"). Returns "main" as fallback if it cannot be determined.
func DefaultBranch(ctx context.Context, repoPath string) string {
	// Try to get the default branch from origin's HEAD reference
	output, err := executor.Output(ctx, repoPath, "git", "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		// Output is like "refs/remotes/origin/main"
		ref := strings.TrimSpace(string(output))
		if strings.HasPrefix(ref, "refs/remotes/origin/") {
			return strings.TrimPrefix(ref, "refs/remotes/origin/")
		}
	}

	// Fallback: check for a local main, then master
	if BranchExists(ctx, repoPath, "main") {
		return "main"
	}
	if BranchExists(ctx, repoPath, "master") {
		return "master"
	}

	return "main"
}
