// Package cli checks for the external command-line tools skein depends on.
package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/skein-dev/skein/internal/errors"
)

// Prerequisite describes an external tool expected on PATH.
type Prerequisite struct {
	Name        string
	Required    bool
	Description string
	InstallURL  string
}

// CheckResult is the outcome of looking up a single prerequisite.
type CheckResult struct {
	Prerequisite
	Found bool
	Path  string
}

// lookPath is a test seam over exec.LookPath.
var lookPath = exec.LookPath

// DefaultPrerequisites returns the tools skein uses. Git is required for
// worktree management. The agent CLIs are optional because a session only
// needs the one agent it launches.
func DefaultPrerequisites() []Prerequisite {
	return []Prerequisite{
		{
			Name:        "git",
			Required:    true,
			Description: "Git (worktrees and branches)",
			InstallURL:  "https://git-scm.com/downloads",
		},
		{
			Name:        "claude",
			Required:    false,
			Description: "Claude Code CLI",
			InstallURL:  "https://docs.anthropic.com/en/docs/claude-code/setup",
		},
		{
			Name:        "codex",
			Required:    false,
			Description: "Codex CLI",
			InstallURL:  "https://github.com/openai/codex",
		},
	}
}

// Check looks up a single prerequisite on PATH.
func Check(p Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: p}
	path, err := lookPath(p.Name)
	if err == nil {
		result.Found = true
		result.Path = path
	}
	return result
}

// CheckAll looks up every prerequisite and returns results in order.
func CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, 0, len(prereqs))
	for _, p := range prereqs {
		results = append(results, Check(p))
	}
	return results
}

// ValidateRequired returns an error if any required prerequisite is missing.
func ValidateRequired(prereqs []Prerequisite) error {
	for _, p := range prereqs {
		if !p.Required {
			continue
		}
		if result := Check(p); !result.Found {
			return errors.CLINotFound(p.Name)
		}
	}
	return nil
}

// FormatCheckResults renders results for terminal display, with install
// hints for anything missing.
func FormatCheckResults(results []CheckResult) string {
	var b strings.Builder
	b.WriteString("Prerequisites:\n")
	for _, r := range results {
		mark := "✗"
		if r.Found {
			mark = "✓"
		}
		label := r.Description
		if r.Required {
			label += " (required)"
		}
		fmt.Fprintf(&b, "  %s %-8s %s\n", mark, r.Name, label)
		if !r.Found && r.InstallURL != "" {
			fmt.Fprintf(&b, "             Install: %s\n", r.InstallURL)
		}
	}
	return b.String()
}
