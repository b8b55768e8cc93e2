// Package errors provides structured error types for the skein daemon.
// These errors provide context about what operation failed and where.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindConflict
	KindPermission
	KindIO
	KindConfig
	KindGit
	KindSpawn
	KindAgent
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "already exists"
	case KindPermission:
		return "permission denied"
	case KindIO:
		return "I/O error"
	case KindConfig:
		return "configuration error"
	case KindGit:
		return "git error"
	case KindSpawn:
		return "process spawn error"
	case KindAgent:
		return "agent error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for skein.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns a message suitable for surfacing to the shell.
// It prefers the error's context string and falls back to the kind.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Context != "" {
			return e.Context
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Session errors
func SessionNotFound(id string) error {
	return E(Op("session.Get"), KindNotFound, fmt.Sprintf("session %s not found", id))
}

func SessionSpawnFailed(id string, err error) error {
	return E(Op("session.Spawn"), KindSpawn, fmt.Sprintf("failed to start terminal for session %s", id), err)
}

// Config errors
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

func ConfigSaveFailed(path string, err error) error {
	return E(Op("config.Save"), KindConfig, fmt.Sprintf("failed to save config to %s", path), err)
}

func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindInvalid, reason)
}

// Git errors
func GitNotRepo(path string) error {
	return E(Op("git.ValidateRepo"), KindInvalid, fmt.Sprintf("%s is not a git repository", path))
}

func WorktreeAddFailed(branch string, err error) error {
	return E(Op("worktree.Provision"), KindGit, fmt.Sprintf("failed to create worktree for branch %s", branch), err)
}

func BranchCollision(branch string) error {
	return E(Op("session.Create"), KindConflict, fmt.Sprintf("branch %s already exists", branch))
}

// Agent errors
func AgentUnknown(name string) error {
	return E(Op("agent.FromName"), KindInvalid, fmt.Sprintf("unknown coding agent %q", name))
}

// Command runner errors
func RunnerTimeout(command string) error {
	return E(Op("runner.Run"), KindTimeout, fmt.Sprintf("command timed out: %s", command))
}

func RunnerNotStarted() error {
	return E(Op("runner.Run"), KindSpawn, "shared command terminal is not running")
}

// CLI prerequisite errors
func CLINotFound(name string) error {
	return E(Op("cli.Check"), KindNotFound, fmt.Sprintf("required CLI tool '%s' not found in PATH", name))
}
