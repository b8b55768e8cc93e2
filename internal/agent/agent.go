// Package agent defines the closed set of coding agents a session can
// run and how to invoke them: launch command lines, status polling
// support, and MCP server management commands.
package agent

import (
	"sort"
	"strings"

	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/errors"
)

// Agent identifies a supported coding agent. Values outside the fixed
// set are rejected by FromName, so code past that boundary can switch
// on the constants without a default-case escape hatch.
type Agent string

const (
	// Claude is the Claude Code CLI.
	Claude Agent = "claude"
	// Codex is the Codex CLI.
	Codex Agent = "codex"
)

// All lists every supported agent, in display order.
func All() []Agent {
	return []Agent{Claude, Codex}
}

// Default is the agent used when a session config names none.
func Default() Agent {
	return Claude
}

// FromName resolves a configured agent name. Empty resolves to the
// default; unknown names are rejected.
func FromName(name string) (Agent, error) {
	if name == "" {
		return Default(), nil
	}
	for _, a := range All() {
		if string(a) == name {
			return a, nil
		}
	}
	return "", errors.AgentUnknown(name)
}

// Executable returns the binary name looked up on PATH.
func (a Agent) Executable() string {
	return string(a)
}

// DisplayName returns the human-readable agent name.
func (a Agent) DisplayName() string {
	switch a {
	case Claude:
		return "Claude Code"
	case Codex:
		return "Codex CLI"
	}
	return string(a)
}

// LaunchOptions carries the per-session pieces of an agent invocation.
type LaunchOptions struct {
	// SessionUUID is the agent-side conversation id. First spawns pass
	// it with --session-id; reopens pass it with --resume.
	SessionUUID     string
	Resume          bool
	SkipPermissions bool
	// MCPConfigPath points the agent at a generated MCP server config
	// file. Ignored by agents without such a flag.
	MCPConfigPath string
}

// LaunchArgs builds the agent's argument list for a session. Absent
// options contribute no arguments.
func (a Agent) LaunchArgs(opts LaunchOptions) []string {
	var args []string

	if opts.SessionUUID != "" {
		if opts.Resume {
			args = append(args, "--resume", opts.SessionUUID)
		} else {
			args = append(args, "--session-id", opts.SessionUUID)
		}
	}

	if opts.SkipPermissions {
		switch a {
		case Claude:
			args = append(args, "--dangerously-skip-permissions")
		case Codex:
			args = append(args, "--dangerously-bypass-approvals-and-sandbox")
		}
	}

	if a == Claude && opts.MCPConfigPath != "" {
		args = append(args, "--mcp-config", opts.MCPConfigPath)
	}

	return args
}

// LaunchLine is the space-joined command line typed into the session
// terminal to start the agent.
func (a Agent) LaunchLine(opts LaunchOptions) string {
	parts := append([]string{a.Executable()}, a.LaunchArgs(opts)...)
	return strings.Join(parts, " ")
}

// SupportsStatusPolling reports whether the agent can list its MCP
// servers for the status poller.
func (a Agent) SupportsStatusPolling() bool {
	return a == Claude
}

// StatusCommand is the command the status poller types to obtain the
// current MCP server listing. Empty when polling is unsupported.
func (a Agent) StatusCommand() string {
	if a == Claude {
		return "claude mcp list"
	}
	return ""
}

// AddServerArgs builds the argv for registering an MCP server with the
// agent CLI. Returns nil when this agent cannot register the given
// server shape (e.g. a URL-based server on an agent without transport
// flags).
func (a Agent) AddServerArgs(server config.MCPServerConfig) []string {
	switch a {
	case Claude:
		if server.URL != "" {
			transport := server.Transport
			if transport == "" {
				transport = "sse"
			}
			return []string{"mcp", "add", "--transport", transport, server.Name, server.URL}
		}
		args := []string{"mcp", "add"}
		for _, k := range sortedKeys(server.Env) {
			args = append(args, "-e", k+"="+server.Env[k])
		}
		args = append(args, server.Name, "--", server.Command)
		return append(args, server.Args...)
	case Codex:
		if server.URL != "" {
			return nil
		}
		args := []string{"mcp", "add", server.Name, "--", server.Command}
		return append(args, server.Args...)
	}
	return nil
}

// RemoveServerArgs builds the argv for unregistering an MCP server.
func (a Agent) RemoveServerArgs(name string) []string {
	return []string{"mcp", "remove", name}
}

// GetServerArgs builds the argv for describing one MCP server.
func (a Agent) GetServerArgs(name string) []string {
	return []string{"mcp", "get", name}
}

// CommandLine joins the agent executable with an argv into the single
// line the command runner types at the hidden terminal.
func (a Agent) CommandLine(args []string) string {
	return strings.Join(append([]string{a.Executable()}, args...), " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
