// Package session multiplexes PTY-backed coding-agent sessions.
//
// # Overview
//
// Each session runs a shell under its own pseudo-terminal, usually
// inside an isolated git worktree, and brings a coding agent up in
// that shell. The pieces:
//
//   - Driver: per-session state machine that waits for shell
//     readiness, types the configured setup commands, then launches
//     the agent (StateSpawning through StateAttached, with StateFailed
//     for processes that die on the way up).
//   - Poller: per-session hidden terminal that periodically runs the
//     agent's MCP listing command and parses server connectivity.
//   - Runner: one shared hidden terminal for administrative one-shot
//     commands (register/remove/describe MCP servers).
//   - Registry: the live-process maps. A driver entry is the
//     authoritative "this session is running" signal.
//   - Manager: the orchestrator tying config persistence, worktree
//     provisioning, and the above together behind the operations the
//     server exposes.
//
// # Session lifecycle
//
// Create provisions a worktree (worktree sessions), persists the
// record, then spawns the driver. The driver's first launch passes
// --session-id <uuid>; every reopen after that passes --resume <uuid>,
// so the agent resumes the same conversation. Close kills processes
// but keeps the record; Delete also tears down the worktree and branch
// (best-effort) and removes the record.
package session
