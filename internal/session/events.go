package session

import (
	"github.com/skein-dev/skein/internal/config"
)

// Events carries the manager's outbound callbacks. Any field may be
// nil. Callbacks are invoked from manager methods and from per-session
// goroutines (PTY readers, pollers, watchers), so implementations must
// be safe for concurrent use and must not block for long.
type Events struct {
	// SessionOutput delivers raw terminal output, in read order, for
	// every state of a session's driver.
	SessionOutput func(sessionID string, chunk []byte)

	// SessionCreated fires after a session is persisted and its driver
	// spawned.
	SessionCreated func(sess config.Session)

	// SessionError reports a failed operation on a session, including
	// spawn failures that abort creation.
	SessionError func(sessionID string, err error)

	// SessionReopened fires after a closed session's driver is
	// respawned in resume mode.
	SessionReopened func(sess config.Session)

	// SessionDeleted fires after a session's record is removed.
	SessionDeleted func(sessionID string)

	// SessionAttached fires once per spawn when the driver reaches the
	// attached state with the agent running.
	SessionAttached func(sessionID string)

	// SessionExited fires when a live session's terminal process dies
	// without a close or delete asking it to.
	SessionExited func(sessionID string)

	// ServersUpdated replaces the session's MCP server status set.
	ServersUpdated func(sessionID string, servers []ServerStatus)

	// PersistedSessionsLoaded delivers the stored sessions once at
	// startup.
	PersistedSessionsLoaded func(sessions []config.Session)

	// AgentActivity fires when the agent's transcript grows, i.e. the
	// agent is producing conversation turns.
	AgentActivity func(sessionID string)

	// AgentIdle fires when the attached agent shows its bare input
	// prompt after producing output.
	AgentIdle func(sessionID string)
}

func (e *Events) emitOutput(sessionID string, chunk []byte) {
	if e.SessionOutput != nil {
		e.SessionOutput(sessionID, chunk)
	}
}

func (e *Events) emitCreated(sess config.Session) {
	if e.SessionCreated != nil {
		e.SessionCreated(sess)
	}
}

func (e *Events) emitError(sessionID string, err error) {
	if e.SessionError != nil {
		e.SessionError(sessionID, err)
	}
}

func (e *Events) emitReopened(sess config.Session) {
	if e.SessionReopened != nil {
		e.SessionReopened(sess)
	}
}

func (e *Events) emitDeleted(sessionID string) {
	if e.SessionDeleted != nil {
		e.SessionDeleted(sessionID)
	}
}

func (e *Events) emitAttached(sessionID string) {
	if e.SessionAttached != nil {
		e.SessionAttached(sessionID)
	}
}

func (e *Events) emitExited(sessionID string) {
	if e.SessionExited != nil {
		e.SessionExited(sessionID)
	}
}

func (e *Events) emitServers(sessionID string, servers []ServerStatus) {
	if e.ServersUpdated != nil {
		e.ServersUpdated(sessionID, servers)
	}
}

func (e *Events) emitLoaded(sessions []config.Session) {
	if e.PersistedSessionsLoaded != nil {
		e.PersistedSessionsLoaded(sessions)
	}
}

func (e *Events) emitAgentActivity(sessionID string) {
	if e.AgentActivity != nil {
		e.AgentActivity(sessionID)
	}
}

func (e *Events) emitAgentIdle(sessionID string) {
	if e.AgentIdle != nil {
		e.AgentIdle(sessionID)
	}
}
