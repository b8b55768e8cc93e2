package config

import (
	"time"
)

// SessionType selects how a session's working directory is provisioned.
type SessionType string

const (
	// SessionTypeWorktree provisions an isolated git worktree on a new branch.
	SessionTypeWorktree SessionType = "worktree"
	// SessionTypeLocal runs directly in the project directory.
	SessionTypeLocal SessionType = "local"
)

// SessionConfig is the immutable per-session configuration supplied at
// creation time.
type SessionConfig struct {
	ProjectDirectory string      `json:"projectDirectory"`
	SessionType      SessionType `json:"sessionType"`
	ParentBranch     string      `json:"parentBranch,omitempty"`
	BranchName       string      `json:"branchName,omitempty"`
	CodingAgent      string      `json:"codingAgent"`
	SkipPermissions  bool        `json:"skipPermissions,omitempty"`
	SetupCommands    []string    `json:"setupCommands,omitempty"`
}

// Session is the durable record for one session. It survives daemon
// restarts; whether the session is currently running is tracked separately
// by the in-memory registry.
type Session struct {
	ID            string        `json:"id"`
	Number        int           `json:"number"`
	Name          string        `json:"name"`
	Config        SessionConfig `json:"config"`
	WorktreePath  string        `json:"worktreePath"`
	CreatedAt     time.Time     `json:"createdAt"`
	SessionUUID   string        `json:"sessionUuid"`
	GitBranch     string        `json:"gitBranch,omitempty"`
	MCPConfigPath string        `json:"mcpConfigPath,omitempty"`
}

// IsWorktree reports whether this session runs in an isolated worktree.
func (s *Session) IsWorktree() bool {
	return s.Config.SessionType == SessionTypeWorktree
}

// AddSession adds a new session record
func (c *Config) AddSession(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Sessions = append(c.Sessions, session)
}

// RemoveSession removes a session by ID
func (c *Config) RemoveSession(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.Sessions {
		if s.ID == id {
			c.Sessions = append(c.Sessions[:i], c.Sessions[i+1:]...)
			return true
		}
	}
	return false
}

// ClearSessions removes all session records
func (c *Config) ClearSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sessions = []Session{}
}

// GetSession returns a copy of a session by ID.
// Returns nil if no session with the given ID exists.
func (c *Config) GetSession(id string) *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.Sessions {
		if c.Sessions[i].ID == id {
			sess := c.Sessions[i] // copy
			return &sess
		}
	}
	return nil
}

// GetSessions returns a copy of the sessions slice
func (c *Config) GetSessions() []Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sessions := make([]Session, len(c.Sessions))
	copy(sessions, c.Sessions)
	return sessions
}

// NextSessionNumber returns max(existing numbers)+1, or 1 when no sessions
// exist. Gaps left by deleted sessions are never reused.
func (c *Config) NextSessionNumber() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	max := 0
	for _, s := range c.Sessions {
		if s.Number > max {
			max = s.Number
		}
	}
	return max + 1
}

// RenameSession updates the display name of a session.
// Returns false if the session was not found.
func (c *Config) RenameSession(sessionID, newName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Sessions {
		if c.Sessions[i].ID == sessionID {
			c.Sessions[i].Name = newName
			return true
		}
	}
	return false
}

// SetSessionMCPConfigPath records the generated MCP config file path for a
// session. Returns false if the session was not found.
func (c *Config) SetSessionMCPConfigPath(sessionID, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.Sessions {
		if c.Sessions[i].ID == sessionID {
			c.Sessions[i].MCPConfigPath = path
			return true
		}
	}
	return false
}
