// Package config owns the persisted state of the session daemon: the
// session records, the most recently used session config, and terminal
// settings. The whole document is read, mutated, and written back as a
// unit; there is no incremental persistence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Config holds the persisted application state.
type Config struct {
	Sessions          []Session         `json:"sessions"`
	LastSessionConfig *SessionConfig    `json:"lastSessionConfig,omitempty"`
	TerminalSettings  TerminalSettings  `json:"terminalSettings"`
	MCPServers        []MCPServerConfig `json:"mcpServers,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// TerminalSettings holds shell display preferences plus the root directory
// under which all worktrees are created.
type TerminalSettings struct {
	FontFamily   string `json:"fontFamily,omitempty"`
	FontSize     int    `json:"fontSize,omitempty"`
	Scrollback   int    `json:"scrollback,omitempty"`
	Theme        string `json:"theme,omitempty"`
	WorktreeRoot string `json:"worktreeRoot,omitempty"`
}

// MCPServerConfig describes one MCP server to include in the generated
// per-session agent config file.
type MCPServerConfig struct {
	Name      string            `json:"name"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
}

// configDir returns the path to the config directory
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".skein"), nil
}

// configPath returns the path to the config file
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultWorktreeRoot returns the directory worktrees are created under
// when terminal settings don't override it.
func DefaultWorktreeRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skein-worktrees")
	}
	return filepath.Join(home, ".skein", "worktrees")
}

// Load reads the config from disk, or creates a new one if it doesn't exist
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Sessions: []Session{},
		filePath: path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Ensure slices are initialized (not nil) after unmarshaling.
	// This must happen before Validate() since Validate() only reads.
	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ensureInitialized ensures all slices are initialized (not nil).
//
// Thread-safety: NOT thread-safe; only called from Load() before the
// Config is shared across goroutines.
func (c *Config) ensureInitialized() {
	if c.Sessions == nil {
		c.Sessions = []Session{}
	}
}

// Validate checks that the config is internally consistent.
// This is a read-only operation - call ensureInitialized() first if needed.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seenIDs := make(map[string]bool)
	seenNumbers := make(map[int]bool)
	for _, sess := range c.Sessions {
		if sess.ID == "" {
			return fmt.Errorf("session with empty ID found")
		}
		if seenIDs[sess.ID] {
			return fmt.Errorf("duplicate session ID: %s", sess.ID)
		}
		seenIDs[sess.ID] = true

		if sess.Number <= 0 {
			return fmt.Errorf("session %s has invalid number %d", sess.ID, sess.Number)
		}
		if seenNumbers[sess.Number] {
			return fmt.Errorf("duplicate session number: %d", sess.Number)
		}
		seenNumbers[sess.Number] = true

		if sess.Config.ProjectDirectory == "" {
			return fmt.Errorf("session %s has empty project directory", sess.ID)
		}
		if sess.WorktreePath == "" {
			return fmt.Errorf("session %s has empty worktree path", sess.ID)
		}
		if sess.SessionUUID == "" {
			return fmt.Errorf("session %s has empty session UUID", sess.ID)
		}
	}

	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// WorktreeRoot returns the configured worktree root, falling back to the
// default under the user's home directory.
func (c *Config) WorktreeRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.TerminalSettings.WorktreeRoot != "" {
		return c.TerminalSettings.WorktreeRoot
	}
	return DefaultWorktreeRoot()
}

// GetTerminalSettings returns a copy of the current terminal settings
func (c *Config) GetTerminalSettings() TerminalSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TerminalSettings
}

// SetTerminalSettings replaces the terminal settings
func (c *Config) SetTerminalSettings(settings TerminalSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TerminalSettings = settings
}

// GetLastSessionConfig returns a copy of the most recently used session
// config, or nil if none has been recorded.
func (c *Config) GetLastSessionConfig() *SessionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.LastSessionConfig == nil {
		return nil
	}
	cfg := *c.LastSessionConfig
	cfg.SetupCommands = append([]string(nil), c.LastSessionConfig.SetupCommands...)
	return &cfg
}

// SetLastSessionConfig records the most recently used session config
func (c *Config) SetLastSessionConfig(cfg SessionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := cfg
	stored.SetupCommands = append([]string(nil), cfg.SetupCommands...)
	c.LastSessionConfig = &stored
}

// GetMCPServers returns a copy of the configured MCP servers
func (c *Config) GetMCPServers() []MCPServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	servers := make([]MCPServerConfig, len(c.MCPServers))
	copy(servers, c.MCPServers)
	return servers
}

// AddMCPServer adds an MCP server config. Returns false if a server with
// the same name already exists.
func (c *Config) AddMCPServer(server MCPServerConfig) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.MCPServers {
		if s.Name == server.Name {
			return false
		}
	}
	c.MCPServers = append(c.MCPServers, server)
	return true
}

// RemoveMCPServer removes an MCP server config by name.
// Returns true if the server was found and removed.
func (c *Config) RemoveMCPServer(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.MCPServers {
		if s.Name == name {
			c.MCPServers = append(c.MCPServers[:i], c.MCPServers[i+1:]...)
			return true
		}
	}
	return false
}
