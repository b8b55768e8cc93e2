package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skein-dev/skein/internal/agent"
	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/errors"
	"github.com/skein-dev/skein/internal/git"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/worktree"
)

// Manager orchestrates session lifecycle: it validates creation
// requests, provisions worktrees, spawns drivers and pollers, and keeps
// the persisted records consistent with the live process registry.
type Manager struct {
	cfg      *config.Config
	registry *Registry
	events   Events
	runner   *Runner

	mu          sync.Mutex
	watchers    map[string]*agent.ActivityWatcher
	lastServers map[string][]ServerStatus
}

// NewManager builds a manager around the persisted config and a live
// process registry. The shared command runner spawns lazily.
func NewManager(cfg *config.Config, registry *Registry, events Events) *Manager {
	return &Manager{
		cfg:         cfg,
		registry:    registry,
		events:      events,
		runner:      NewRunner(),
		watchers:    make(map[string]*agent.ActivityWatcher),
		lastServers: make(map[string][]ServerStatus),
	}
}

// CreateSession validates the request, provisions the working
// directory, persists the record, and spawns the session driver. It
// returns once the terminal process is running; attach progress is
// reported through events. Any failure after provisioning rolls the
// session back completely.
func (m *Manager) CreateSession(ctx context.Context, sc config.SessionConfig, name string) (*config.Session, error) {
	const op = errors.Op("session.Create")
	start := time.Now()

	ag, err := agent.FromName(sc.CodingAgent)
	if err != nil {
		return nil, err
	}
	sc.CodingAgent = string(ag)

	if sc.ProjectDirectory == "" {
		return nil, errors.E(op, errors.KindInvalid, "project directory is required")
	}
	if info, serr := os.Stat(sc.ProjectDirectory); serr != nil || !info.IsDir() {
		return nil, errors.E(op, errors.KindInvalid, fmt.Sprintf("project directory does not exist: %s", sc.ProjectDirectory))
	}
	if err := git.ValidateRepo(ctx, sc.ProjectDirectory); err != nil {
		return nil, err
	}

	if sc.SessionType == "" {
		sc.SessionType = config.SessionTypeWorktree
	}
	switch sc.SessionType {
	case config.SessionTypeWorktree, config.SessionTypeLocal:
	default:
		return nil, errors.E(op, errors.KindInvalid, fmt.Sprintf("unknown session type %q", sc.SessionType))
	}

	if sc.SessionType == config.SessionTypeWorktree {
		if sc.ParentBranch == "" {
			return nil, errors.E(op, errors.KindInvalid, "parent branch is required for worktree sessions")
		}
		if sc.BranchName != "" {
			if err := git.ValidateBranchName(sc.BranchName); err != nil {
				return nil, errors.E(op, errors.KindInvalid, err)
			}
			if git.BranchExists(ctx, sc.ProjectDirectory, sc.BranchName) {
				return nil, errors.BranchCollision(sc.BranchName)
			}
		}
	}

	number := m.cfg.NextSessionNumber()
	sess := config.Session{
		ID:          uuid.NewString(),
		Number:      number,
		Name:        name,
		Config:      sc,
		CreatedAt:   time.Now(),
		SessionUUID: uuid.NewString(),
	}
	if sess.Name == "" {
		sess.Name = fmt.Sprintf("%s #%d", filepath.Base(sc.ProjectDirectory), number)
	}

	if sc.SessionType == config.SessionTypeWorktree {
		path, branch, err := worktree.Provision(ctx, worktree.Request{
			ProjectDir:    sc.ProjectDirectory,
			ParentBranch:  sc.ParentBranch,
			SessionNumber: number,
			SessionUUID:   sess.SessionUUID,
			CustomName:    sc.BranchName,
			WorktreeRoot:  m.cfg.WorktreeRoot(),
		})
		if err != nil {
			return nil, err
		}
		sess.WorktreePath = path
		sess.GitBranch = branch
	} else {
		sess.WorktreePath = sc.ProjectDirectory
	}

	if ag == agent.Claude {
		if servers := m.cfg.GetMCPServers(); len(servers) > 0 {
			path, werr := agent.WriteMCPConfig(sess.ID, servers)
			if werr != nil {
				logger.Warn("Manager: [%s] MCP config generation failed: %v", sess.ID, werr)
			} else {
				sess.MCPConfigPath = path
			}
		}
	}

	m.cfg.AddSession(sess)
	m.cfg.SetLastSessionConfig(sc)
	if err := m.cfg.Save(); err != nil {
		m.rollbackCreate(ctx, &sess)
		return nil, errors.E(op, errors.KindConfig, err, "failed to persist session record")
	}

	drv := m.newDriver(&sess, false)
	if err := drv.Start(); err != nil {
		m.rollbackCreate(ctx, &sess)
		return nil, err
	}
	m.registry.SetDriver(sess.ID, drv)
	m.watchActivity(&sess)

	logger.Log("Manager: [%s] created session %q (%s) in %v", sess.ID, sess.Name, sc.SessionType, time.Since(start))
	m.events.emitCreated(sess)
	return &sess, nil
}

// rollbackCreate undoes a partially created session so no record
// survives without a matching process.
func (m *Manager) rollbackCreate(ctx context.Context, sess *config.Session) {
	logger.Warn("Manager: [%s] rolling back session creation", sess.ID)

	m.cfg.RemoveSession(sess.ID)
	if err := m.cfg.Save(); err != nil {
		logger.Warn("Manager: [%s] rollback save failed: %v", sess.ID, err)
	}
	if sess.IsWorktree() && sess.WorktreePath != "" {
		worktree.Teardown(ctx, sess.Config.ProjectDirectory, sess.WorktreePath, sess.GitBranch)
	}
	if sess.MCPConfigPath != "" {
		agent.RemoveMCPConfig(sess.ID)
	}
}

// ReopenSession restarts a persisted session's terminal, resuming the
// agent conversation. Reopening a session that is already running is a
// no-op returning the existing record.
func (m *Manager) ReopenSession(ctx context.Context, id string) (*config.Session, error) {
	sess := m.cfg.GetSession(id)
	if sess == nil {
		return nil, errors.SessionNotFound(id)
	}
	if m.registry.HasDriver(id) {
		logger.Log("Manager: [%s] reopen requested but session is already running", id)
		return sess, nil
	}

	ag, err := agent.FromName(sess.Config.CodingAgent)
	if err != nil {
		return nil, err
	}

	// The generated MCP config lives in the temp dir and may not have
	// survived a reboot; regenerate it before resuming.
	if ag == agent.Claude {
		if servers := m.cfg.GetMCPServers(); len(servers) > 0 {
			path, werr := agent.WriteMCPConfig(sess.ID, servers)
			if werr != nil {
				logger.Warn("Manager: [%s] MCP config regeneration failed: %v", sess.ID, werr)
			} else if sess.MCPConfigPath != path {
				sess.MCPConfigPath = path
				m.cfg.SetSessionMCPConfigPath(sess.ID, path)
				if serr := m.cfg.Save(); serr != nil {
					logger.Warn("Manager: [%s] failed to persist MCP config path: %v", sess.ID, serr)
				}
			}
		}
	}

	drv := m.newDriver(sess, true)
	if err := drv.Start(); err != nil {
		return nil, err
	}
	m.registry.SetDriver(sess.ID, drv)
	m.watchActivity(sess)

	logger.Log("Manager: [%s] reopened session %q", sess.ID, sess.Name)
	m.events.emitReopened(*sess)
	return sess, nil
}

// CloseSession kills a session's processes but keeps the persisted
// record so it can be reopened later. Closing a session that is not
// running is not an error.
func (m *Manager) CloseSession(id string) {
	drv, ok := m.registry.RemoveDriver(id)
	if !ok {
		return
	}
	m.stopAuxiliaries(id)
	drv.Kill()
	logger.Log("Manager: [%s] session closed, record kept", id)
}

// DeleteSession tears the session down completely: processes, worktree,
// branch, generated config, and the persisted record. Worktree and
// branch cleanup is best-effort, so deleting a session whose directory
// was already removed externally still succeeds.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	const op = errors.Op("session.Delete")

	sess := m.cfg.GetSession(id)
	if sess == nil {
		return errors.SessionNotFound(id)
	}

	if drv, ok := m.registry.RemoveDriver(id); ok {
		drv.Kill()
	}
	m.stopAuxiliaries(id)

	if sess.IsWorktree() {
		worktree.Teardown(ctx, sess.Config.ProjectDirectory, sess.WorktreePath, sess.GitBranch)
	}
	agent.RemoveMCPConfig(sess.ID)

	m.cfg.RemoveSession(id)
	if err := m.cfg.Save(); err != nil {
		return errors.E(op, errors.KindConfig, err, "failed to persist session removal")
	}

	m.mu.Lock()
	delete(m.lastServers, id)
	m.mu.Unlock()

	logger.Log("Manager: [%s] deleted session %q", id, sess.Name)
	m.events.emitDeleted(id)
	return nil
}

// RenameSession updates a session's display name.
func (m *Manager) RenameSession(id, newName string) error {
	const op = errors.Op("session.Rename")

	if strings.TrimSpace(newName) == "" {
		return errors.E(op, errors.KindInvalid, "session name cannot be empty")
	}
	if !m.cfg.RenameSession(id, newName) {
		return errors.SessionNotFound(id)
	}
	if err := m.cfg.Save(); err != nil {
		return errors.E(op, errors.KindConfig, err, "failed to persist rename")
	}
	return nil
}

// Session returns the persisted record for one session.
func (m *Manager) Session(id string) (*config.Session, error) {
	sess := m.cfg.GetSession(id)
	if sess == nil {
		return nil, errors.SessionNotFound(id)
	}
	return sess, nil
}

// Sessions returns all persisted session records.
func (m *Manager) Sessions() []config.Session {
	return m.cfg.GetSessions()
}

// IsRunning reports whether a session currently has a live terminal.
func (m *Manager) IsRunning(id string) bool {
	return m.registry.HasDriver(id)
}

// LoadPersisted announces the persisted sessions to event consumers.
// Called once at startup.
func (m *Manager) LoadPersisted() []config.Session {
	sessions := m.cfg.GetSessions()
	logger.Log("Manager: loaded %d persisted sessions", len(sessions))
	m.events.emitLoaded(sessions)
	return sessions
}

// WriteInput forwards raw input bytes to a session's terminal. Input
// for a session that is no longer running is silently dropped; a
// closed session receiving stale UI events is expected.
func (m *Manager) WriteInput(id string, p []byte) {
	drv, ok := m.registry.Driver(id)
	if !ok {
		return
	}
	if err := drv.WriteInput(p); err != nil {
		logger.Debug("Manager: [%s] input write failed: %v", id, err)
	}
}

// Resize adjusts a session terminal's dimensions. Silently ignored for
// sessions that are not running.
func (m *Manager) Resize(id string, cols, rows uint16) {
	drv, ok := m.registry.Driver(id)
	if !ok {
		return
	}
	if err := drv.Resize(cols, rows); err != nil {
		logger.Debug("Manager: [%s] resize failed: %v", id, err)
	}
}

// ListBranches returns the branches of a repository with the primary
// branch sorted first.
func (m *Manager) ListBranches(ctx context.Context, dir string) ([]string, error) {
	return git.ListBranches(ctx, dir)
}

// Settings returns the persisted terminal settings.
func (m *Manager) Settings() config.TerminalSettings {
	return m.cfg.GetTerminalSettings()
}

// SaveSettings replaces and persists the terminal settings.
func (m *Manager) SaveSettings(s config.TerminalSettings) error {
	m.cfg.SetTerminalSettings(s)
	if err := m.cfg.Save(); err != nil {
		return errors.E(errors.Op("settings.Save"), errors.KindConfig, err, "failed to persist settings")
	}
	return nil
}

// LastSessionConfig returns the most recently used session config for
// prepopulating the next creation request, or nil if none exists.
func (m *Manager) LastSessionConfig() *config.SessionConfig {
	return m.cfg.GetLastSessionConfig()
}

// ListServers returns the last known MCP server statuses for a session
// and triggers an asynchronous refresh. The refreshed set arrives via
// the servers-updated event.
func (m *Manager) ListServers(id string) []ServerStatus {
	if p, ok := m.registry.Poller(id); ok {
		p.Poll()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastServers[id]
}

// AddServer registers an MCP server with the agent CLI and persists it
// so future sessions include it.
func (m *Manager) AddServer(ctx context.Context, server config.MCPServerConfig) error {
	const op = errors.Op("mcp.AddServer")

	if server.Name == "" {
		return errors.E(op, errors.KindInvalid, "server name is required")
	}
	if server.Command == "" && server.URL == "" {
		return errors.E(op, errors.KindInvalid, "server needs a command or a URL")
	}
	for _, s := range m.cfg.GetMCPServers() {
		if s.Name == server.Name {
			return errors.E(op, errors.KindConflict, fmt.Sprintf("server %s is already configured", server.Name))
		}
	}

	ag := agent.Default()
	args := ag.AddServerArgs(server)
	if args == nil {
		return errors.E(op, errors.KindInvalid, fmt.Sprintf("%s cannot register this server shape", ag.DisplayName()))
	}

	out, err := m.runner.Run(ctx, m.runnerDir(), ag.CommandLine(args))
	if err != nil {
		return err
	}
	logger.Debug("Manager: mcp add %s: %s", server.Name, out)

	m.cfg.AddMCPServer(server)
	if err := m.cfg.Save(); err != nil {
		return errors.E(op, errors.KindConfig, err, "failed to persist server")
	}
	return nil
}

// RemoveServer unregisters an MCP server from the agent CLI and drops
// it from the persisted config.
func (m *Manager) RemoveServer(ctx context.Context, name string) error {
	const op = errors.Op("mcp.RemoveServer")

	found := false
	for _, s := range m.cfg.GetMCPServers() {
		if s.Name == name {
			found = true
			break
		}
	}
	if !found {
		return errors.E(op, errors.KindNotFound, fmt.Sprintf("server %s is not configured", name))
	}

	ag := agent.Default()
	out, err := m.runner.Run(ctx, m.runnerDir(), ag.CommandLine(ag.RemoveServerArgs(name)))
	if err != nil {
		return err
	}
	logger.Debug("Manager: mcp remove %s: %s", name, out)

	m.cfg.RemoveMCPServer(name)
	if err := m.cfg.Save(); err != nil {
		return errors.E(op, errors.KindConfig, err, "failed to persist server removal")
	}
	return nil
}

// GetServerDetails asks the agent CLI to describe one MCP server and
// parses the line-oriented response.
func (m *Manager) GetServerDetails(ctx context.Context, name string) ([]ServerDetail, error) {
	ag := agent.Default()
	out, err := m.runner.Run(ctx, m.runnerDir(), ag.CommandLine(ag.GetServerArgs(name)))
	if err != nil {
		return nil, err
	}
	return ParseServerDetails(out), nil
}

// Shutdown kills every live process the manager owns. Persisted
// records are untouched; sessions can be reopened on next start.
func (m *Manager) Shutdown() {
	for _, id := range m.registry.DriverIDs() {
		if drv, ok := m.registry.RemoveDriver(id); ok {
			drv.Kill()
		}
	}
	for _, id := range m.registry.PollerIDs() {
		if p, ok := m.registry.RemovePoller(id); ok {
			p.Stop()
		}
	}

	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*agent.ActivityWatcher)
	m.mu.Unlock()
	for _, w := range watchers {
		w.Stop()
	}

	m.runner.Shutdown()
	logger.Log("Manager: shutdown complete")
}

// newDriver assembles the driver config for a session record. The exit
// callback closes over the driver instance so a stale exit can be told
// apart from the current driver's.
func (m *Manager) newDriver(sess *config.Session, resume bool) *Driver {
	ag, _ := agent.FromName(sess.Config.CodingAgent)
	var drv *Driver
	drv = NewDriver(DriverConfig{
		SessionID: sess.ID,
		Dir:       sess.WorktreePath,
		Agent:     ag,
		Launch: agent.LaunchOptions{
			SessionUUID:     sess.SessionUUID,
			Resume:          resume,
			SkipPermissions: sess.Config.SkipPermissions,
			MCPConfigPath:   sess.MCPConfigPath,
		},
		SetupCommands: sess.Config.SetupCommands,
		OnOutput:      m.events.emitOutput,
		OnAttached:    m.handleAttached,
		OnAgentIdle:   m.events.emitAgentIdle,
		OnExit:        func(id string, err error) { m.handleExit(drv, id, err) },
	})
	return drv
}

// handleAttached runs when a session's agent launch line has been
// typed. It starts the status poller for agents that support one.
func (m *Manager) handleAttached(id string) {
	sess := m.cfg.GetSession(id)
	if sess != nil {
		ag, err := agent.FromName(sess.Config.CodingAgent)
		if err == nil && ag.SupportsStatusPolling() && !m.registry.HasPoller(id) {
			m.startPoller(id, sess.WorktreePath, ag)
		}
	}
	m.events.emitAttached(id)
}

// handleExit runs when a session's terminal process dies on its own.
// Deliberate close and delete remove the driver from the registry
// before killing, and a reopen replaces the entry, so the conditional
// removal makes stale exits from either path a no-op.
func (m *Manager) handleExit(drv *Driver, id string, err error) {
	if !m.registry.RemoveDriverIf(id, drv) {
		return
	}
	m.stopAuxiliaries(id)

	if err != nil {
		logger.Error("Manager: [%s] session failed during bring-up: %v", id, err)
		m.events.emitError(id, err)
		return
	}
	logger.Log("Manager: [%s] session process exited", id)
	m.events.emitExited(id)
}

func (m *Manager) startPoller(id, dir string, ag agent.Agent) {
	p := NewPoller(PollerConfig{
		SessionID: id,
		Dir:       dir,
		Command:   ag.StatusCommand(),
		OnServers: m.handleServers,
		Alive:     func() bool { return m.registry.HasPoller(id) },
	})
	if err := p.Start(); err != nil {
		logger.Warn("Manager: [%s] status poller failed to start: %v", id, err)
		return
	}
	m.registry.SetPoller(id, p)
}

func (m *Manager) handleServers(id string, servers []ServerStatus) {
	m.mu.Lock()
	m.lastServers[id] = servers
	m.mu.Unlock()
	m.events.emitServers(id, servers)
}

// watchActivity starts the transcript watcher that turns agent
// transcript writes into activity events for the UI.
func (m *Manager) watchActivity(sess *config.Session) {
	ag, err := agent.FromName(sess.Config.CodingAgent)
	if err != nil {
		return
	}
	id := sess.ID
	w := agent.WatchTranscript(ag.TranscriptDir(sess.WorktreePath), sess.SessionUUID, func() {
		m.events.emitAgentActivity(id)
	})
	if w == nil {
		return
	}
	m.mu.Lock()
	m.watchers[id] = w
	m.mu.Unlock()
}

// stopAuxiliaries stops the poller and transcript watcher for a
// session, if they exist.
func (m *Manager) stopAuxiliaries(id string) {
	if p, ok := m.registry.RemovePoller(id); ok {
		p.Stop()
	}
	m.mu.Lock()
	w := m.watchers[id]
	delete(m.watchers, id)
	m.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// runnerDir is the working directory for the shared command terminal.
// Agent server administration is user-scoped, so home is the right
// place to run it.
func (m *Manager) runnerDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}
