package session

import (
	"fmt"
	"sync"

	"github.com/skein-dev/skein/internal/agent"
	"github.com/skein-dev/skein/internal/errors"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/term"
)

// State is a driver's position in the bring-up protocol.
type State int

const (
	// StateSpawning means the terminal process has started but
	// produced no output yet.
	StateSpawning State = iota
	// StateAwaitingReady means output is accumulating while the driver
	// waits for the shell readiness signal.
	StateAwaitingReady
	// StateRunningSetup means a setup command has been typed and the
	// driver is waiting for it to finish.
	StateRunningSetup
	// StateLaunchingAgent means the agent command line is being
	// composed and typed.
	StateLaunchingAgent
	// StateAttached means the agent is running; output streams until
	// the process dies. Terminal state of the bring-up protocol.
	StateAttached
	// StateFailed means the terminal process died before reaching
	// StateAttached, or never spawned at all.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateAwaitingReady:
		return "awaiting-ready"
	case StateRunningSetup:
		return "running-setup"
	case StateLaunchingAgent:
		return "launching-agent"
	case StateAttached:
		return "attached"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DriverConfig wires one session's driver.
type DriverConfig struct {
	SessionID string
	// Dir is the working directory for the shell, the session's
	// worktree or project directory.
	Dir   string
	Agent agent.Agent
	// Launch configures the agent command line typed once the shell is
	// ready and setup commands have run.
	Launch agent.LaunchOptions
	// SetupCommands are typed one at a time, each waiting for the
	// previous one's readiness signal.
	SetupCommands []string
	Cols, Rows    uint16

	// OnOutput receives every output chunk, in every state.
	OnOutput func(sessionID string, chunk []byte)
	// OnAttached fires once, when the agent launch line has been typed.
	OnAttached func(sessionID string)
	// OnAgentIdle fires when the attached agent shows a bare input
	// prompt.
	OnAgentIdle func(sessionID string)
	// OnExit fires when the terminal process dies. err is nil for a
	// death after attach and non-nil for one during bring-up.
	OnExit func(sessionID string, err error)
}

// Driver owns one session's terminal process and walks it from spawn
// to an attached agent.
type Driver struct {
	cfg DriverConfig

	mu    sync.Mutex
	state State
	term  terminal
	// buf accumulates all output; offset marks how far readiness
	// scanning has consumed it. Both only grow between spawns.
	buf    string
	offset int
	// agentOffset tracks agent-idle scanning after attach.
	agentOffset int
	nextSetup   int
}

// NewDriver builds a driver without side effects. Call Start to spawn.
func NewDriver(cfg DriverConfig) *Driver {
	return &Driver{cfg: cfg, state: StateSpawning}
}

// Start spawns the terminal process. On failure the driver lands in
// StateFailed and an error is returned; nothing was persisted or
// registered yet, so the caller rolls back session creation.
func (d *Driver) Start() error {
	logger.Log("Driver: [%s] spawning shell in %s", d.cfg.SessionID, d.cfg.Dir)

	t, err := spawnTerminal(term.Options{
		Dir:  d.cfg.Dir,
		Cols: d.cfg.Cols,
		Rows: d.cfg.Rows,
	}, d.handleOutput)
	if err != nil {
		d.mu.Lock()
		d.state = StateFailed
		d.mu.Unlock()
		logger.Error("Driver: [%s] spawn failed: %v", d.cfg.SessionID, err)
		return errors.SessionSpawnFailed(d.cfg.SessionID, err)
	}

	d.mu.Lock()
	d.term = t
	pending := d.buf != ""
	d.mu.Unlock()

	go d.watchExit(t)

	// Output that raced ahead of the handle assignment was buffered but
	// not scanned; scan it now so an early prompt is not missed.
	if pending {
		d.handleOutput(nil)
	}
	return nil
}

// handleOutput runs on the terminal's reader goroutine. Output is
// forwarded verbatim in every state; only the auto-typed commands are
// gated on readiness.
func (d *Driver) handleOutput(chunk []byte) {
	if len(chunk) > 0 && d.cfg.OnOutput != nil {
		d.cfg.OnOutput(d.cfg.SessionID, chunk)
	}

	var attached, idle bool

	d.mu.Lock()
	d.buf += string(chunk)
	if len(chunk) > 0 && d.state == StateSpawning {
		d.state = StateAwaitingReady
	}
	if d.term == nil {
		// Reader output can land before Start stores the handle; keep
		// accumulating, Start re-scans once the handle is in place.
		d.mu.Unlock()
		return
	}

	switch d.state {
	case StateAwaitingReady, StateRunningSetup:
		if term.ShellReady(d.buf, d.offset) {
			// Consume up to here so the next readiness signal comes
			// from the command we are about to type, not stale output.
			d.offset = len(d.buf)
			attached = d.advanceLocked()
		}
	case StateAttached:
		if term.AgentIdle(d.buf, d.agentOffset) {
			d.agentOffset = len(d.buf)
			idle = true
		}
	}
	d.mu.Unlock()

	if attached && d.cfg.OnAttached != nil {
		d.cfg.OnAttached(d.cfg.SessionID)
	}
	if idle && d.cfg.OnAgentIdle != nil {
		d.cfg.OnAgentIdle(d.cfg.SessionID)
	}
}

// advanceLocked types the next setup command, or the agent launch line
// once setup is exhausted. Returns true when the agent was launched.
func (d *Driver) advanceLocked() bool {
	if d.nextSetup < len(d.cfg.SetupCommands) {
		cmd := d.cfg.SetupCommands[d.nextSetup]
		d.nextSetup++
		d.state = StateRunningSetup
		logger.Debug("Driver: [%s] setup %d/%d: %s", d.cfg.SessionID, d.nextSetup, len(d.cfg.SetupCommands), cmd)
		if err := d.term.WriteLine(cmd); err != nil {
			logger.Warn("Driver: [%s] setup write failed: %v", d.cfg.SessionID, err)
		}
		return false
	}

	d.state = StateLaunchingAgent
	line := d.cfg.Agent.LaunchLine(d.cfg.Launch)
	logger.Info("Driver: [%s] launching agent: %s", d.cfg.SessionID, line)
	if err := d.term.WriteLine(line); err != nil {
		logger.Warn("Driver: [%s] agent launch write failed: %v", d.cfg.SessionID, err)
	}
	d.state = StateAttached
	d.agentOffset = len(d.buf)
	return true
}

func (d *Driver) watchExit(t terminal) {
	<-t.Done()

	d.mu.Lock()
	wasAttached := d.state == StateAttached
	if !wasAttached {
		d.state = StateFailed
	}
	d.mu.Unlock()

	if d.cfg.OnExit == nil {
		return
	}
	if wasAttached {
		d.cfg.OnExit(d.cfg.SessionID, nil)
		return
	}
	err := t.ExitErr()
	d.cfg.OnExit(d.cfg.SessionID,
		errors.E(errors.Op("session.Driver"), errors.KindSpawn, err, "terminal exited during session startup"))
}

// State returns the driver's current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// WriteInput forwards raw user input to the terminal. Input sent
// before the spawn completes is dropped.
func (d *Driver) WriteInput(p []byte) error {
	d.mu.Lock()
	t := d.term
	d.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Write(p)
}

// Resize forwards a window resize. Legal in any state.
func (d *Driver) Resize(cols, rows uint16) error {
	d.mu.Lock()
	t := d.term
	d.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Resize(cols, rows)
}

// Kill terminates the terminal process regardless of state. The caller
// owns removing the driver from the registry.
func (d *Driver) Kill() {
	d.mu.Lock()
	t := d.term
	d.mu.Unlock()
	if t != nil {
		t.Kill()
	}
}

// Running reports whether the terminal process is alive.
func (d *Driver) Running() bool {
	d.mu.Lock()
	t := d.term
	d.mu.Unlock()
	return t != nil && t.Running()
}

// Pid returns the terminal process id, or 0 before spawn.
func (d *Driver) Pid() int {
	d.mu.Lock()
	t := d.term
	d.mu.Unlock()
	if t == nil {
		return 0
	}
	return t.Pid()
}
