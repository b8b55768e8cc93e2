package session

import (
	"sync"
	"time"

	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/term"
)

const (
	// defaultSettleDelay gives the hidden shell time to initialize
	// before the first status command.
	defaultSettleDelay = 2 * time.Second
	// defaultPollInterval is the gap between status listings.
	defaultPollInterval = 60 * time.Second
)

// PollerConfig wires one session's status poller.
type PollerConfig struct {
	SessionID string
	// Dir is the session's working directory; MCP scope depends on it.
	Dir string
	// Command is the status-listing command typed each cycle.
	Command string
	// OnServers receives each freshly parsed replacement set.
	OnServers func(sessionID string, servers []ServerStatus)
	// Alive reports whether this poller is still registered. Checked
	// before each scheduled write; a deregistered poller stops.
	Alive func() bool

	// Settle and Interval override the defaults when non-zero.
	Settle   time.Duration
	Interval time.Duration
}

// Poller maintains a best-effort view of the agent's MCP servers by
// periodically typing a listing command into a hidden terminal and
// parsing whatever arrives. Raw output never reaches the user.
type Poller struct {
	cfg PollerConfig

	mu   sync.Mutex
	term terminal
	buf  string
	// echoMark is the buffer offset where the last issued command's
	// echo begins; issued gates the prompt-reappearance buffer reset.
	echoMark int
	issued   bool

	pollNow  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPoller builds a poller without side effects. Call Start to spawn
// its terminal.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Settle == 0 {
		cfg.Settle = defaultSettleDelay
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultPollInterval
	}
	return &Poller{
		cfg:     cfg,
		pollNow: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start spawns the hidden terminal and begins the polling loop.
func (p *Poller) Start() error {
	t, err := spawnTerminal(term.Options{Dir: p.cfg.Dir}, p.handleOutput)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.term = t
	p.mu.Unlock()

	logger.Log("Poller: [%s] started in %s", p.cfg.SessionID, p.cfg.Dir)
	go p.loop(t)
	return nil
}

func (p *Poller) loop(t terminal) {
	select {
	case <-time.After(p.cfg.Settle):
	case <-p.stop:
		return
	case <-t.Done():
		return
	}

	p.issue()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.issue()
		case <-p.pollNow:
			p.issue()
		case <-p.stop:
			return
		case <-t.Done():
			logger.Debug("Poller: [%s] terminal died, loop ending", p.cfg.SessionID)
			return
		}
	}
}

// issue types the status command. Fire-and-forget: results arrive
// asynchronously through handleOutput.
func (p *Poller) issue() {
	if p.cfg.Alive != nil && !p.cfg.Alive() {
		logger.Debug("Poller: [%s] deregistered, stopping", p.cfg.SessionID)
		p.Stop()
		return
	}

	p.mu.Lock()
	p.echoMark = len(p.buf)
	p.issued = true
	t := p.term
	p.mu.Unlock()

	logger.Debug("Poller: [%s] issuing: %s", p.cfg.SessionID, p.cfg.Command)
	if err := t.WriteLine(p.cfg.Command); err != nil {
		logger.Warn("Poller: [%s] status write failed: %v", p.cfg.SessionID, err)
	}
}

func (p *Poller) handleOutput(chunk []byte) {
	var servers []ServerStatus
	var emit bool

	p.mu.Lock()
	p.buf += string(chunk)

	if s, ok := ParseServerStatus(p.buf); ok {
		servers, emit = s, true
	}

	// Once the prompt reappears after the command echo, the listing is
	// complete; clear the buffer so it cannot grow without bound or
	// re-match stale lines next cycle.
	if p.issued && term.ShellReady(p.buf, p.echoMark+len(p.cfg.Command)) {
		p.buf = ""
		p.echoMark = 0
		p.issued = false
	}
	p.mu.Unlock()

	if emit && p.cfg.OnServers != nil {
		p.cfg.OnServers(p.cfg.SessionID, servers)
	}
}

// Poll forces an immediate out-of-cycle status listing.
func (p *Poller) Poll() {
	select {
	case p.pollNow <- struct{}{}:
	default:
	}
}

// Stop ends the loop and kills the hidden terminal. Idempotent.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	t := p.term
	p.mu.Unlock()
	if t != nil {
		t.Kill()
	}
}
