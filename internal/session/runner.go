package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/skein-dev/skein/internal/errors"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/term"
)

const (
	// defaultRunnerTimeout bounds how long a command may run before
	// the caller gets a timeout error.
	defaultRunnerTimeout = 10 * time.Second
	// runnerStartupWait bounds the wait for the fresh shell's first
	// prompt; some shells never print a recognizable one.
	runnerStartupWait = 5 * time.Second
)

// Runner executes one-shot CLI commands inside a single shared hidden
// terminal, so they inherit the same shell environment an interactive
// user would have. Commands are serialized; the terminal is spawned
// lazily on first use and reused across calls.
type Runner struct {
	// runMu serializes Run so concurrent callers cannot interleave
	// their output in the shared terminal.
	runMu sync.Mutex

	mu     sync.Mutex
	term   terminal
	buf    string
	notify chan struct{}

	timeout time.Duration
}

// NewRunner builds a runner with the default timeout. No terminal is
// spawned until the first Run.
func NewRunner() *Runner {
	return &Runner{
		notify:  make(chan struct{}, 1),
		timeout: defaultRunnerTimeout,
	}
}

// Run types commandLine into the shared terminal and waits for the
// shell prompt to come back, returning the output between the command
// echo and the prompt. On timeout the terminal is left running so a
// slow command can still finish in the background.
func (r *Runner) Run(ctx context.Context, dir, commandLine string) (string, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if err := r.ensureTerminal(ctx, dir); err != nil {
		return "", err
	}

	r.mu.Lock()
	mark := len(r.buf)
	t := r.term
	r.mu.Unlock()

	logger.Debug("Runner: %s", commandLine)
	if err := t.WriteLine(commandLine); err != nil {
		return "", errors.E(errors.Op("session.Runner"), errors.KindIO, err, "failed to write command to terminal")
	}

	// Scan for the prompt past the command echo, so prompt-like
	// characters inside the command itself cannot end the wait early.
	scanFrom := mark + len(commandLine)
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		buf := r.buf
		r.mu.Unlock()

		if term.ShellReady(buf, scanFrom) {
			r.mu.Lock()
			raw := r.buf[mark:]
			r.buf = ""
			r.mu.Unlock()
			return stripCommandEdges(raw), nil
		}

		select {
		case <-r.notify:
		case <-deadline.C:
			logger.Warn("Runner: timed out waiting for: %s", commandLine)
			return "", errors.RunnerTimeout(commandLine)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// ensureTerminal spawns the shared terminal if it is missing or dead,
// then waits briefly for its first prompt so the prompt detected by
// Run belongs to the command, not to shell startup.
func (r *Runner) ensureTerminal(ctx context.Context, dir string) error {
	r.mu.Lock()
	t := r.term
	r.mu.Unlock()
	if t != nil && t.Running() {
		return nil
	}

	logger.Log("Runner: spawning shared terminal in %s", dir)

	// Reset before spawning: the new terminal's output starts arriving
	// the moment the spawn returns, and must not be wiped.
	r.mu.Lock()
	r.term = nil
	r.buf = ""
	r.mu.Unlock()

	nt, err := spawnTerminal(term.Options{Dir: dir}, r.handleOutput)
	if err != nil {
		return errors.E(errors.Op("session.Runner"), errors.KindSpawn, err, "failed to start command terminal")
	}

	r.mu.Lock()
	r.term = nt
	r.mu.Unlock()

	settle := time.NewTimer(runnerStartupWait)
	defer settle.Stop()
	for {
		r.mu.Lock()
		buf := r.buf
		r.mu.Unlock()

		if term.ShellReady(buf, 0) {
			r.mu.Lock()
			r.buf = ""
			r.mu.Unlock()
			return nil
		}

		select {
		case <-r.notify:
		case <-settle.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) handleOutput(chunk []byte) {
	r.mu.Lock()
	r.buf += string(chunk)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Shutdown kills the shared terminal if one was ever spawned.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	t := r.term
	r.term = nil
	r.mu.Unlock()
	if t != nil {
		t.Kill()
	}
}

// stripCommandEdges drops the first line (the command echo) and the
// last line (the returned prompt) from a captured region.
func stripCommandEdges(raw string) string {
	clean := strings.ReplaceAll(raw, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\r", "\n")
	lines := strings.Split(clean, "\n")
	if len(lines) <= 2 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}
