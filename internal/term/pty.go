// Package term wraps pseudo-terminal processes and the output
// heuristics that decide when they are ready for input.
package term

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/skein-dev/skein/internal/errors"
	"github.com/skein-dev/skein/internal/logger"
)

const (
	defaultCols uint16 = 80
	defaultRows uint16 = 24

	readBufSize = 4096
)

// Options configures a new terminal process.
type Options struct {
	// Dir is the working directory for the shell.
	Dir string
	// Shell overrides the command to run. Defaults to $SHELL, falling
	// back to /bin/bash.
	Shell string
	// Env entries appended to the inherited environment.
	Env []string
	// Initial window size. Zero values use 80x24.
	Cols, Rows uint16
}

// Terminal is one live pseudo-terminal process. Output is delivered to
// the OnOutput callback from a single reader goroutine, in read order.
type Terminal struct {
	mu      sync.Mutex
	ptmx    *os.File
	cmd     *exec.Cmd
	exitErr error
	killed  bool

	done chan struct{}
}

// Start launches a shell under a new pseudo-terminal. onOutput is
// invoked for every output chunk until the process exits; it must not
// block for long, since it runs on the terminal's only reader
// goroutine.
func Start(opts Options, onOutput func([]byte)) (*Terminal, error) {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell)
	cmd.Dir = opts.Dir
	cmd.Env = append(append(os.Environ(), "TERM=xterm-256color"), opts.Env...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.E(errors.Op("term.Start"), errors.KindSpawn, err, "failed to start terminal process")
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		logger.Warn("Term: initial resize failed: %v", err)
	}

	t := &Terminal{
		ptmx: ptmx,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go t.readLoop(onOutput)
	go t.waitLoop()

	return t, nil
}

func (t *Terminal) readLoop(onOutput func([]byte)) {
	buf := make([]byte, readBufSize)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 && onOutput != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			onOutput(data)
		}
		if err != nil {
			// PTY closed or process died; waitLoop owns the cleanup.
			return
		}
	}
}

func (t *Terminal) waitLoop() {
	err := t.cmd.Wait()

	t.mu.Lock()
	t.exitErr = err
	t.ptmx.Close()
	t.mu.Unlock()

	close(t.done)
}

// Write sends raw bytes to the terminal.
func (t *Terminal) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.ptmx.Write(p)
	return err
}

// WriteLine sends a command line terminated with a carriage return,
// the byte an interactive shell expects from the Enter key.
func (t *Terminal) WriteLine(line string) error {
	return t.Write([]byte(line + "\r"))
}

// Resize updates the terminal window size. Allowed in any state.
func (t *Terminal) Resize(cols, rows uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pty.Setsize(t.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Kill terminates the terminal process immediately. Idempotent; safe
// to call after the process has already exited.
func (t *Terminal) Kill() {
	t.mu.Lock()
	if t.killed {
		t.mu.Unlock()
		return
	}
	t.killed = true
	t.mu.Unlock()

	if t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil {
			logger.Debug("Term: kill: %v", err)
		}
	}
}

// Done is closed once the terminal process has exited and its PTY has
// been released.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the terminal process is still alive.
func (t *Terminal) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the process exit error, valid once Done is closed.
func (t *Terminal) ExitErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitErr
}

// Pid returns the terminal process id, or 0 if unavailable.
func (t *Terminal) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}
