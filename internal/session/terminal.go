package session

import (
	"github.com/skein-dev/skein/internal/term"
)

// terminal is the slice of term.Terminal this package uses. Drivers,
// pollers, and the runner all talk to terminals through it.
type terminal interface {
	Write(p []byte) error
	WriteLine(line string) error
	Resize(cols, rows uint16) error
	Kill()
	Done() <-chan struct{}
	Running() bool
	ExitErr() error
	Pid() int
}

// spawnTerminal starts terminal processes for this package. Tests swap
// it for a fake.
var spawnTerminal = func(opts term.Options, onOutput func([]byte)) (terminal, error) {
	return term.Start(opts, onOutput)
}
