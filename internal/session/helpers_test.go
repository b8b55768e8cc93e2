package session

import (
	"sync"
	"testing"
	"time"

	"github.com/skein-dev/skein/internal/term"
)

// fakeTerminal stands in for a PTY. Tests feed output through the
// spawner's captured callback and inspect what was written back.
type fakeTerminal struct {
	mu      sync.Mutex
	lines   []string
	raw     []byte
	resizes [][2]uint16
	killed  bool
	exitErr error

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeTerminal() *fakeTerminal {
	return &fakeTerminal{done: make(chan struct{})}
}

func (f *fakeTerminal) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, p...)
	return nil
}

func (f *fakeTerminal) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeTerminal) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, [2]uint16{cols, rows})
	return nil
}

func (f *fakeTerminal) Kill() {
	f.mu.Lock()
	f.killed = true
	f.mu.Unlock()
	f.exit(nil)
}

func (f *fakeTerminal) Done() <-chan struct{} { return f.done }

func (f *fakeTerminal) Running() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

func (f *fakeTerminal) ExitErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitErr
}

func (f *fakeTerminal) Pid() int { return 4242 }

// exit simulates the terminal process dying.
func (f *fakeTerminal) exit(err error) {
	f.mu.Lock()
	f.exitErr = err
	f.mu.Unlock()
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeTerminal) writtenLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeTerminal) writtenRaw() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.raw...)
}

func (f *fakeTerminal) resizeCalls() [][2]uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]uint16(nil), f.resizes...)
}

func (f *fakeTerminal) wasKilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

// spawnRecord pairs a spawned fake terminal with the output callback
// the spawning component registered for it.
type spawnRecord struct {
	term *fakeTerminal
	opts term.Options
	feed func([]byte)
}

// fakeSpawner replaces the package spawner, handing out a fresh fake
// terminal per spawn. Setting err makes spawns fail.
type fakeSpawner struct {
	mu     sync.Mutex
	spawns []spawnRecord
	err    error
}

func installFakeSpawner(t *testing.T) *fakeSpawner {
	t.Helper()
	s := &fakeSpawner{}
	orig := spawnTerminal
	spawnTerminal = func(opts term.Options, onOutput func([]byte)) (terminal, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		ft := newFakeTerminal()
		s.spawns = append(s.spawns, spawnRecord{term: ft, opts: opts, feed: onOutput})
		return ft, nil
	}
	t.Cleanup(func() { spawnTerminal = orig })
	return s
}

func (s *fakeSpawner) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawns)
}

// spawn returns the i-th spawn, waiting briefly for it to happen.
func (s *fakeSpawner) spawn(t *testing.T, i int) spawnRecord {
	t.Helper()
	waitFor(t, func() bool { return s.count() > i })
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns[i]
}

// feedString pushes terminal output into the i-th spawn's component.
func (s *fakeSpawner) feedString(t *testing.T, i int, out string) {
	t.Helper()
	rec := s.spawn(t, i)
	rec.feed([]byte(out))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
