package exec

import (
	"context"
	"sync"
)

// MockResponse is the canned result a MockExecutor returns for a command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// MockCall records one command invocation seen by a MockExecutor.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

type mockRule struct {
	match func(dir, name string, args []string) bool
	resp  MockResponse
}

// MockExecutor is a CommandExecutor for tests. Rules are checked in the
// order they were added; the first match wins. Unmatched commands succeed
// with the default response (empty output unless one was supplied).
type MockExecutor struct {
	mu    sync.Mutex
	def   MockResponse
	rules []mockRule
	calls []MockCall
}

// NewMockExecutor creates a mock executor. A nil default means unmatched
// commands return empty output and no error.
func NewMockExecutor(def *MockResponse) *MockExecutor {
	m := &MockExecutor{}
	if def != nil {
		m.def = *def
	}
	return m
}

// AddRule registers a matcher with the response to return when it fires.
func (m *MockExecutor) AddRule(match func(dir, name string, args []string) bool, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, resp: resp})
}

// AddPrefixMatch registers a rule matching a command name whose arguments
// start with the given prefix.
func (m *MockExecutor) AddPrefixMatch(name string, argPrefix []string, resp MockResponse) {
	m.AddRule(func(_, n string, args []string) bool {
		if n != name || len(args) < len(argPrefix) {
			return false
		}
		for i, p := range argPrefix {
			if args[i] != p {
				return false
			}
		}
		return true
	}, resp)
}

// Calls returns a copy of every invocation recorded so far.
func (m *MockExecutor) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls but keeps registered rules.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockExecutor) respond(dir, name string, args []string) MockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	argsCopy := make([]string, len(args))
	copy(argsCopy, args)
	m.calls = append(m.calls, MockCall{Dir: dir, Name: name, Args: argsCopy})

	for _, r := range m.rules {
		if r.match(dir, name, args) {
			return r.resp
		}
	}
	return m.def
}

func (m *MockExecutor) Run(_ context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	resp := m.respond(dir, name, args)
	return resp.Stdout, resp.Stderr, resp.Err
}

func (m *MockExecutor) Output(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	resp := m.respond(dir, name, args)
	return resp.Stdout, resp.Err
}

func (m *MockExecutor) CombinedOutput(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	resp := m.respond(dir, name, args)
	out := append([]byte{}, resp.Stdout...)
	out = append(out, resp.Stderr...)
	return out, resp.Err
}

var _ CommandExecutor = (*MockExecutor)(nil)
