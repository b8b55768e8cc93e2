package term

import (
	"regexp"
	"strings"
)

// bracketedPasteEnable is emitted by modern interactive shells once
// they are fully initialized and accepting input. ESC[?2004h.
const bracketedPasteEnable = "\x1b[?2004h"

// promptTokens are common shell prompt fragments searched as
// substrings when the bracketed-paste signal is absent.
var promptTokens = []string{"$ ", "% ", "> ", "❯", "➜", "✗", "✘"}

// promptTails are prompt characters accepted at the very end of the
// buffer after trailing whitespace is trimmed.
var promptTails = []string{"$", "%", ">", "❯", "➜"}

// agentIdleRegex matches a bare agent REPL prompt sitting on its own
// line. The prompt character also appears mid-stream in agent output,
// so only a "> " with nothing after it on the line counts.
var agentIdleRegex = regexp.MustCompile(`(^|\n)> *(\r?\n|$)`)

// ShellReady reports whether buf[offset:] shows a shell that will
// accept the next line of input. The primary signal is the
// bracketed-paste-enable sequence; prompt tokens are the fallback for
// shells that never emit it.
//
// The function is pure: it never consumes input. Callers track the
// offset themselves and advance it past matched content, otherwise the
// same marker fires twice.
func ShellReady(buf string, offset int) bool {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(buf) {
		return false
	}
	region := buf[offset:]

	if strings.Contains(region, bracketedPasteEnable) {
		return true
	}

	for _, token := range promptTokens {
		if strings.Contains(region, token) {
			return true
		}
	}

	tail := strings.TrimSpace(region)
	for _, t := range promptTails {
		if strings.HasSuffix(tail, t) {
			return true
		}
	}

	return false
}

// AgentIdle reports whether buf[offset:] shows an interactive coding
// agent sitting at its own idle input prompt. Deliberately narrower
// than ShellReady: a "> " inside a streaming response does not match,
// only a bare prompt line does.
func AgentIdle(buf string, offset int) bool {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(buf) {
		return false
	}
	return agentIdleRegex.MatchString(buf[offset:])
}
