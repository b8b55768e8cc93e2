package session

import (
	"regexp"
	"strings"
)

// ServerStatus is one named MCP server and whether the agent reports
// it connected.
type ServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// ServerDetail is one Key: value line of a server description.
type ServerDetail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// noServersSentinel is printed by the agent CLI when nothing is
// registered. It parses as an empty, valid server set.
const noServersSentinel = "No MCP servers configured"

// serverLineRegex matches one status line of the agent's MCP listing:
//
//	<name>: <details> (<transport>) - <status>
//
// Transport names are matched case-insensitively against the known
// set, which keeps prose lines containing parentheses from parsing as
// servers.
var serverLineRegex = regexp.MustCompile(`(?im)^\s*([^:\r\n]+):\s+(.*?)\((stdio|sse|https|http|streamable-http)\)\s*-\s*(.+)$`)

// connectedWordRegex matches the literal word for the connected state.
// Word boundaries keep "disconnected" from counting.
var connectedWordRegex = regexp.MustCompile(`(?i)\bconnected\b`)

// ansiRegex strips CSI color/mode sequences before parsing.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// ParseServerStatus scans accumulated terminal output for the agent's
// MCP server listing. Returns the parsed set and true when the buffer
// contained at least one status line or the no-servers sentinel;
// otherwise ok is false and the caller keeps accumulating. The
// returned set is a full replacement, never a delta: the agent always
// reprints its complete state, so later listings supersede earlier
// ones. When a name repeats in the buffer, the last occurrence wins.
func ParseServerStatus(buf string) ([]ServerStatus, bool) {
	clean := normalizeOutput(buf)

	if strings.Contains(clean, noServersSentinel) {
		return []ServerStatus{}, true
	}

	matches := serverLineRegex.FindAllStringSubmatch(clean, -1)
	if len(matches) == 0 {
		return nil, false
	}

	var servers []ServerStatus
	index := make(map[string]int)
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		connected := isConnected(m[0])
		if i, seen := index[name]; seen {
			servers[i].Connected = connected
			continue
		}
		index[name] = len(servers)
		servers = append(servers, ServerStatus{Name: name, Connected: connected})
	}

	if len(servers) == 0 {
		return nil, false
	}
	return servers, true
}

// isConnected implements the status-glyph rule: a line reports a
// connected server iff it carries the success glyph or the literal
// word "connected". Warning and failure glyphs fall through to false.
func isConnected(line string) bool {
	if strings.Contains(line, "✓") {
		return true
	}
	return connectedWordRegex.MatchString(line)
}

// ParseServerDetails splits a server description into ordered
// Key: value pairs. Lines without a ": " separator (headers, blank
// lines) are skipped.
func ParseServerDetails(text string) []ServerDetail {
	var details []ServerDetail
	for _, line := range strings.Split(normalizeOutput(text), "\n") {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		details = append(details, ServerDetail{Key: key, Value: strings.TrimSpace(value)})
	}
	return details
}

// normalizeOutput strips ANSI sequences and folds carriage returns so
// the line-oriented regexes see plain newline-separated text.
func normalizeOutput(s string) string {
	s = ansiRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
