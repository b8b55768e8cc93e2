package agent

import (
	"strings"
	"testing"

	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/errors"
)

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Agent
		wantErr bool
	}{
		{name: "claude", input: "claude", want: Claude},
		{name: "codex", input: "codex", want: Codex},
		{name: "empty uses default", input: "", want: Claude},
		{name: "unknown rejected", input: "aider", wantErr: true},
		{name: "case sensitive", input: "Claude", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FromName(%q) expected error", tt.input)
				}
				if !errors.Is(err, errors.KindInvalid) {
					t.Errorf("FromName(%q) error kind = %v, want KindInvalid", tt.input, errors.GetKind(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("FromName(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("FromName(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLaunchArgs(t *testing.T) {
	tests := []struct {
		name  string
		agent Agent
		opts  LaunchOptions
		want  string
	}{
		{
			name:  "claude first spawn",
			agent: Claude,
			opts:  LaunchOptions{SessionUUID: "uuid-1"},
			want:  "--session-id uuid-1",
		},
		{
			name:  "claude reopen",
			agent: Claude,
			opts:  LaunchOptions{SessionUUID: "uuid-1", Resume: true},
			want:  "--resume uuid-1",
		},
		{
			name:  "claude skip permissions",
			agent: Claude,
			opts:  LaunchOptions{SessionUUID: "uuid-1", SkipPermissions: true},
			want:  "--session-id uuid-1 --dangerously-skip-permissions",
		},
		{
			name:  "claude with mcp config",
			agent: Claude,
			opts:  LaunchOptions{SessionUUID: "uuid-1", MCPConfigPath: "/tmp/mcp.json"},
			want:  "--session-id uuid-1 --mcp-config /tmp/mcp.json",
		},
		{
			name:  "claude everything",
			agent: Claude,
			opts:  LaunchOptions{SessionUUID: "uuid-1", Resume: true, SkipPermissions: true, MCPConfigPath: "/tmp/mcp.json"},
			want:  "--resume uuid-1 --dangerously-skip-permissions --mcp-config /tmp/mcp.json",
		},
		{
			name:  "codex skip permissions",
			agent: Codex,
			opts:  LaunchOptions{SessionUUID: "uuid-2", SkipPermissions: true},
			want:  "--session-id uuid-2 --dangerously-bypass-approvals-and-sandbox",
		},
		{
			name:  "codex ignores mcp config path",
			agent: Codex,
			opts:  LaunchOptions{SessionUUID: "uuid-2", MCPConfigPath: "/tmp/mcp.json"},
			want:  "--session-id uuid-2",
		},
		{
			name:  "no uuid yields no flags",
			agent: Claude,
			opts:  LaunchOptions{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(tt.agent.LaunchArgs(tt.opts), " ")
			if got != tt.want {
				t.Errorf("LaunchArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLaunchLine(t *testing.T) {
	line := Claude.LaunchLine(LaunchOptions{SessionUUID: "abc", SkipPermissions: true})
	want := "claude --session-id abc --dangerously-skip-permissions"
	if line != want {
		t.Errorf("LaunchLine() = %q, want %q", line, want)
	}

	bare := Codex.LaunchLine(LaunchOptions{})
	if bare != "codex" {
		t.Errorf("LaunchLine() = %q, want %q", bare, "codex")
	}
}

func TestStatusPolling(t *testing.T) {
	if !Claude.SupportsStatusPolling() {
		t.Error("Claude should support status polling")
	}
	if got := Claude.StatusCommand(); got != "claude mcp list" {
		t.Errorf("Claude.StatusCommand() = %q", got)
	}
	if Codex.SupportsStatusPolling() {
		t.Error("Codex should not support status polling")
	}
	if got := Codex.StatusCommand(); got != "" {
		t.Errorf("Codex.StatusCommand() = %q, want empty", got)
	}
}

func TestAddServerArgs(t *testing.T) {
	tests := []struct {
		name   string
		agent  Agent
		server config.MCPServerConfig
		want   string
	}{
		{
			name:   "claude local command",
			agent:  Claude,
			server: config.MCPServerConfig{Name: "files", Command: "mcp-files", Args: []string{"--root", "/tmp"}},
			want:   "mcp add files -- mcp-files --root /tmp",
		},
		{
			name:  "claude local with env sorted",
			agent: Claude,
			server: config.MCPServerConfig{
				Name:    "db",
				Command: "mcp-db",
				Env:     map[string]string{"ZED": "1", "API_KEY": "secret"},
			},
			want: "mcp add -e API_KEY=secret -e ZED=1 db -- mcp-db",
		},
		{
			name:   "claude url default transport",
			agent:  Claude,
			server: config.MCPServerConfig{Name: "remote", URL: "https://mcp.example.com/sse"},
			want:   "mcp add --transport sse remote https://mcp.example.com/sse",
		},
		{
			name:   "claude url explicit transport",
			agent:  Claude,
			server: config.MCPServerConfig{Name: "remote", URL: "https://mcp.example.com", Transport: "http"},
			want:   "mcp add --transport http remote https://mcp.example.com",
		},
		{
			name:   "codex local command",
			agent:  Codex,
			server: config.MCPServerConfig{Name: "files", Command: "mcp-files", Args: []string{"--root", "/tmp"}},
			want:   "mcp add files -- mcp-files --root /tmp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(tt.agent.AddServerArgs(tt.server), " ")
			if got != tt.want {
				t.Errorf("AddServerArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddServerArgs_CodexRejectsURL(t *testing.T) {
	args := Codex.AddServerArgs(config.MCPServerConfig{Name: "remote", URL: "https://mcp.example.com"})
	if args != nil {
		t.Errorf("Codex.AddServerArgs() = %v, want nil for URL server", args)
	}
}

func TestServerManagementArgs(t *testing.T) {
	if got := strings.Join(Claude.RemoveServerArgs("files"), " "); got != "mcp remove files" {
		t.Errorf("RemoveServerArgs() = %q", got)
	}
	if got := strings.Join(Claude.GetServerArgs("files"), " "); got != "mcp get files" {
		t.Errorf("GetServerArgs() = %q", got)
	}
}

func TestCommandLine(t *testing.T) {
	got := Claude.CommandLine([]string{"mcp", "list"})
	if got != "claude mcp list" {
		t.Errorf("CommandLine() = %q, want %q", got, "claude mcp list")
	}
}
