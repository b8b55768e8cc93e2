package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skein-dev/skein/internal/config"
)

// WriteMCPConfig writes the MCP server config file passed to an agent
// via its config-path flag. The file lives in the temp dir and is keyed
// by session id, so reopening a session rewrites the same path.
func WriteMCPConfig(sessionID string, servers []config.MCPServerConfig) (string, error) {
	mcpServers := make(map[string]interface{}, len(servers))
	for _, server := range servers {
		entry := map[string]interface{}{}
		if server.URL != "" {
			transport := server.Transport
			if transport == "" {
				transport = "sse"
			}
			entry["type"] = transport
			entry["url"] = server.URL
		} else {
			entry["command"] = server.Command
			if len(server.Args) > 0 {
				entry["args"] = server.Args
			}
			if len(server.Env) > 0 {
				entry["env"] = server.Env
			}
		}
		mcpServers[server.Name] = entry
	}

	doc := map[string]interface{}{
		"mcpServers": mcpServers,
	}

	configJSON, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	configPath := MCPConfigPath(sessionID)
	if err := os.WriteFile(configPath, configJSON, 0600); err != nil {
		return "", err
	}

	return configPath, nil
}

// MCPConfigPath returns the per-session MCP config file path.
func MCPConfigPath(sessionID string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("skein-mcp-%s.json", sessionID))
}

// RemoveMCPConfig deletes a session's MCP config file. Best-effort.
func RemoveMCPConfig(sessionID string) {
	os.Remove(MCPConfigPath(sessionID))
}
