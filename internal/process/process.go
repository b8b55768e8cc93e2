// Package process discovers coding-agent CLI processes left running on
// the system. A crash or unclean shutdown can strand an agent whose
// shell is gone; skein clean uses this package to find and kill them.
package process

import (
	"context"
	goerrors "errors"
	osexec "os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/skein-dev/skein/internal/agent"
	pexec "github.com/skein-dev/skein/internal/exec"
	"github.com/skein-dev/skein/internal/logger"
)

// executor is the command executor used by this package.
// It can be swapped for testing via SetExecutor.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// GetExecutor returns the current command executor.
func GetExecutor() pexec.CommandExecutor {
	return executor
}

// AgentProcess is one running agent CLI process found on the system.
type AgentProcess struct {
	PID int
	// SessionID is the conversation uuid extracted from the command
	// line, or "" when the process carries no recognizable id.
	SessionID string
	Command   string
}

// FindAgentProcesses lists every running agent CLI process that was
// started with a session id. Sessions launch their agents with
// --session-id or --resume, so matching on those flags skips agent
// invocations a user ran by hand. Unsupported platforms return nothing.
func FindAgentProcesses(ctx context.Context) ([]AgentProcess, error) {
	if runtime.GOOS != "darwin" && runtime.GOOS != "linux" {
		return nil, nil
	}

	var processes []AgentProcess
	for _, ag := range agent.All() {
		pattern := ag.Executable() + ".*(--session-id|--resume)"
		output, err := executor.Output(ctx, "", "pgrep", "-f", pattern)
		if err != nil {
			// pgrep exits 1 when nothing matched
			var exitErr *osexec.ExitError
			if goerrors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
				continue
			}
			return nil, err
		}

		for _, pidStr := range strings.Fields(string(output)) {
			pid, err := strconv.Atoi(pidStr)
			if err != nil {
				continue
			}
			argsOut, err := executor.Output(ctx, "", "ps", "-p", pidStr, "-o", "args=")
			if err != nil {
				// Process died between pgrep and ps
				continue
			}
			cmdLine := strings.TrimSpace(string(argsOut))
			if cmdLine == "" {
				continue
			}
			processes = append(processes, AgentProcess{
				PID:       pid,
				SessionID: extractSessionID(cmdLine),
				Command:   cmdLine,
			})
		}
	}

	logger.Debug("Process: found %d agent processes", len(processes))
	return processes, nil
}

// FindOrphans returns the agent processes whose session uuid is not in
// the known set. Processes without an extractable uuid are left alone;
// they cannot be attributed to a stale session.
func FindOrphans(ctx context.Context, knownSessionUUIDs map[string]bool) ([]AgentProcess, error) {
	all, err := FindAgentProcesses(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []AgentProcess
	for _, proc := range all {
		if proc.SessionID != "" && !knownSessionUUIDs[proc.SessionID] {
			logger.Info("Process: orphaned agent pid=%d, session=%s", proc.PID, proc.SessionID)
			orphans = append(orphans, proc)
		}
	}
	return orphans, nil
}

// KillProcess force-kills a process by pid.
func KillProcess(ctx context.Context, pid int) error {
	_, _, err := executor.Run(ctx, "", "kill", "-9", strconv.Itoa(pid))
	return err
}

// CleanupOrphans kills every orphaned agent process and returns how
// many died. A kill failure skips that process and moves on.
func CleanupOrphans(ctx context.Context, knownSessionUUIDs map[string]bool) (int, error) {
	orphans, err := FindOrphans(ctx, knownSessionUUIDs)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, proc := range orphans {
		logger.Info("Process: killing orphaned agent pid=%d", proc.PID)
		if err := KillProcess(ctx, proc.PID); err != nil {
			logger.Warn("Process: failed to kill pid=%d: %v", proc.PID, err)
			continue
		}
		killed++
	}
	return killed, nil
}

// extractSessionID pulls the conversation uuid out of an agent command
// line. Both launch shapes are recognized, with space or equals
// separating the flag from its value.
func extractSessionID(cmdLine string) string {
	for _, flag := range []string{"--session-id", "--resume"} {
		_, after, ok := strings.Cut(cmdLine, flag)
		if !ok {
			continue
		}
		rest := strings.TrimLeft(after, " =")
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
