package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/agent"
	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/process"
	"github.com/skein-dev/skein/internal/worktree"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all sessions, logs, orphaned worktrees, and agent processes",
	Long: `Clears all persisted session data, removes log files, prunes worktrees
under the worktree root, and kills agent processes left behind by dead
sessions.

It will prompt for confirmation before proceeding unless the --yes flag
is used.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	return runCleanWithReader(os.Stdin)
}

// runCleanWithReader allows injecting a reader for testing
func runCleanWithReader(input io.Reader) error {
	// Load config to show what will be cleaned
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx := context.Background()
	sessions := cfg.GetSessions()
	root := cfg.WorktreeRoot()

	knownPaths := make(map[string]bool)
	knownUUIDs := make(map[string]bool)
	for _, sess := range sessions {
		if sess.WorktreePath != "" {
			knownPaths[sess.WorktreePath] = true
		}
		knownUUIDs[sess.SessionUUID] = true
	}

	orphanWorktrees, err := worktree.FindOrphans(ctx, root, knownPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding orphaned worktrees: %v\n", err)
	}

	orphanProcesses, err := process.FindOrphans(ctx, knownUUIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error finding orphaned processes: %v\n", err)
	}

	// Check if there's anything to clean
	if len(sessions) == 0 && len(orphanWorktrees) == 0 && len(orphanProcesses) == 0 {
		fmt.Println("Nothing to clean.")
		return nil
	}

	// Print summary of what will be cleaned
	fmt.Println("This will clean:")
	if len(sessions) > 0 {
		fmt.Printf("  - %d session(s) and their worktrees\n", len(sessions))
	}
	if len(orphanWorktrees) > 0 {
		fmt.Printf("  - %d orphaned worktree(s)\n", len(orphanWorktrees))
		for _, orphan := range orphanWorktrees {
			fmt.Printf("      %s\n", orphan.Path)
		}
	}
	if len(orphanProcesses) > 0 {
		fmt.Printf("  - %d orphaned agent process(es)\n", len(orphanProcesses))
		for _, proc := range orphanProcesses {
			fmt.Printf("      PID %d\n", proc.PID)
		}
	}
	fmt.Println("  - All skein log files in /tmp")

	// Confirm unless --yes flag is set
	if !skipConfirm {
		if !confirm(input, "Continue?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Clear the persisted records first. Everything skein owns on disk
	// and in the process table is unowned afterwards, so the prune
	// passes below run against an empty known set.
	for _, sess := range sessions {
		agent.RemoveMCPConfig(sess.ID)
	}
	cfg.ClearSessions()
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	logsCleared, err := logger.ClearLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error clearing logs: %v\n", err)
	}

	none := map[string]bool{}
	var prunedWorktrees, killedProcesses int
	var worktreesErr, processesErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		prunedWorktrees, worktreesErr = worktree.PruneOrphans(ctx, root, none)
	}()

	go func() {
		defer wg.Done()
		killedProcesses, processesErr = process.CleanupOrphans(ctx, none)
	}()

	wg.Wait()

	// Report any errors
	if worktreesErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: error pruning worktrees: %v\n", worktreesErr)
	}
	if processesErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: error killing orphaned processes: %v\n", processesErr)
	}

	// Print results
	fmt.Println()
	fmt.Println("Cleaned:")
	if len(sessions) > 0 {
		fmt.Printf("  - %d session(s) cleared\n", len(sessions))
	}
	if logsCleared > 0 {
		fmt.Printf("  - %d log file(s) removed\n", logsCleared)
	}
	if prunedWorktrees > 0 {
		fmt.Printf("  - %d worktree(s) pruned\n", prunedWorktrees)
	}
	if killedProcesses > 0 {
		fmt.Printf("  - %d agent process(es) killed\n", killedProcesses)
	}

	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(input io.Reader, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Printf("%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
