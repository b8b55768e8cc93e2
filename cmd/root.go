package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/cli"
	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/notification"
	"github.com/skein-dev/skein/internal/server"
	"github.com/skein-dev/skein/internal/session"
)

var (
	listenAddr            string
	debugMode             bool
	quietMode             bool
	checkPrereqs          bool
	version, commit, date string
)

// shutdownTimeout bounds how long in-flight requests may finish during
// graceful shutdown.
const shutdownTimeout = 5 * time.Second

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "Daemon for managing multiple concurrent coding-agent sessions",
	Long: `Skein is a local daemon that manages multiple concurrent coding-agent
sessions. Each session runs an agent CLI inside its own PTY, pinned to an
isolated git worktree, and the desktop shell talks to the daemon over
HTTP and WebSocket on the loopback interface.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", true, "Enable debug logging (on by default)")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to info level only")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:7420", "Listen address for the HTTP/WebSocket API")
	rootCmd.Flags().BoolVar(&checkPrereqs, "check-prereqs", false, "Check CLI prerequisites and exit")
}

func initConfig() {
	if quietMode {
		logger.SetDebug(false)
	} else if debugMode {
		logger.SetDebug(true)
	}
}

// Execute runs the root command
func Execute() error {
	// Set version dynamically
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("skein %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("skein %s\n", version)
}

func runServe(cmd *cobra.Command, args []string) error {
	prereqs := cli.DefaultPrerequisites()

	if checkPrereqs {
		fmt.Print(cli.FormatCheckResults(cli.CheckAll(prereqs)))
		return nil
	}

	// Validate prerequisites. Missing agent CLIs only warn; a session
	// needs just the one agent it launches.
	if err := cli.ValidateRequired(prereqs); err != nil {
		return fmt.Errorf("%v\n\nInstall required tools and try again", err)
	}
	for _, result := range cli.CheckAll(prereqs) {
		if !result.Required && !result.Found {
			logger.Warn("Prereq: optional agent CLI %q not found on PATH", result.Name)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Ensure logger is closed on exit
	defer logger.Close()

	hub := server.NewHub()
	registry := session.NewRegistry()
	mgr := session.NewManager(cfg, registry, withNotifications(cfg, hub.Events()))
	defer mgr.Shutdown()

	srv := server.New(mgr, hub, listenAddr, version)
	mgr.LoadPersisted()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log("Root: received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Root: server shutdown: %v", err)
	}
	return <-errCh
}

// withNotifications layers desktop notifications over the hub's event
// fan-out. Names are resolved at fire time so renames show current
// names.
func withNotifications(cfg *config.Config, evts session.Events) session.Events {
	broadcastAttached := evts.SessionAttached
	evts.SessionAttached = func(id string) {
		broadcastAttached(id)
		if sess := cfg.GetSession(id); sess != nil {
			notification.SessionReady(sess.Name)
		}
	}

	broadcastExited := evts.SessionExited
	evts.SessionExited = func(id string) {
		broadcastExited(id)
		if sess := cfg.GetSession(id); sess != nil {
			notification.SessionExited(sess.Name)
		}
	}
	return evts
}
