package agent

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/skein-dev/skein/internal/logger"
)

// TranscriptDir returns the directory where the agent writes session
// transcripts for a given working directory, or "" when the agent has
// no known transcript location.
//
// Claude stores transcripts in ~/.claude/projects/<escaped-path>/
// <session-uuid>.jsonl, where the path escape replaces "/" and "."
// with "-".
func (a Agent) TranscriptDir(workingDir string) string {
	if a != Claude {
		return ""
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	escaped := strings.ReplaceAll(workingDir, "/", "-")
	escaped = strings.ReplaceAll(escaped, ".", "-")
	return filepath.Join(homeDir, ".claude", "projects", escaped)
}

// activityDebounce coalesces bursts of transcript writes into a single
// activity signal.
const activityDebounce = 100 * time.Millisecond

// dirPollInterval is how often a watcher re-checks for a transcript
// directory that does not exist yet.
const dirPollInterval = 2 * time.Second

// ActivityWatcher watches one session's transcript file and invokes a
// callback when it grows. The transcript directory may not exist when
// the watcher starts (the agent creates it on first use); the watcher
// idles until it appears.
type ActivityWatcher struct {
	dir        string
	file       string
	onActivity func()

	stopOnce sync.Once
	stop     chan struct{}
}

// WatchTranscript starts a watcher for the session's transcript file
// under dir. Returns nil when dir is empty (agent has no transcripts).
func WatchTranscript(dir, sessionUUID string, onActivity func()) *ActivityWatcher {
	if dir == "" {
		return nil
	}
	w := &ActivityWatcher{
		dir:        dir,
		file:       sessionUUID + ".jsonl",
		onActivity: onActivity,
		stop:       make(chan struct{}),
	}
	go w.run()
	return w
}

// Stop ends the watcher. Safe to call more than once.
func (w *ActivityWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *ActivityWatcher) run() {
	watcher := w.awaitDir()
	if watcher == nil {
		return
	}
	defer watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(activityDebounce, w.onActivity)
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		case <-w.stop:
			return
		}
	}
}

// awaitDir waits for the transcript directory to exist, then returns a
// watcher registered on it. Returns nil once stopped.
func (w *ActivityWatcher) awaitDir() *fsnotify.Watcher {
	ticker := time.NewTicker(dirPollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(w.dir); err == nil {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				logger.Warn("Agent: transcript watcher unavailable: %v", err)
				return nil
			}
			if err := watcher.Add(w.dir); err != nil {
				// Directory vanished between stat and add. Keep waiting.
				watcher.Close()
			} else {
				logger.Debug("Agent: watching transcripts in %s", w.dir)
				return watcher
			}
		}

		select {
		case <-ticker.C:
		case <-w.stop:
			return nil
		}
	}
}
