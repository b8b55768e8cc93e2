// Package notification delivers desktop notifications for session
// state changes. It uses the beeep library, which picks the native
// mechanism per platform (notify-send or D-Bus on Linux, osascript on
// macOS, toast notifications on Windows).
package notification

import (
	"github.com/gen2brain/beeep"

	"github.com/skein-dev/skein/internal/logger"
)

// appTitle heads every notification skein sends.
const appTitle = "Skein"

// notifier is the delivery function. Swappable so tests do not pop
// real notifications.
var notifier = beeep.Notify

// SetNotifier replaces the delivery function.
func SetNotifier(fn func(title, message string, icon any) error) {
	notifier = fn
}

// ResetNotifier restores beeep delivery.
func ResetNotifier() {
	notifier = beeep.Notify
}

// Send delivers one desktop notification. Delivery failure is logged
// and returned, but callers are expected to treat it as best-effort.
func Send(title, message string) error {
	logger.Log("Notification: title=%q, message=%q", title, message)
	err := notifier(title, message, "")
	if err != nil {
		logger.Warn("Notification: delivery failed: %v", err)
	}
	return err
}

// SessionReady announces that a session's agent is up and waiting for
// input.
func SessionReady(sessionName string) error {
	return Send(appTitle, sessionName+" is ready")
}

// SessionExited announces that a running session's terminal died
// without being asked to.
func SessionExited(sessionName string) error {
	return Send(appTitle, sessionName+" exited")
}
