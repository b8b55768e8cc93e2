package server

import (
	"encoding/json"
	"sync"

	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/errors"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/session"
)

// sendBuffer is the per-connection channel depth. A client that falls
// this far behind starts losing frames instead of stalling PTY reads.
const sendBuffer = 256

// Event is one message on the /ws/events feed.
type Event struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId,omitempty"`
	Session   *config.Session        `json:"session,omitempty"`
	Sessions  []config.Session       `json:"sessions,omitempty"`
	Servers   []session.ServerStatus `json:"servers,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Event type names, matching the daemon's wire protocol.
const (
	EventSessionCreated  = "session-created"
	EventSessionError    = "session-error"
	EventSessionReopened = "session-reopened"
	EventSessionDeleted  = "session-deleted"
	EventSessionAttached = "session-attached"
	EventSessionExited   = "session-exited"
	EventServersUpdated  = "servers-updated"
	EventSessionsLoaded  = "load-persisted-sessions"
	EventAgentActivity   = "agent-activity"
	EventAgentIdle       = "agent-idle"
)

// client is one WebSocket consumer. The connection's write loop drains
// send; broadcasts never block on it.
type client struct {
	send chan []byte
}

func newClient() *client {
	return &client{send: make(chan []byte, sendBuffer)}
}

// Hub fans manager events out to WebSocket consumers: raw terminal
// bytes to per-session subscribers, JSON events to feed subscribers.
// Callbacks arrive from PTY reader and poller goroutines, so every
// delivery is a non-blocking channel send.
type Hub struct {
	mu        sync.Mutex
	terminals map[string]map[*client]struct{}
	feed      map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		terminals: make(map[string]map[*client]struct{}),
		feed:      make(map[*client]struct{}),
	}
}

func (h *Hub) subscribeTerminal(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.terminals[sessionID]
	if !ok {
		subs = make(map[*client]struct{})
		h.terminals[sessionID] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) unsubscribeTerminal(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.terminals[sessionID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.terminals, sessionID)
		}
	}
}

func (h *Hub) subscribeFeed(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feed[c] = struct{}{}
}

func (h *Hub) unsubscribeFeed(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.feed, c)
}

// broadcastOutput delivers one chunk of terminal output to every
// subscriber of a session. Chunks are already copies owned by the
// callback, so they are handed over without another copy.
func (h *Hub) broadcastOutput(sessionID string, chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.terminals[sessionID] {
		select {
		case c.send <- chunk:
		default:
			logger.Debug("Hub: [%s] dropped %d output bytes for slow client", sessionID, len(chunk))
		}
	}
}

// publish encodes an event once and delivers it to every feed
// subscriber.
func (h *Hub) publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("Hub: failed to encode %s event: %v", evt.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.feed {
		select {
		case c.send <- data:
		default:
			logger.Debug("Hub: dropped %s event for slow client", evt.Type)
		}
	}
}

// Events returns the manager callback set wired into this hub. Terminal
// output goes to the per-session sockets; everything else goes to the
// event feed.
func (h *Hub) Events() session.Events {
	return session.Events{
		SessionOutput: h.broadcastOutput,
		SessionCreated: func(sess config.Session) {
			h.publish(Event{Type: EventSessionCreated, SessionID: sess.ID, Session: &sess})
		},
		SessionError: func(sessionID string, err error) {
			h.publish(Event{Type: EventSessionError, SessionID: sessionID, Error: errors.UserMessage(err)})
		},
		SessionReopened: func(sess config.Session) {
			h.publish(Event{Type: EventSessionReopened, SessionID: sess.ID, Session: &sess})
		},
		SessionDeleted: func(sessionID string) {
			h.publish(Event{Type: EventSessionDeleted, SessionID: sessionID})
		},
		SessionAttached: func(sessionID string) {
			h.publish(Event{Type: EventSessionAttached, SessionID: sessionID})
		},
		SessionExited: func(sessionID string) {
			h.publish(Event{Type: EventSessionExited, SessionID: sessionID})
		},
		ServersUpdated: func(sessionID string, servers []session.ServerStatus) {
			h.publish(Event{Type: EventServersUpdated, SessionID: sessionID, Servers: servers})
		},
		PersistedSessionsLoaded: func(sessions []config.Session) {
			h.publish(Event{Type: EventSessionsLoaded, Sessions: sessions})
		},
		AgentActivity: func(sessionID string) {
			h.publish(Event{Type: EventAgentActivity, SessionID: sessionID})
		},
		AgentIdle: func(sessionID string) {
			h.publish(Event{Type: EventAgentIdle, SessionID: sessionID})
		},
	}
}
