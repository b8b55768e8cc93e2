package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/skein-dev/skein/internal/logger"
)

const pingInterval = 30 * time.Second

// controlFrame is a JSON text frame on the session socket. Binary
// frames carry raw terminal bytes; text frames carry control messages.
type controlFrame struct {
	Type string `json:"type"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// accept upgrades a gin request to a WebSocket connection. gin wraps
// the response writer and the hijack needs the original one.
func accept(c *gin.Context) (*websocket.Conn, error) {
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}
	// The daemon listens on loopback only; an origin check would reject
	// the shell's non-http origin.
	return websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
}

// normalClose reports whether a read error is an expected disconnect
// rather than a failure worth surfacing.
func normalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusGoingAway, websocket.StatusNormalClosure, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

// wsContext derives the connection context. The request context does
// not cancel when a hijacked connection closes, and the handler must
// also stop on daemon shutdown.
func (s *Server) wsContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	stop := context.AfterFunc(s.shutdown, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// handleSessionSocket streams a session's terminal. Outbound binary
// frames carry PTY output; inbound binary frames are keystrokes and
// inbound text frames are JSON control messages (resize).
func (s *Server) handleSessionSocket(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.core.Session(id); err != nil {
		fail(c, err)
		return
	}
	log := logger.WithSession(id)

	conn, err := accept(c)
	if err != nil {
		log.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	c.Abort()

	ctx, cancel := s.wsContext(c)
	defer cancel()

	cl := newClient()
	s.hub.subscribeTerminal(id, cl)
	defer s.hub.unsubscribeTerminal(id, cl)

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-cl.send:
				if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
					if ctx.Err() == nil {
						log.Debug("websocket write failed", "err", err)
					}
					return
				}
			}
		}
	}()

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			if normalClose(err) {
				log.Debug("terminal socket closed")
			} else {
				log.Info("terminal socket read error", "err", err)
			}
			cancel()
			break
		}

		switch msgType {
		case websocket.MessageBinary:
			s.core.WriteInput(id, msg)
		case websocket.MessageText:
			var frame controlFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				log.Debug("unparseable control frame", "err", err)
				continue
			}
			if frame.Type == "resize" && validDimensions(frame.Cols, frame.Rows) {
				s.core.Resize(id, uint16(frame.Cols), uint16(frame.Rows))
			}
		}
	}

	<-sendDone
	<-pingDone
}

// handleEventsSocket streams the JSON event feed. The feed is outbound
// only; inbound frames are drained and ignored.
func (s *Server) handleEventsSocket(c *gin.Context) {
	log := logger.ComponentLogger("events")

	conn, err := accept(c)
	if err != nil {
		log.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	c.Abort()

	ctx, cancel := s.wsContext(c)
	defer cancel()

	cl := newClient()
	s.hub.subscribeFeed(cl)
	defer s.hub.unsubscribeFeed(cl)

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-cl.send:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					if ctx.Err() == nil {
						log.Debug("websocket write failed", "err", err)
					}
					return
				}
			}
		}
	}()

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if !normalClose(err) && ctx.Err() == nil {
				log.Debug("socket read error", "err", err)
			}
			cancel()
			break
		}
	}

	<-sendDone
	<-pingDone
}
