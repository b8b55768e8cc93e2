package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/errors"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/session"
)

// statusFor maps structured error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch errors.GetKind(err) {
	case errors.KindInvalid:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": errors.UserMessage(err)})
}

// validDimensions bounds terminal sizes to what a PTY winsize can hold.
func validDimensions(cols, rows int) bool {
	return cols > 0 && rows > 0 && cols <= 0xffff && rows <= 0xffff
}

// sessionView is a persisted record plus its live running state.
type sessionView struct {
	config.Session
	Running bool `json:"running"`
}

func (s *Server) view(sess config.Session) sessionView {
	return sessionView{Session: sess, Running: s.core.IsRunning(sess.ID)}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.version})
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions := s.core.Sessions()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.view(sess))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var body struct {
		Name   string               `json:"name"`
		Config config.SessionConfig `json:"config"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := s.core.CreateSession(c.Request.Context(), body.Config, body.Name)
	if err != nil {
		logger.Error("Server: create session failed: %v", err)
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(*sess))
}

func (s *Server) handleReopenSession(c *gin.Context) {
	sess, err := s.core.ReopenSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(*sess))
}

func (s *Server) handleCloseSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.core.Session(id); err != nil {
		fail(c, err)
		return
	}
	s.core.CloseSession(id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.core.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleRenameSession(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.core.RenameSession(c.Param("id"), body.Name); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleResizeSession(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !validDimensions(body.Cols, body.Rows) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cols and rows must be positive terminal dimensions"})
		return
	}

	if _, err := s.core.Session(id); err != nil {
		fail(c, err)
		return
	}
	s.core.Resize(id, uint16(body.Cols), uint16(body.Rows))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListBranches(c *gin.Context) {
	dir := c.Query("dir")
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dir query parameter is required"})
		return
	}

	branches, err := s.core.ListBranches(c.Request.Context(), dir)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches})
}

// handleListServers returns the last known MCP server statuses for a
// session. The underlying call also kicks off an async refresh whose
// result arrives on the event feed.
func (s *Server) handleListServers(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.core.Session(id); err != nil {
		fail(c, err)
		return
	}

	servers := s.core.ListServers(id)
	if servers == nil {
		servers = []session.ServerStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

func (s *Server) handleAddServer(c *gin.Context) {
	var body config.MCPServerConfig
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.core.AddServer(c.Request.Context(), body); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleRemoveServer(c *gin.Context) {
	if err := s.core.RemoveServer(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleServerDetails(c *gin.Context) {
	name := c.Param("name")
	details, err := s.core.GetServerDetails(c.Request.Context(), name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "details": details})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.core.Settings())
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var body config.TerminalSettings
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.core.SaveSettings(body); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleLastSession returns the config of the most recently created
// session, used to prefill the new-session form. The config is null
// when no session was ever created.
func (s *Server) handleLastSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": s.core.LastSessionConfig()})
}
