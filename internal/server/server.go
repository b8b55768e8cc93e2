// Package server exposes the session manager to the desktop shell over
// HTTP and WebSocket on the loopback interface.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skein-dev/skein/internal/config"
	"github.com/skein-dev/skein/internal/logger"
	"github.com/skein-dev/skein/internal/session"
)

// Core is the slice of the session manager the HTTP surface uses.
type Core interface {
	CreateSession(ctx context.Context, sc config.SessionConfig, name string) (*config.Session, error)
	ReopenSession(ctx context.Context, id string) (*config.Session, error)
	CloseSession(id string)
	DeleteSession(ctx context.Context, id string) error
	RenameSession(id, newName string) error
	Session(id string) (*config.Session, error)
	Sessions() []config.Session
	IsRunning(id string) bool
	WriteInput(id string, p []byte)
	Resize(id string, cols, rows uint16)
	ListBranches(ctx context.Context, dir string) ([]string, error)
	Settings() config.TerminalSettings
	SaveSettings(s config.TerminalSettings) error
	LastSessionConfig() *config.SessionConfig
	ListServers(id string) []session.ServerStatus
	AddServer(ctx context.Context, server config.MCPServerConfig) error
	RemoveServer(ctx context.Context, name string) error
	GetServerDetails(ctx context.Context, name string) ([]session.ServerDetail, error)
}

var _ Core = (*session.Manager)(nil)

// Server is the daemon's HTTP/WebSocket front end.
type Server struct {
	core    Core
	hub     *Hub
	version string

	// shutdown is cancelled when the server stops, so hijacked
	// WebSocket handlers notice and return.
	shutdown       context.Context
	cancelShutdown context.CancelFunc

	engine *gin.Engine
	http   *http.Server
}

// New builds the server and its routes. addr is the listen address,
// normally a loopback host:port.
func New(core Core, hub *Hub, addr, version string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.SetTrustedProxies(nil)

	httpSrv := &http.Server{Addr: addr, Handler: engine}
	// stderr belongs to the CLI; route net/http's own complaints to the
	// log file with everything else.
	if l := logger.Logger(); l != nil {
		httpSrv.ErrorLog = slog.NewLogLogger(l.Handler(), slog.LevelError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		core:           core,
		hub:            hub,
		version:        version,
		shutdown:       ctx,
		cancelShutdown: cancel,
		engine:         engine,
		http:           httpSrv,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/sessions", s.handleListSessions)
		api.POST("/sessions", s.handleCreateSession)
		api.POST("/sessions/:id/reopen", s.handleReopenSession)
		api.POST("/sessions/:id/close", s.handleCloseSession)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
		api.PATCH("/sessions/:id", s.handleRenameSession)
		api.POST("/sessions/:id/resize", s.handleResizeSession)
		api.GET("/sessions/:id/servers", s.handleListServers)

		api.GET("/branches", s.handleListBranches)

		api.POST("/servers", s.handleAddServer)
		api.DELETE("/servers/:name", s.handleRemoveServer)
		api.GET("/servers/:name", s.handleServerDetails)

		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleSaveSettings)
		api.GET("/last-session", s.handleLastSession)
	}

	s.engine.GET("/ws/sessions/:id", s.handleSessionSocket)
	s.engine.GET("/ws/events", s.handleEventsSocket)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start runs the HTTP server and blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	logger.Log("Server: listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, signals WebSocket handlers to
// close, and waits for in-flight requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log("Server: shutting down")
	s.cancelShutdown()
	return s.http.Shutdown(ctx)
}
