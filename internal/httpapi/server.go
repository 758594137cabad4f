// Package httpapi exposes the taskhub JSON API and the live notification
// streams over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/notify"
	"github.com/nhle/taskhub/internal/scheduler"
	"github.com/nhle/taskhub/internal/store"
)

// DefaultHeartbeat is how long an idle stream waits before a keep-alive.
const DefaultHeartbeat = 30 * time.Second

// IssueSyncJob is the scheduler job triggered by POST /api/issues/sync.
const IssueSyncJob = "issue_sync"

// JobController is the part of the scheduler the API drives.
type JobController interface {
	RunNow(name string) error
	Status() []scheduler.JobStatus
}

// Config wires the server's collaborators.
type Config struct {
	// Addr is the listen address used by ListenAndServe.
	Addr string

	Store    store.Store
	Registry *notify.Registry

	// Jobs may be nil, in which case job endpoints answer 503.
	Jobs JobController

	// Heartbeat defaults to DefaultHeartbeat.
	Heartbeat time.Duration

	// AllowedOrigins lists host patterns accepted on WebSocket upgrades.
	// Empty means same-origin only.
	AllowedOrigins []string

	// Logger receives server events. Nil discards them.
	Logger *log.Logger

	// AccessLog receives one line per request. Nil disables access logging.
	AccessLog io.Writer
}

// Server is the taskhub HTTP server.
type Server struct {
	store     store.Store
	registry  *notify.Registry
	jobs      JobController
	heartbeat time.Duration
	origins   []string
	logger    *log.Logger
	now       func() time.Time

	router *gin.Engine
	http   *http.Server
}

// NewServer creates a server and registers every route.
func NewServer(cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.AccessLog != nil {
		router.Use(gin.LoggerWithWriter(cfg.AccessLog, "/health"))
	}

	s := &Server{
		store:     cfg.Store,
		registry:  cfg.Registry,
		jobs:      cfg.Jobs,
		heartbeat: cfg.Heartbeat,
		origins:   cfg.AllowedOrigins,
		logger:    cfg.Logger,
		now:       time.Now,
		router:    router,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api", s.requireUser)
	{
		api.GET("/me", s.handleMe)
		api.GET("/users", s.handleListUsers)
		api.POST("/users", s.handleCreateUser)

		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/assign", s.handleAssignTask)
		api.GET("/tasks/:id/audit", s.handleTaskAudit)
		api.GET("/tasks/:id/issues", s.handleTaskIssues)

		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)
		api.GET("/projects/:id", s.handleGetProject)
		api.PUT("/projects/:id", s.handleUpdateProject)
		api.DELETE("/projects/:id", s.handleDeleteProject)

		api.GET("/notifications", s.handleListNotifications)
		api.POST("/notifications/read-all", s.handleReadAllNotifications)
		api.POST("/notifications/:id/read", s.handleReadNotification)
		api.DELETE("/notifications/:id", s.handleDeleteNotification)
		api.GET("/notifications/stream", s.handleStream)
		api.GET("/notifications/ws", s.handleWebSocket)

		api.GET("/issues", s.handleListIssues)
		api.POST("/issues/sync", s.handleSyncIssues)

		api.GET("/dashboard/stats", s.handleDashboardStats)
		api.GET("/admin/jobs", s.handleListJobs)
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones. Open
// streams must be released first by closing the registry, since they never
// finish on their own.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"streams": s.registry.Total(),
		"users":   s.registry.Users(),
	})
}

// publish persists a notification and pushes it to the recipient's live
// streams. Failures are logged; the triggering write has already happened.
func (s *Server) publish(ctx context.Context, n model.Notification) {
	saved, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		s.logger.Printf("WARNING: saving notification for %s: %v", n.UserID, err)
		return
	}
	s.registry.Send(saved.UserID, saved)
}

// audit appends an audit entry, logging failures.
func (s *Server) audit(ctx context.Context, actor *model.User, action, entityType, entityID string, details any) {
	entry := model.AuditEntry{
		UserID:     actor.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    encodeDetails(details),
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.logger.Printf("WARNING: audit %s %s %s: %v", action, entityType, entityID, err)
	}
}
