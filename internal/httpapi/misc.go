package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/model"
)

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.GetUsers(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// handleCreateUser registers a user and returns its API token, which is
// not shown again.
func (s *Server) handleCreateUser(c *gin.Context) {
	actor := currentUser(c)
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
	}
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	u, err := s.store.CreateUser(ctx, model.User{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.audit(ctx, actor, model.AuditCreate, "user", u.ID, gin.H{"username": u.Username})
	c.JSON(http.StatusCreated, gin.H{"user": u, "api_token": u.APIToken})
}

func (s *Server) handleListIssues(c *gin.Context) {
	user := currentUser(c)
	issues, err := s.store.GetCachedIssues(c.Request.Context(), user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues, "count": len(issues)})
}

// handleSyncIssues starts an issue sync in the background.
func (s *Server) handleSyncIssues(c *gin.Context) {
	if s.jobs == nil {
		abortWithError(c, http.StatusServiceUnavailable, "unavailable", "scheduler is not running")
		return
	}
	if err := s.jobs.RunNow(IssueSyncJob); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": IssueSyncJob, "status": "started"})
}

func (s *Server) handleDashboardStats(c *gin.Context) {
	user := currentUser(c)
	stats, err := s.store.GetDashboardStats(c.Request.Context(), user.ID, s.now())
	if err != nil {
		s.writeError(c, err)
		return
	}
	stats.LiveConnections = s.registry.Total()
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListJobs(c *gin.Context) {
	if s.jobs == nil {
		abortWithError(c, http.StatusServiceUnavailable, "unavailable", "scheduler is not running")
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.Status()})
}
