package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/model"
)

type projectRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Members     []string `json:"members"`
	Archived    *bool    `json:"archived"`
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.GetProjects(c.Request.Context(), c.Query("archived") == "true")
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "count": len(projects)})
}

func (s *Server) handleCreateProject(c *gin.Context) {
	user := currentUser(c)
	var req projectRequest
	if !bindJSON(c, &req) {
		return
	}

	p := model.Project{OwnerID: user.ID, Members: req.Members}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}

	ctx := c.Request.Context()
	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.audit(ctx, user, model.AuditCreate, "project", created.ID, gin.H{"name": created.Name})
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetProject(c *gin.Context) {
	p, err := s.store.GetProjectByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// handleUpdateProject edits a project. Only the owner may change it.
func (s *Server) handleUpdateProject(c *gin.Context) {
	user := currentUser(c)
	var req projectRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	p, err := s.store.GetProjectByID(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if p.OwnerID != user.ID {
		abortWithError(c, http.StatusForbidden, "forbidden", "only the project owner can change it")
		return
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Members != nil {
		p.Members = req.Members
	}
	if req.Archived != nil {
		p.Archived = *req.Archived
	}

	updated, err := s.store.UpdateProject(ctx, *p)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.audit(ctx, user, model.AuditUpdate, "project", updated.ID, req)
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	p, err := s.store.GetProjectByID(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if p.OwnerID != user.ID {
		abortWithError(c, http.StatusForbidden, "forbidden", "only the project owner can delete it")
		return
	}

	if err := s.store.DeleteProject(ctx, p.ID); err != nil {
		s.writeError(c, err)
		return
	}
	s.audit(ctx, user, model.AuditDelete, "project", p.ID, gin.H{"name": p.Name})
	c.Status(http.StatusNoContent)
}
