package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/crossref"
	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/store"
)

// taskRequest is the body of task create and update calls. Pointer fields
// left out of an update keep their current value.
type taskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *int       `json:"priority"`
	ProjectID   *string    `json:"project_id"`
	AssigneeID  *string    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
	Tags        []string   `json:"tags"`
}

func (r taskRequest) apply(t *model.Task) {
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.Priority != nil {
		t.Priority = *r.Priority
	}
	if r.ProjectID != nil {
		t.ProjectID = r.ProjectID
	}
	if r.AssigneeID != nil {
		t.AssigneeID = r.AssigneeID
	}
	if r.DueDate != nil {
		t.DueDate = r.DueDate
	}
	if r.Tags != nil {
		t.Tags = r.Tags
	}
}

func (s *Server) handleListTasks(c *gin.Context) {
	user := currentUser(c)
	filter := store.TaskFilter{
		SortBy:   c.Query("sort"),
		SortDesc: c.Query("desc") == "true",
	}

	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("priority"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid", "priority must be a number")
			return
		}
		filter.Priority = &p
	}
	if v := c.Query("project_id"); v != "" {
		filter.ProjectID = &v
	}
	if v := c.Query("assignee"); v != "" {
		if v == "me" {
			v = user.ID
		}
		filter.AssigneeID = &v
	}
	if v := c.Query("q"); v != "" {
		filter.Query = &v
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	tasks, err := s.store.GetTasks(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	user := currentUser(c)
	var req taskRequest
	if !bindJSON(c, &req) {
		return
	}

	task := model.Task{CreatorID: user.ID}
	req.apply(&task)

	ctx := c.Request.Context()
	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.audit(ctx, user, model.AuditCreate, "task", created.ID, gin.H{"title": created.Title})
	if created.AssigneeID != nil && *created.AssigneeID != user.ID {
		s.notifyAssigned(c, user, created)
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.store.GetTaskByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	user := currentUser(c)
	var req taskRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	existing, err := s.store.GetTaskByID(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	before := *existing
	task := *existing
	req.apply(&task)

	updated, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.audit(ctx, user, model.AuditUpdate, "task", updated.ID, taskChanges(before, *updated))

	switch {
	case updated.AssigneeID != nil && !before.AssignedTo(*updated.AssigneeID) && *updated.AssigneeID != user.ID:
		s.notifyAssigned(c, user, updated)
	case updated.AssigneeID != nil && *updated.AssigneeID != user.ID:
		s.publish(ctx, model.Notification{
			UserID:  *updated.AssigneeID,
			Title:   "Task updated",
			Message: fmt.Sprintf("%s updated %q", user.DisplayName, updated.Title),
			Type:    model.NotificationTaskUpdated,
		})
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := s.store.DeleteTask(ctx, id); err != nil {
		s.writeError(c, err)
		return
	}
	s.audit(ctx, user, model.AuditDelete, "task", id, nil)
	c.Status(http.StatusNoContent)
}

// handleAssignTask sets or clears the assignee. Assigning to someone other
// than the caller records a notification and pushes it live.
func (s *Server) handleAssignTask(c *gin.Context) {
	user := currentUser(c)
	var req struct {
		AssigneeID *string `json:"assignee_id"`
	}
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	task, err := s.store.GetTaskByID(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	var assignee *model.User
	if req.AssigneeID != nil && *req.AssigneeID != "" {
		assignee, err = s.store.GetUserByID(ctx, *req.AssigneeID)
		if err != nil {
			s.writeError(c, err)
			return
		}
	}

	previous := task.AssigneeID
	if assignee != nil {
		task.AssigneeID = &assignee.ID
	} else {
		task.AssigneeID = nil
	}

	updated, err := s.store.UpdateTask(ctx, *task)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.audit(ctx, user, model.AuditAssign, "task", updated.ID, gin.H{
		"from": previous,
		"to":   updated.AssigneeID,
	})
	if assignee != nil && assignee.ID != user.ID {
		s.notifyAssigned(c, user, updated)
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleTaskAudit(c *gin.Context) {
	entries, err := s.store.GetAuditEntries(c.Request.Context(), "task", c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// handleTaskIssues lists the Jira keys the task mentions and the caller's
// cached issues among them.
func (s *Server) handleTaskIssues(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	task, err := s.store.GetTaskByID(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	cached, err := s.store.GetCachedIssues(ctx, user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	keys := crossref.TaskKeys(*task)
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "issues": crossref.Linked(keys, cached)})
}

func (s *Server) notifyAssigned(c *gin.Context, actor *model.User, task *model.Task) {
	s.publish(c.Request.Context(), model.Notification{
		UserID:  *task.AssigneeID,
		Title:   "Task assigned",
		Message: fmt.Sprintf("%s assigned you %q", actor.DisplayName, task.Title),
		Type:    model.NotificationTaskAssigned,
	})
}

// taskChanges lists the fields that differ between two versions of a task.
func taskChanges(before, after model.Task) map[string]any {
	changes := map[string]any{}
	if before.Title != after.Title {
		changes["title"] = after.Title
	}
	if before.Description != after.Description {
		changes["description"] = after.Description
	}
	if before.Status != after.Status {
		changes["status"] = after.Status
	}
	if before.Priority != after.Priority {
		changes["priority"] = after.Priority
	}
	if ptrString(before.ProjectID) != ptrString(after.ProjectID) {
		changes["project_id"] = after.ProjectID
	}
	if ptrString(before.AssigneeID) != ptrString(after.AssigneeID) {
		changes["assignee_id"] = after.AssigneeID
	}
	return changes
}

func ptrString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
