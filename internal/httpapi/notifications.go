package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/store"
)

func (s *Server) handleListNotifications(c *gin.Context) {
	user := currentUser(c)
	filter := store.NotificationFilter{UnreadOnly: c.Query("unread") == "true"}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	list, err := s.store.GetNotifications(c.Request.Context(), user.ID, filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}

func (s *Server) handleReadNotification(c *gin.Context) {
	user := currentUser(c)
	if err := s.store.MarkNotificationRead(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReadAllNotifications(c *gin.Context) {
	user := currentUser(c)
	n, err := s.store.MarkAllNotificationsRead(c.Request.Context(), user.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) handleDeleteNotification(c *gin.Context) {
	user := currentUser(c)
	if err := s.store.DeleteNotification(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
