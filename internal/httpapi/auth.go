package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/scheduler"
	"github.com/nhle/taskhub/internal/store"
)

const userKey = "taskhub.user"

// bearerToken extracts the API token from the Authorization header, or from
// the token query parameter, which EventSource clients must use since they
// cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// requireUser resolves the caller from its API token and aborts with 401
// when that fails.
func (s *Server) requireUser(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	user, err := s.store.GetUserByToken(c.Request.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}
	if err != nil {
		s.logger.Printf("ERROR: resolving token: %v", err)
		abortWithError(c, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	c.Set(userKey, user)
	c.Next()
}

// currentUser returns the user resolved by requireUser.
func currentUser(c *gin.Context) *model.User {
	return c.MustGet(userKey).(*model.User)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// writeError maps a domain error to a status code and JSON body.
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		abortWithError(c, http.StatusBadRequest, "invalid", verr.Error())
	case errors.Is(err, store.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		abortWithError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, scheduler.ErrJobRunning):
		abortWithError(c, http.StatusConflict, "job_running", err.Error())
	case errors.Is(err, scheduler.ErrUnknownJob):
		abortWithError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduler.ErrStopped):
		abortWithError(c, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		s.logger.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
		abortWithError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}

// bindJSON decodes the request body into v, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// encodeDetails renders audit details as a JSON object string.
func encodeDetails(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
