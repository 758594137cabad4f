package store

import (
	"context"
	"time"

	"github.com/nhle/taskhub/internal/model"
)

// TaskFilter controls filtering, sorting, and pagination for task queries.
type TaskFilter struct {
	Status     *string
	Priority   *int
	ProjectID  *string
	AssigneeID *string
	CreatorID  *string
	Query      *string
	SortBy     string // "priority", "due_date", "created_at", "updated_at", "title"
	SortDesc   bool
	Limit      int
	Offset     int
}

// NotificationFilter controls notification listing.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Store defines the persistence interface for users, tasks, projects,
// notifications, the audit log, and the external issue cache.
type Store interface {
	// === Users ===

	CreateUser(ctx context.Context, user model.User) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByToken(ctx context.Context, token string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	GetUsersWithEmail(ctx context.Context) ([]model.User, error)

	// === Tasks ===

	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)
	UpdateTask(ctx context.Context, task model.Task) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)

	// === Projects ===

	CreateProject(ctx context.Context, project model.Project) (*model.Project, error)
	UpdateProject(ctx context.Context, project model.Project) (*model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	GetProjects(ctx context.Context, includeArchived bool) ([]model.Project, error)

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) (*model.Notification, error)
	GetNotifications(ctx context.Context, userID string, filter NotificationFilter) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error

	// === Audit log ===

	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	GetAuditEntries(ctx context.Context, entityType, entityID string) ([]model.AuditEntry, error)
	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// === External issue cache ===

	UpsertCachedIssue(ctx context.Context, userID string, issue model.ExternalIssue, syncedAt time.Time) (bool, error)
	GetCachedIssues(ctx context.Context, userID string) ([]model.CachedIssue, error)
	GetCachedIssue(ctx context.Context, userID, issueKey string) (*model.CachedIssue, error)

	// === Dashboard and maintenance ===

	GetDashboardStats(ctx context.Context, userID string, now time.Time) (*model.DashboardStats, error)
	Compact(ctx context.Context) error
}

var _ Store = (*SQLiteStore)(nil)
