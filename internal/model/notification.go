package model

import "time"

// Notification type tags.
const (
	NotificationTaskAssigned = "task_assigned"
	NotificationTaskUpdated  = "task_updated"
	NotificationNewIssues    = "new_issues"
	NotificationSystem       = "system"
)

// Notification represents an alert surfaced to a user about activity
// that concerns them. It is the durable counterpart of a live push.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// UserID is the recipient.
	UserID string `json:"user_id" db:"user_id"`

	// Title is a short headline.
	Title string `json:"title" db:"title"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// Type is a category tag (use Notification* constants).
	Type string `json:"type" db:"type"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read" db:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
