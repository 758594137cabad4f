package model

import "time"

// Task status constants.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

// Normalized priority constants (lower number = higher priority).
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
	PriorityLowest   = 5
)

// ValidStatus reports whether s is one of the Status* constants.
func ValidStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Task is a unit of work tracked locally and optionally assigned to a user.
type Task struct {
	// ID is the internal unique identifier for this task.
	ID string `json:"id" db:"id"`

	// Title is the human-readable summary of the task.
	Title string `json:"title" db:"title"`

	// Description is the full body text.
	Description string `json:"description" db:"description"`

	// Status is one of the Status* constants.
	Status string `json:"status" db:"status"`

	// Priority is one of the Priority* constants.
	Priority int `json:"priority" db:"priority"`

	// ProjectID is the owning project, or nil for unfiled tasks.
	ProjectID *string `json:"project_id,omitempty" db:"project_id"`

	// CreatorID is the user who created the task.
	CreatorID string `json:"creator_id" db:"creator_id"`

	// AssigneeID is the user the task is assigned to, if any.
	AssigneeID *string `json:"assignee_id,omitempty" db:"assignee_id"`

	// DueDate is the optional deadline.
	DueDate *time.Time `json:"due_date,omitempty" db:"due_date"`

	// Tags are free-form labels, stored as a JSON array.
	Tags []string `json:"tags" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AssignedTo reports whether the task is currently assigned to userID.
func (t Task) AssignedTo(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}
