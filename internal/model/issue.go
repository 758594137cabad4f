package model

import "time"

// ExternalIssue is a work item as returned by an external issue tracker.
type ExternalIssue struct {
	Key         string
	ID          string
	Summary     string
	Description string
	Status      string
	Priority    string
	Assignee    string
	IssueType   string
	URL         string

	// Raw is the original JSON payload from the tracker.
	Raw string
}

// CachedIssue is a local, denormalized copy of an ExternalIssue held for
// one user. It is unique on (UserID, IssueKey).
type CachedIssue struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	IssueKey    string    `json:"issue_key" db:"issue_key"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	Summary     string    `json:"summary" db:"summary"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	Priority    string    `json:"priority" db:"priority"`
	Assignee    string    `json:"assignee" db:"assignee"`
	IssueType   string    `json:"issue_type" db:"issue_type"`
	URL         string    `json:"url" db:"url"`
	RawData     string    `json:"-" db:"raw_data"`
	LastSynced  time.Time `json:"last_synced" db:"last_synced"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
