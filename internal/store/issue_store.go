package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskhub/internal/model"
)

const cachedIssueColumns = `id, user_id, issue_key, external_id, summary, description,
	status, priority, assignee, issue_type, url, raw_data, last_synced, created_at`

// UpsertCachedIssue stores issue for userID keyed by (userID, issue.Key).
// An existing row keeps its ID and created_at and has every other field
// overwritten. It reports whether a new row was inserted.
func (s *SQLiteStore) UpsertCachedIssue(
	ctx context.Context,
	userID string,
	issue model.ExternalIssue,
	syncedAt time.Time,
) (bool, error) {
	if userID == "" {
		return false, &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if issue.Key == "" {
		return false, &ValidationError{Field: "issue_key", Message: "must not be empty"}
	}
	syncedAt = syncedAt.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.GetContext(ctx, &existingID,
		"SELECT id FROM cached_issues WHERE user_id = ? AND issue_key = ?",
		userID, issue.Key,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cached_issues (`+cachedIssueColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), userID, issue.Key, issue.ID, issue.Summary, issue.Description,
			issue.Status, issue.Priority, issue.Assignee, issue.IssueType, issue.URL, issue.Raw,
			syncedAt, syncedAt,
		)
		if err != nil {
			return false, fmt.Errorf("inserting cached issue %s: %w", issue.Key, err)
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("looking up cached issue %s: %w", issue.Key, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cached_issues SET
			external_id = ?, summary = ?, description = ?, status = ?,
			priority = ?, assignee = ?, issue_type = ?, url = ?,
			raw_data = ?, last_synced = ?
		WHERE id = ?`,
		issue.ID, issue.Summary, issue.Description, issue.Status,
		issue.Priority, issue.Assignee, issue.IssueType, issue.URL,
		issue.Raw, syncedAt,
		existingID,
	)
	if err != nil {
		return false, fmt.Errorf("updating cached issue %s: %w", issue.Key, err)
	}
	return false, tx.Commit()
}

// GetCachedIssues returns every cached issue of userID ordered by key.
func (s *SQLiteStore) GetCachedIssues(ctx context.Context, userID string) ([]model.CachedIssue, error) {
	issues := []model.CachedIssue{}
	err := s.db.SelectContext(ctx, &issues,
		"SELECT "+cachedIssueColumns+" FROM cached_issues WHERE user_id = ? ORDER BY issue_key",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cached issues for %s: %w", userID, err)
	}
	return issues, nil
}

// GetCachedIssue returns one cached issue by (userID, issueKey).
func (s *SQLiteStore) GetCachedIssue(ctx context.Context, userID, issueKey string) (*model.CachedIssue, error) {
	var issue model.CachedIssue
	err := s.db.GetContext(ctx, &issue,
		"SELECT "+cachedIssueColumns+" FROM cached_issues WHERE user_id = ? AND issue_key = ?",
		userID, issueKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cached issue %s: %w", issueKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached issue %s: %w", issueKey, err)
	}
	return &issue, nil
}
