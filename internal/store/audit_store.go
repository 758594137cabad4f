package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskhub/internal/model"
)

// AppendAudit records a mutation in the audit log.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == "" {
		entry.Details = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action, entry.EntityType,
		entry.EntityID, entry.Details, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending audit entry for %s %s: %w", entry.EntityType, entry.EntityID, err)
	}
	return nil
}

// GetAuditEntries returns the audit trail of one entity, oldest first.
func (s *SQLiteStore) GetAuditEntries(
	ctx context.Context,
	entityType, entityID string,
) ([]model.AuditEntry, error) {
	entries := []model.AuditEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, action, entity_type, entity_id, details, created_at
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log for %s %s: %w", entityType, entityID, err)
	}
	return entries, nil
}

// DeleteAuditBefore removes audit entries created strictly before cutoff
// and reports how many were deleted.
func (s *SQLiteStore) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_log WHERE created_at < ?", cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting audit entries before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return result.RowsAffected()
}
