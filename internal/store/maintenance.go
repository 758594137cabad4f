package store

import (
	"context"
	"fmt"
)

// Compact reclaims free pages and refreshes the query planner statistics.
func (s *SQLiteStore) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuuming database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyzing database: %w", err)
	}
	return nil
}
