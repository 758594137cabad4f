package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/taskhub/internal/model"
)

// GetDashboardStats aggregates task, project, notification, and cache
// counts as seen by userID. LiveConnections is left for the caller.
func (s *SQLiteStore) GetDashboardStats(
	ctx context.Context,
	userID string,
	now time.Time,
) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{
		ByStatus:   map[string]int{},
		ByPriority: map[int]int{},
	}

	var byStatus []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &byStatus,
		"SELECT status, COUNT(*) AS n FROM tasks GROUP BY status"); err != nil {
		return nil, fmt.Errorf("counting tasks by status: %w", err)
	}
	for _, row := range byStatus {
		stats.ByStatus[row.Status] = row.Count
		stats.TotalTasks += row.Count
	}

	var byPriority []struct {
		Priority int `db:"priority"`
		Count    int `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &byPriority,
		"SELECT priority, COUNT(*) AS n FROM tasks GROUP BY priority"); err != nil {
		return nil, fmt.Errorf("counting tasks by priority: %w", err)
	}
	for _, row := range byPriority {
		stats.ByPriority[row.Priority] = row.Count
	}

	counts := []struct {
		dest  *int
		query string
		args  []interface{}
	}{
		{&stats.AssignedToMe, "SELECT COUNT(*) FROM tasks WHERE assignee_id = ? AND status != 'done'", []interface{}{userID}},
		{&stats.Overdue, "SELECT COUNT(*) FROM tasks WHERE due_date IS NOT NULL AND due_date < ? AND status != 'done'", []interface{}{now.UTC()}},
		{&stats.Projects, "SELECT COUNT(*) FROM projects WHERE archived = 0", nil},
		{&stats.UnreadNotifications, "SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0", []interface{}{userID}},
		{&stats.CachedIssues, "SELECT COUNT(*) FROM cached_issues WHERE user_id = ?", []interface{}{userID}},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dest, c.query, c.args...); err != nil {
			return nil, fmt.Errorf("computing dashboard stats: %w", err)
		}
	}

	return stats, nil
}
