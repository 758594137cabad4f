package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskhub/internal/model"
)

const notificationColumns = "id, user_id, title, message, type, read, created_at"

// CreateNotification inserts a new notification record and returns it with
// its generated ID and timestamp.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n model.Notification) (*model.Notification, error) {
	if n.UserID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Type == "" {
		n.Type = model.NotificationSystem
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type,
		boolToInt(n.Read), n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	return &n, nil
}

// GetNotifications retrieves a user's notifications, newest first.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	userID string,
	filter NotificationFilter,
) ([]model.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	if filter.UnreadOnly {
		query += " AND read = 0"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	notifications := []model.Notification{}
	if err := s.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, fmt.Errorf("querying notifications for %s: %w", userID, err)
	}
	return notifications, nil
}

// MarkNotificationRead marks a single notification owned by userID as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return notFoundIfNoRows(rows, "notification", id)
}

// MarkAllNotificationsRead marks every unread notification of userID as
// read and returns how many changed.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0", userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read for %s: %w", userID, err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes a notification owned by userID.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return notFoundIfNoRows(rows, "notification", id)
}
