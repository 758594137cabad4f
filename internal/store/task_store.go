package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/taskhub/internal/model"
)

const taskColumns = `id, title, description, status, priority, project_id,
	creator_id, assignee_id, due_date, tags, created_at, updated_at`

// normalizeTask validates and fills defaults shared by create and update.
func normalizeTask(task *model.Task) error {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if task.Status == "" {
		task.Status = model.StatusTodo
	}
	if !model.ValidStatus(task.Status) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", task.Status)}
	}
	if task.Priority == 0 {
		task.Priority = model.PriorityMedium
	}
	if task.Priority < model.PriorityCritical || task.Priority > model.PriorityLowest {
		return &ValidationError{Field: "priority", Message: "must be between 1 and 5"}
	}
	if task.ProjectID != nil && *task.ProjectID == "" {
		task.ProjectID = nil
	}
	if task.AssigneeID != nil && *task.AssigneeID == "" {
		task.AssigneeID = nil
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	return nil
}

// CreateTask inserts a new task. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	if err := normalizeTask(&task); err != nil {
		return nil, err
	}
	if task.CreatorID == "" {
		return nil, &ValidationError{Field: "creator_id", Message: "must not be empty"}
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	tags, err := marshalStrings(task.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshaling tags for task %s: %w", task.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Status, task.Priority, task.ProjectID,
		task.CreatorID, task.AssigneeID, task.DueDate, tags, task.CreatedAt, task.UpdatedAt,
	)
	if isConstraintError(err, "FOREIGN KEY") {
		return nil, &ValidationError{Field: "project_id", Message: "project or assignee does not exist"}
	}
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return &task, nil
}

// UpdateTask overwrites the mutable fields of an existing task by ID.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task model.Task) (*model.Task, error) {
	if err := normalizeTask(&task); err != nil {
		return nil, err
	}
	task.UpdatedAt = time.Now().UTC()

	tags, err := marshalStrings(task.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshaling tags for task %s: %w", task.ID, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?,
			project_id = ?, assignee_id = ?, due_date = ?, tags = ?,
			updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, task.Status, task.Priority,
		task.ProjectID, task.AssigneeID, task.DueDate, tags,
		task.UpdatedAt,
		task.ID,
	)
	if isConstraintError(err, "FOREIGN KEY") {
		return nil, &ValidationError{Field: "project_id", Message: "project or assignee does not exist"}
	}
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", task.ID, err)
	}
	rows, _ := result.RowsAffected()
	if err := notFoundIfNoRows(rows, "task", task.ID); err != nil {
		return nil, err
	}
	return s.GetTaskByID(ctx, task.ID)
}

// DeleteTask removes a task by ID.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return notFoundIfNoRows(rows, "task", id)
}

// GetTaskByID retrieves a single task by its ID.
func (s *SQLiteStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return &task, nil
}

// GetTasks retrieves tasks matching the provided filter options.
func (s *SQLiteStore) GetTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditions = append(conditions, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.ProjectID != nil {
		conditions = append(conditions, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.AssigneeID != nil {
		conditions = append(conditions, "assignee_id = ?")
		args = append(args, *filter.AssigneeID)
	}
	if filter.CreatorID != nil {
		conditions = append(conditions, "creator_id = ?")
		args = append(args, *filter.CreatorID)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(title LIKE ? OR description LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := "updated_at"
	allowedSorts := map[string]bool{
		"title":      true,
		"priority":   true,
		"due_date":   true,
		"created_at": true,
		"updated_at": true,
	}
	if allowedSorts[filter.SortBy] {
		sortBy = filter.SortBy
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", sortBy, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// scanTask scans a task from either a *sqlx.Row or *sqlx.Rows.
func scanTask(row sqlx.ColScanner) (model.Task, error) {
	var (
		task model.Task
		tags string
	)

	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority, &task.ProjectID,
		&task.CreatorID, &task.AssigneeID, &task.DueDate, &tags, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	task.Tags, err = unmarshalStrings(tags)
	if err != nil {
		return model.Task{}, fmt.Errorf("unmarshaling tags: %w", err)
	}
	return task, nil
}
