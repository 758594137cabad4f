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

const projectColumns = "id, name, description, owner_id, members, archived, created_at, updated_at"

// CreateProject inserts a new project. The owner is always a member.
func (s *SQLiteStore) CreateProject(ctx context.Context, project model.Project) (*model.Project, error) {
	project.Name = strings.TrimSpace(project.Name)
	if project.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if project.OwnerID == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "must not be empty"}
	}
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	project.Members = withMember(project.Members, project.OwnerID)
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	members, err := marshalStrings(project.Members)
	if err != nil {
		return nil, fmt.Errorf("marshaling members: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Description, project.OwnerID,
		members, boolToInt(project.Archived), project.CreatedAt, project.UpdatedAt,
	)
	if isConstraintError(err, "UNIQUE") {
		return nil, fmt.Errorf("project %s: %w", project.Name, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return &project, nil
}

// UpdateProject updates an existing project's mutable fields.
func (s *SQLiteStore) UpdateProject(ctx context.Context, project model.Project) (*model.Project, error) {
	project.Name = strings.TrimSpace(project.Name)
	if project.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if project.OwnerID != "" {
		project.Members = withMember(project.Members, project.OwnerID)
	}
	project.UpdatedAt = time.Now().UTC()

	members, err := marshalStrings(project.Members)
	if err != nil {
		return nil, fmt.Errorf("marshaling members: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET
			name = ?, description = ?, members = ?, archived = ?, updated_at = ?
		WHERE id = ?`,
		project.Name, project.Description, members,
		boolToInt(project.Archived), project.UpdatedAt,
		project.ID,
	)
	if isConstraintError(err, "UNIQUE") {
		return nil, fmt.Errorf("project %s: %w", project.Name, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("updating project %s: %w", project.ID, err)
	}
	rows, _ := result.RowsAffected()
	if err := notFoundIfNoRows(rows, "project", project.ID); err != nil {
		return nil, err
	}
	return s.GetProjectByID(ctx, project.ID)
}

// DeleteProject removes a project. Associated tasks get project_id set to NULL.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	return notFoundIfNoRows(rows, "project", id)
}

// GetProjectByID retrieves a single project by ID.
func (s *SQLiteStore) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	return &project, nil
}

// GetProjects retrieves all projects, optionally including archived ones.
func (s *SQLiteStore) GetProjects(ctx context.Context, includeArchived bool) ([]model.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	if !includeArchived {
		query += " WHERE archived = 0"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row sqlx.ColScanner) (model.Project, error) {
	var (
		p       model.Project
		members string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.OwnerID,
		&members, &p.Archived, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return model.Project{}, err
	}
	p.Members, err = unmarshalStrings(members)
	if err != nil {
		return model.Project{}, fmt.Errorf("unmarshaling members: %w", err)
	}
	return p, nil
}

// withMember returns members with id appended if it is not already present.
func withMember(members []string, id string) []string {
	for _, m := range members {
		if m == id {
			return members
		}
	}
	return append(members, id)
}
