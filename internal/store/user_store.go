package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskhub/internal/model"
)

const userColumns = "id, username, display_name, email, api_token, created_at"

// CreateUser inserts a new user. The ID and API token are generated when
// empty. The stored user, token included, is returned.
func (s *SQLiteStore) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return nil, &ValidationError{Field: "username", Message: "must not be empty"}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.APIToken == "" {
		user.APIToken = strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, api_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.DisplayName, user.Email, user.APIToken, user.CreatedAt,
	)
	if isConstraintError(err, "UNIQUE") {
		return nil, fmt.Errorf("user %s: %w", user.Username, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", user.Username, err)
	}
	return &user, nil
}

// GetUserByID retrieves a single user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &u, nil
}

// GetUserByToken resolves an API token to its user.
func (s *SQLiteStore) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", ErrNotFound)
	}
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE api_token = ?", token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user for token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by token: %w", err)
	}
	return &u, nil
}

// GetUserByUsername retrieves a single user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE username = ?", strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", username, err)
	}
	return &u, nil
}

// GetUsers retrieves all users ordered by username.
func (s *SQLiteStore) GetUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.SelectContext(ctx, &users, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return users, nil
}

// GetUsersWithEmail retrieves users that have a contact email on file.
func (s *SQLiteStore) GetUsersWithEmail(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users WHERE email != '' ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("querying users with email: %w", err)
	}
	return users, nil
}
