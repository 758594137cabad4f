package testutil

import (
	"context"
	"testing"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestUser creates a user with the given username and email in s and
// fails the test on error.
func NewTestUser(t *testing.T, s *store.SQLiteStore, username, email string) *model.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), model.User{
		Username: username,
		Email:    email,
	})
	if err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return u
}
