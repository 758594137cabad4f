package model

import (
	"strings"
	"time"
)

// User is an account that can own, create, and be assigned tasks.
type User struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Email       string    `json:"email" db:"email"`
	APIToken    string    `json:"-" db:"api_token"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// IssueIdentifiers returns the identifiers used to look the user up in an
// external issue tracker, most specific first: the email address, then its
// local part.
func (u User) IssueIdentifiers() []string {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return nil
	}
	ids := []string{email}
	if at := strings.Index(email, "@"); at > 0 {
		ids = append(ids, email[:at])
	}
	return ids
}
