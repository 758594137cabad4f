// Package sync keeps local caches in step with external systems and runs
// the periodic maintenance jobs of the store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/source"
)

// fetchTimeout is the maximum time allowed for one user's fetch.
const fetchTimeout = 30 * time.Second

// IssueSource looks up the open issues assigned to an identifier in an
// external tracker. An identifier the tracker does not know yields an empty
// slice or an error; both are handled by trying the next identifier.
type IssueSource interface {
	FetchIssues(ctx context.Context, identifier string) ([]model.ExternalIssue, error)
}

// IssueStore is the slice of the store the issue syncer writes to.
type IssueStore interface {
	GetUsersWithEmail(ctx context.Context) ([]model.User, error)
	UpsertCachedIssue(ctx context.Context, userID string, issue model.ExternalIssue, syncedAt time.Time) (bool, error)
	CreateNotification(ctx context.Context, n model.Notification) (*model.Notification, error)
}

// Publisher pushes a live payload to a user's open streams.
type Publisher interface {
	Send(userID string, payload any)
}

// UserResult is the outcome of syncing one user.
type UserResult struct {
	UserID string
	// Identifier is the value that produced the issues, empty when none did.
	Identifier string
	Fetched    int
	New        int
	Err        error
}

// OK reports whether the user synced without error.
func (r UserResult) OK() bool { return r.Err == nil }

// Report summarizes one sync run.
type Report struct {
	Started  time.Time
	Finished time.Time
	Users    []UserResult
}

// Failed returns how many users could not be synced.
func (r *Report) Failed() int {
	n := 0
	for _, u := range r.Users {
		if u.Err != nil {
			n++
		}
	}
	return n
}

// Fetched returns the number of issues fetched across all users.
func (r *Report) Fetched() int {
	n := 0
	for _, u := range r.Users {
		n += u.Fetched
	}
	return n
}

// New returns the number of cache rows created across all users.
func (r *Report) New() int {
	n := 0
	for _, u := range r.Users {
		n += u.New
	}
	return n
}

// IssueSyncer refreshes every user's cached issues from an IssueSource.
type IssueSyncer struct {
	store     IssueStore
	source    IssueSource
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// IssueSyncerOption customizes an IssueSyncer.
type IssueSyncerOption func(*IssueSyncer)

// WithPublisher makes the syncer announce newly cached issues to the
// user's live streams.
func WithPublisher(p Publisher) IssueSyncerOption {
	return func(s *IssueSyncer) { s.publisher = p }
}

// withClock replaces time.Now.
func withClock(now func() time.Time) IssueSyncerOption {
	return func(s *IssueSyncer) { s.now = now }
}

// NewIssueSyncer creates a syncer. If logger is nil, output is discarded.
func NewIssueSyncer(st IssueStore, src IssueSource, logger *log.Logger, opts ...IssueSyncerOption) *IssueSyncer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &IssueSyncer{
		store:  st,
		source: src,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sync pass over every user with an email address. Users
// are processed one after another. A failing user, including one rejected
// by the tracker's authentication, is recorded in the report and skipped.
// Nothing is ever deleted from the cache: an empty fetch leaves existing
// rows untouched.
func (s *IssueSyncer) Run(ctx context.Context) (*Report, error) {
	report := &Report{Started: s.now()}
	defer func() { report.Finished = s.now() }()

	users, err := s.store.GetUsersWithEmail(ctx)
	if err != nil {
		return report, fmt.Errorf("listing users: %w", err)
	}

	s.logger.Printf("Issue sync started for %d users", len(users))

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := s.syncUser(ctx, u)
		report.Users = append(report.Users, res)

		if res.Err != nil {
			s.logger.Printf("WARNING: issue sync failed for user %s: %v", u.Username, res.Err)
			continue
		}
		if res.Fetched > 0 {
			s.logger.Printf("Synced %d issues for %s via %s (%d new)", res.Fetched, u.Username, res.Identifier, res.New)
		}
	}

	s.logger.Printf("Issue sync complete: users=%d (failed=%d), issues=%d (new=%d)",
		len(report.Users), report.Failed(), report.Fetched(), report.New())
	return report, nil
}

// syncUser fetches and caches one user's issues. Identifiers are tried most
// specific first; the first that returns issues wins. The user fails only if
// every identifier errored.
func (s *IssueSyncer) syncUser(ctx context.Context, u model.User) UserResult {
	res := UserResult{UserID: u.ID}

	ids := u.IssueIdentifiers()
	var (
		issues []model.ExternalIssue
		errs   []error
	)
	for _, id := range ids {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		got, err := s.source.FetchIssues(fetchCtx, id)
		cancel()

		if err != nil {
			// The remaining identifiers would be rejected with the same token.
			if source.IsAuthError(err) {
				res.Err = err
				return res
			}
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if len(got) > 0 {
			issues = got
			res.Identifier = id
			break
		}
	}
	if len(errs) > 0 && len(errs) == len(ids) {
		res.Err = fmt.Errorf("fetching issues: %w", errors.Join(errs...))
		return res
	}

	res.Fetched = len(issues)
	syncedAt := s.now()
	var newKeys []string
	for _, issue := range issues {
		inserted, err := s.store.UpsertCachedIssue(ctx, u.ID, issue, syncedAt)
		if err != nil {
			if res.Err == nil {
				res.Err = fmt.Errorf("caching issue %s: %w", issue.Key, err)
			}
			continue
		}
		if inserted {
			res.New++
			newKeys = append(newKeys, issue.Key)
		}
	}

	if len(newKeys) > 0 {
		s.announce(ctx, u.ID, newKeys)
	}
	return res
}

// announce records a notification for newly cached issues and pushes it to
// the user's open streams.
func (s *IssueSyncer) announce(ctx context.Context, userID string, keys []string) {
	listed := keys
	if len(listed) > 5 {
		listed = listed[:5]
	}
	msg := strings.Join(listed, ", ")
	if len(keys) > len(listed) {
		msg += fmt.Sprintf(" and %d more", len(keys)-len(listed))
	}

	title := "New Jira issue"
	if len(keys) > 1 {
		title = fmt.Sprintf("%d new Jira issues", len(keys))
	}

	n, err := s.store.CreateNotification(ctx, model.Notification{
		UserID:  userID,
		Title:   title,
		Message: msg,
		Type:    model.NotificationNewIssues,
	})
	if err != nil {
		s.logger.Printf("WARNING: recording issue notification for %s: %v", userID, err)
		return
	}
	if s.publisher != nil {
		s.publisher.Send(userID, n)
	}
}
