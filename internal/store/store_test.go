package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/store"
	"github.com/nhle/taskhub/tests/testutil"
)

func TestMigrationsApplyAll(t *testing.T) {
	s := testutil.NewTestStore(t)

	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("schema version = %d, want 3", v)
	}
}

func TestCreateUserGeneratesToken(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Username: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.APIToken == "" {
		t.Fatalf("expected generated id and token, got %+v", u)
	}
	if u.DisplayName != "alice" {
		t.Errorf("DisplayName = %q, want default to username", u.DisplayName)
	}

	got, err := s.GetUserByToken(ctx, u.APIToken)
	if err != nil {
		t.Fatalf("GetUserByToken: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("token resolved to %s, want %s", got.ID, u.ID)
	}

	if _, err := s.GetUserByToken(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown token err = %v, want ErrNotFound", err)
	}
	if _, err := s.CreateUser(ctx, model.User{Username: "  "}); !store.IsValidation(err) {
		t.Errorf("blank username err = %v, want validation error", err)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || byName.ID != u.ID {
		t.Errorf("GetUserByUsername = %+v, %v", byName, err)
	}
	if _, err := s.GetUserByUsername(ctx, "bob"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown username err = %v, want ErrNotFound", err)
	}
}

func TestGetUsersWithEmail(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.NewTestUser(t, s, "alice", "alice@example.com")
	testutil.NewTestUser(t, s, "bob", "")

	users, err := s.GetUsersWithEmail(context.Background())
	if err != nil {
		t.Fatalf("GetUsersWithEmail: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alice" {
		t.Errorf("users = %+v, want only alice", users)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")
	bob := testutil.NewTestUser(t, s, "bob", "")

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	task, err := s.CreateTask(ctx, model.Task{
		Title:     "Write report",
		CreatorID: alice.ID,
		DueDate:   &due,
		Tags:      []string{"q3", "finance"},
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != model.StatusTodo || task.Priority != model.PriorityMedium {
		t.Errorf("defaults not applied: status=%q priority=%d", task.Status, task.Priority)
	}

	task.AssigneeID = &bob.ID
	task.Status = model.StatusInProgress
	updated, err := s.UpdateTask(ctx, *task)
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if !updated.AssignedTo(bob.ID) {
		t.Errorf("assignee = %v, want %s", updated.AssigneeID, bob.ID)
	}
	if len(updated.Tags) != 2 || updated.Tags[1] != "finance" {
		t.Errorf("tags = %v", updated.Tags)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Errorf("due date = %v, want %v", updated.DueDate, due)
	}

	assigned, err := s.GetTasks(ctx, store.TaskFilter{AssigneeID: &bob.ID})
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(assigned) != 1 {
		t.Errorf("tasks assigned to bob = %d, want 1", len(assigned))
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTaskByID(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTaskByID after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteTask err = %v, want ErrNotFound", err)
	}
}

func TestTaskValidation(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")

	tests := []struct {
		name string
		task model.Task
	}{
		{"empty title", model.Task{Title: " ", CreatorID: alice.ID}},
		{"bad status", model.Task{Title: "x", Status: "blocked", CreatorID: alice.ID}},
		{"bad priority", model.Task{Title: "x", Priority: 9, CreatorID: alice.ID}},
		{"no creator", model.Task{Title: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateTask(ctx, tt.task); !store.IsValidation(err) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestProjectMembersIncludeOwner(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")

	p, err := s.CreateProject(ctx, model.Project{Name: "Platform", OwnerID: alice.ID})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(p.Members) != 1 || p.Members[0] != alice.ID {
		t.Errorf("members = %v, want [owner]", p.Members)
	}

	p.Archived = true
	if _, err := s.UpdateProject(ctx, *p); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	active, err := s.GetProjects(ctx, false)
	if err != nil {
		t.Fatalf("GetProjects: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active projects = %d, want 0", len(active))
	}
	all, _ := s.GetProjects(ctx, true)
	if len(all) != 1 {
		t.Errorf("all projects = %d, want 1", len(all))
	}
}

func TestDeleteProjectUnfilesTasks(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")

	p, err := s.CreateProject(ctx, model.Project{Name: "Infra", OwnerID: alice.ID})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	task, err := s.CreateTask(ctx, model.Task{Title: "Rotate keys", CreatorID: alice.ID, ProjectID: &p.ID})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	got, err := s.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if got.ProjectID != nil {
		t.Errorf("project_id = %v, want nil", *got.ProjectID)
	}
}

func TestNotificationsReadFlow(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")
	bob := testutil.NewTestUser(t, s, "bob", "")

	var ids []string
	for i, title := range []string{"one", "two", "three"} {
		n, err := s.CreateNotification(ctx, model.Notification{
			UserID:    alice.ID,
			Title:     title,
			Type:      model.NotificationTaskAssigned,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
		if n.Read {
			t.Errorf("new notification should be unread")
		}
		ids = append(ids, n.ID)
	}

	all, err := s.GetNotifications(ctx, alice.ID, store.NotificationFilter{})
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(all) != 3 || all[0].Title != "three" {
		t.Fatalf("notifications = %+v, want newest first", all)
	}

	if err := s.MarkNotificationRead(ctx, bob.ID, ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("marking someone else's notification err = %v, want ErrNotFound", err)
	}
	if err := s.MarkNotificationRead(ctx, alice.ID, ids[0]); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	unread, _ := s.GetNotifications(ctx, alice.ID, store.NotificationFilter{UnreadOnly: true})
	if len(unread) != 2 {
		t.Errorf("unread = %d, want 2", len(unread))
	}

	n, err := s.MarkAllNotificationsRead(ctx, alice.ID)
	if err != nil {
		t.Fatalf("MarkAllNotificationsRead: %v", err)
	}
	if n != 2 {
		t.Errorf("marked %d, want 2", n)
	}

	if err := s.DeleteNotification(ctx, alice.ID, ids[1]); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	all, _ = s.GetNotifications(ctx, alice.ID, store.NotificationFilter{})
	if len(all) != 2 {
		t.Errorf("after delete = %d, want 2", len(all))
	}
}

func TestUpsertCachedIssueIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "alice@example.com")

	first := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	inserted, err := s.UpsertCachedIssue(ctx, alice.ID, model.ExternalIssue{
		Key: "OPS-1", ID: "1001", Summary: "old summary", Status: "Open",
	}, first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted {
		t.Errorf("first upsert should insert")
	}
	before, err := s.GetCachedIssue(ctx, alice.ID, "OPS-1")
	if err != nil {
		t.Fatalf("GetCachedIssue: %v", err)
	}

	second := first.Add(15 * time.Minute)
	inserted, err = s.UpsertCachedIssue(ctx, alice.ID, model.ExternalIssue{
		Key: "OPS-1", ID: "1001", Summary: "new summary", Status: "In Progress",
	}, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Errorf("second upsert should update in place")
	}

	issues, err := s.GetCachedIssues(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetCachedIssues: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("cached rows = %d, want 1", len(issues))
	}
	got := issues[0]
	if got.Summary != "new summary" || got.Status != "In Progress" {
		t.Errorf("second upsert fields did not win: %+v", got)
	}
	if got.ID != before.ID {
		t.Errorf("row id changed from %s to %s", before.ID, got.ID)
	}
	if !got.LastSynced.After(before.LastSynced) {
		t.Errorf("last_synced %v not after %v", got.LastSynced, before.LastSynced)
	}
}

func TestCachedIssuesAreScopedPerUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "alice@example.com")
	bob := testutil.NewTestUser(t, s, "bob", "bob@example.com")

	now := time.Now()
	for _, uid := range []string{alice.ID, bob.ID} {
		if _, err := s.UpsertCachedIssue(ctx, uid, model.ExternalIssue{Key: "OPS-7"}, now); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	for _, uid := range []string{alice.ID, bob.ID} {
		issues, _ := s.GetCachedIssues(ctx, uid)
		if len(issues) != 1 {
			t.Errorf("user %s has %d rows, want 1", uid, len(issues))
		}
	}
}

func TestDeleteAuditBefore(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	ages := []time.Duration{100 * 24 * time.Hour, 91 * 24 * time.Hour, time.Hour}
	for i, age := range ages {
		err := s.AppendAudit(ctx, model.AuditEntry{
			Action:     model.AuditCreate,
			EntityType: "task",
			EntityID:   "t1",
			CreatedAt:  now.Add(-age),
		})
		if err != nil {
			t.Fatalf("AppendAudit %d: %v", i, err)
		}
	}

	n, err := s.DeleteAuditBefore(ctx, now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteAuditBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	n, err = s.DeleteAuditBefore(ctx, now.Add(-90*24*time.Hour))
	if err != nil || n != 0 {
		t.Errorf("second sweep = (%d, %v), want (0, nil)", n, err)
	}

	left, _ := s.GetAuditEntries(ctx, "task", "t1")
	if len(left) != 1 {
		t.Errorf("remaining entries = %d, want 1", len(left))
	}
}

func TestDashboardStats(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")
	bob := testutil.NewTestUser(t, s, "bob", "")

	past := time.Now().Add(-24 * time.Hour)
	mustTask := func(task model.Task) {
		t.Helper()
		if _, err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	mustTask(model.Task{Title: "a", CreatorID: alice.ID, AssigneeID: &bob.ID, DueDate: &past})
	mustTask(model.Task{Title: "b", CreatorID: alice.ID, AssigneeID: &bob.ID, Status: model.StatusDone, DueDate: &past})
	mustTask(model.Task{Title: "c", CreatorID: bob.ID, Priority: model.PriorityCritical})

	if _, err := s.CreateNotification(ctx, model.Notification{UserID: bob.ID, Title: "hi"}); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	stats, err := s.GetDashboardStats(ctx, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("GetDashboardStats: %v", err)
	}
	if stats.TotalTasks != 3 {
		t.Errorf("TotalTasks = %d, want 3", stats.TotalTasks)
	}
	if stats.ByStatus[model.StatusTodo] != 2 || stats.ByStatus[model.StatusDone] != 1 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
	if stats.ByPriority[model.PriorityCritical] != 1 {
		t.Errorf("ByPriority = %v", stats.ByPriority)
	}
	if stats.AssignedToMe != 1 {
		t.Errorf("AssignedToMe = %d, want 1", stats.AssignedToMe)
	}
	if stats.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", stats.Overdue)
	}
	if stats.UnreadNotifications != 1 {
		t.Errorf("UnreadNotifications = %d, want 1", stats.UnreadNotifications)
	}
}

func TestCompact(t *testing.T) {
	s := testutil.NewTestStore(t)
	if err := s.Compact(context.Background()); err != nil {
		t.Fatalf("Compact: %v", err)
	}
}

func TestFileStoreReopen(t *testing.T) {
	path := t.TempDir() + "/taskhub.db"

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	u, err := s.CreateUser(context.Background(), model.User{Username: "alice"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	s.Close()

	s, err = store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s.Close()

	got, err := s.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUserByID after reopen: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("username = %q", got.Username)
	}
}

func TestDuplicateNamesConflict(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, s, "alice", "")

	if _, err := s.CreateUser(ctx, model.User{Username: "alice"}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate user err = %v, want ErrConflict", err)
	}

	if _, err := s.CreateProject(ctx, model.Project{Name: "Ops", OwnerID: alice.ID}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.CreateProject(ctx, model.Project{Name: "Ops", OwnerID: alice.ID}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate project err = %v, want ErrConflict", err)
	}
}

func TestTaskWithMissingProjectIsInvalid(t *testing.T) {
	s := testutil.NewTestStore(t)
	alice := testutil.NewTestUser(t, s, "alice", "")
	missing := "no-such-project"

	_, err := s.CreateTask(context.Background(), model.Task{
		Title:     "orphan",
		CreatorID: alice.ID,
		ProjectID: &missing,
	})
	if !store.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}
