package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/nhle/taskhub/internal/httpapi"
	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/scheduler"
	"github.com/nhle/taskhub/internal/sync"
)

// useTempConfig points configPath at a config whose database lives in a
// temporary directory.
func useTempConfig(t *testing.T, extra string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "database:\n  path: " + filepath.Join(dir, "data", "taskhub.db") + "\n" + extra
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
}

func TestNewSchedulerRegistersJobs(t *testing.T) {
	useTempConfig(t, "")

	rt, err := openRuntime()
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.Close()

	sched, err := rt.newScheduler(nil)
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}

	want := map[string]string{
		httpapi.IssueSyncJob: "every 15m0s",
		jobAuditRetention:    "daily at 03:00",
		jobDBCompact:         "weekly on Sunday at 04:00",
	}
	status := sched.Status()
	if len(status) != len(want) {
		t.Fatalf("registered %d jobs, want %d", len(status), len(want))
	}
	for _, st := range status {
		if want[st.Name] != st.Schedule {
			t.Errorf("job %s schedule = %q, want %q", st.Name, st.Schedule, want[st.Name])
		}
	}

	// Without Jira configured the sync job is a no-op, and the maintenance
	// jobs run against the real database.
	ctx := context.Background()
	for _, name := range []string{httpapi.IssueSyncJob, jobAuditRetention, jobDBCompact} {
		if err := sched.Run(ctx, name); err != nil {
			t.Errorf("Run(%s): %v", name, err)
		}
	}
	if err := sched.Run(ctx, "nope"); !errors.Is(err, scheduler.ErrUnknownJob) {
		t.Errorf("unknown job err = %v", err)
	}
}

func TestIssueSyncerFromLiteralToken(t *testing.T) {
	useTempConfig(t, "jira:\n  base_url: https://jira.example.com\n  token_ref: literal-token\n")

	rt, err := openRuntime()
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.Close()

	syncer, err := rt.issueSyncer(nil)
	if err != nil {
		t.Fatalf("issueSyncer: %v", err)
	}
	if syncer == nil {
		t.Fatal("expected a syncer when jira.base_url is set")
	}
}

func TestCheckJira(t *testing.T) {
	jiraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/myself" || r.Header.Get("Authorization") != "Bearer literal-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"name":"svc","displayName":"Sync Bot","active":true}`))
	}))
	defer jiraSrv.Close()

	useTempConfig(t, "jira:\n  base_url: "+jiraSrv.URL+"\n  token_ref: literal-token\n")
	rt, err := openRuntime()
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.Close()

	name, err := rt.checkJira(context.Background())
	if err != nil {
		t.Fatalf("checkJira: %v", err)
	}
	if name != "Sync Bot" {
		t.Errorf("display name = %q", name)
	}
}

func TestCheckJiraUnconfigured(t *testing.T) {
	useTempConfig(t, "")
	rt, err := openRuntime()
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.Close()

	if name, err := rt.checkJira(context.Background()); name != "" || err != nil {
		t.Errorf("checkJira = %q, %v; want empty", name, err)
	}
}

func TestRotateOnHangupEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hup := make(chan os.Signal, 1)
	var rotations atomic.Int32
	done := make(chan struct{})
	go func() {
		rotateOnHangup(ctx, hup, func() error {
			rotations.Add(1)
			return nil
		}, log.New(io.Discard, "", 0))
		close(done)
	}()

	hup <- syscall.SIGHUP
	deadline := time.Now().Add(time.Second)
	for rotations.Load() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("SIGHUP did not rotate the log")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hangup loop still running after the server context ended")
	}
}

func TestLocalURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://localhost:8080",
		"127.0.0.1:9000": "http://127.0.0.1:9000",
	}
	for addr, want := range tests {
		if got := localURL(addr); got != want {
			t.Errorf("localURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestRenderReport(t *testing.T) {
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	out := renderReport(&sync.Report{
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Users: []sync.UserResult{
			{UserID: "u1", Identifier: "alice@example.com", Fetched: 3, New: 1},
			{UserID: "u2", Err: errors.New("all identifiers failed")},
		},
	})

	for _, want := range []string{"alice@example.com", "all identifiers failed", "2 users, 3 issues fetched, 1 new, 1 failed in 1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStats(t *testing.T) {
	out := renderStats(&model.User{DisplayName: "Alice"}, &model.DashboardStats{
		TotalTasks: 4,
		ByStatus:   map[string]int{model.StatusTodo: 3, model.StatusDone: 1},
		ByPriority: map[int]int{1: 1, 3: 3},
		Overdue:    2,
	})
	for _, want := range []string{"Dashboard: Alice", "todo 3", "done 1", "P1:1", "P3:3"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}
