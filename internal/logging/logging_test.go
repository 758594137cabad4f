package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhle/taskhub/internal/model"
)

func TestLoggerWritesPrefixedLinesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskhub.log")

	out, err := New(model.LoggingConfig{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out.Logger("scheduler").Printf("job %s finished", "issue_sync")
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[scheduler] ") {
		t.Errorf("line %q missing component prefix", line)
	}
	if !strings.Contains(line, "job issue_sync finished") {
		t.Errorf("line %q missing message", line)
	}
}

func TestStderrOnlyWithoutFile(t *testing.T) {
	out, err := New(model.LoggingConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if out.Writer() != os.Stderr {
		t.Error("expected stderr writer when no file is configured")
	}
	if err := out.Rotate(); err != nil {
		t.Errorf("Rotate without file: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close without file: %v", err)
	}
}
