package sync

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"
)

// AuditPruner deletes audit rows older than a cutoff.
type AuditPruner interface {
	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compacter reclaims free pages and refreshes planner statistics.
type Compacter interface {
	Compact(ctx context.Context) error
}

// RetentionSweep removes audit log entries that fell out of the retention
// window.
type RetentionSweep struct {
	store  AuditPruner
	window time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewRetentionSweep creates a sweep keeping window worth of audit history.
func NewRetentionSweep(st AuditPruner, window time.Duration, logger *log.Logger) *RetentionSweep {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RetentionSweep{store: st, window: window, logger: logger, now: time.Now}
}

// Run deletes every audit entry created before now minus the window and
// returns how many were removed.
func (r *RetentionSweep) Run(ctx context.Context) (int64, error) {
	if r.window <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %s", r.window)
	}
	cutoff := r.now().Add(-r.window)

	n, err := r.store.DeleteAuditBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning audit log: %w", err)
	}
	r.logger.Printf("Audit retention: removed %d entries older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

// Compactor runs database compaction.
type Compactor struct {
	store  Compacter
	logger *log.Logger
}

// NewCompactor creates a compaction job.
func NewCompactor(st Compacter, logger *log.Logger) *Compactor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Compactor{store: st, logger: logger}
}

// Run compacts the database, logging how long it took.
func (c *Compactor) Run(ctx context.Context) error {
	start := time.Now()
	if err := c.store.Compact(ctx); err != nil {
		return fmt.Errorf("compacting database: %w", err)
	}
	c.logger.Printf("Database compaction finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
