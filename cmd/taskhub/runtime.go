package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nhle/taskhub/internal/credential"
	"github.com/nhle/taskhub/internal/httpapi"
	"github.com/nhle/taskhub/internal/logging"
	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/notify"
	"github.com/nhle/taskhub/internal/scheduler"
	"github.com/nhle/taskhub/internal/source"
	"github.com/nhle/taskhub/internal/source/jira"
	"github.com/nhle/taskhub/internal/store"
	"github.com/nhle/taskhub/internal/sync"
)

const (
	jobAuditRetention = "audit_retention"
	jobDBCompact      = "db_compact"

	// validateTimeout bounds the startup Jira credential check.
	validateTimeout = 15 * time.Second
)

// runtime holds what every command needs: config, log sink and store.
type runtime struct {
	cfg   *model.AppConfig
	logs  *logging.Output
	store *store.SQLiteStore
}

// openRuntime loads the config at configPath and opens the log sink and
// the database it names.
func openRuntime() (*runtime, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logs, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	if path := cfg.Database.Path; path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			logs.Close()
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logs.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logs: logs, store: st}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logs.Logger("store").Printf("WARNING: closing database: %v", err)
	}
	r.logs.Close()
}

// issueSource builds the Jira source from config. It returns nil when no
// Jira instance is configured.
func (r *runtime) issueSource() (*jira.Adapter, error) {
	jc := r.cfg.Jira
	if jc.BaseURL == "" {
		return nil, nil
	}

	token, err := credential.Resolve(jc.TokenRef)
	if err != nil {
		return nil, fmt.Errorf("resolving Jira token: %w", err)
	}
	mode, err := source.ParseProxyMode(jc.ProxyMode)
	if err != nil {
		return nil, err
	}

	client, err := jira.NewClient(jc.BaseURL, token, jira.WithProxy(mode, jc.ProxyURL))
	if err != nil {
		return nil, fmt.Errorf("creating Jira client: %w", err)
	}
	return jira.NewAdapter(client, jc.JQLExtra), nil
}

// checkJira verifies the configured Jira token and returns the account's
// display name. It returns "" with no error when Jira is not configured.
func (r *runtime) checkJira(ctx context.Context) (string, error) {
	src, err := r.issueSource()
	if err != nil || src == nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return src.ValidateConnection(ctx)
}

// issueSyncer returns nil when Jira is not configured. A non-nil registry
// receives live pushes for newly cached issues.
func (r *runtime) issueSyncer(registry *notify.Registry) (*sync.IssueSyncer, error) {
	src, err := r.issueSource()
	if err != nil || src == nil {
		return nil, err
	}

	var opts []sync.IssueSyncerOption
	if registry != nil {
		opts = append(opts, sync.WithPublisher(registry))
	}
	return sync.NewIssueSyncer(r.store, src, r.logs.Logger("sync"), opts...), nil
}

// newScheduler registers the three maintenance jobs. It does not start
// the scheduler.
func (r *runtime) newScheduler(registry *notify.Registry) (*scheduler.Scheduler, error) {
	syncer, err := r.issueSyncer(registry)
	if err != nil {
		return nil, err
	}

	sc := r.cfg.Scheduler
	sched := scheduler.New(r.logs.Logger("scheduler"))
	logger := r.logs.Logger("jobs")

	sweep := sync.NewRetentionSweep(r.store, r.cfg.Retention(), r.logs.Logger("retention"))
	compactor := sync.NewCompactor(r.store, r.logs.Logger("compact"))

	jobs := []struct {
		name     string
		schedule scheduler.Schedule
		fn       scheduler.JobFunc
	}{
		{httpapi.IssueSyncJob, scheduler.Every(r.cfg.SyncInterval()), func(ctx context.Context) error {
			if syncer == nil {
				logger.Println("Jira is not configured; skipping issue sync")
				return nil
			}
			report, err := syncer.Run(ctx)
			if err != nil {
				return err
			}
			if failed := report.Failed(); failed > 0 && failed == len(report.Users) {
				return fmt.Errorf("issue sync failed for all %d users", failed)
			}
			return nil
		}},
		{jobAuditRetention, scheduler.DailyAt(sc.RetentionHour, 0), func(ctx context.Context) error {
			_, err := sweep.Run(ctx)
			return err
		}},
		{jobDBCompact, scheduler.WeeklyAt(time.Weekday(sc.CompactWeekday), sc.CompactHour, 0), compactor.Run},
	}
	for _, j := range jobs {
		if err := sched.Register(j.name, j.schedule, j.fn); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
