// Package scheduler runs the daemon's periodic jobs: affiliate syncs and
// try-on history cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fitstogo/internal/affiliate"
	"fitstogo/internal/config"
	"fitstogo/internal/logging"
	"fitstogo/internal/plans"
	"fitstogo/internal/store"
)

// Syncer runs every affiliate platform sync.
type Syncer interface {
	SyncAll(ctx context.Context) ([]affiliate.SyncResult, error)
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron   *cron.Cron
	store  *store.Store
	syncer Syncer
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes a scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for cleanup cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New registers the configured jobs. syncer may be nil when affiliate sync
// is disabled.
func New(cfg *config.Config, st *store.Store, syncer Syncer, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	logger = logging.NewComponentLogger(logger, "scheduler")
	cronLog := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		// Recover must sit inside SkipIfStillRunning: the skip wrapper only
		// releases its slot when the wrapped job returns normally.
		cron: cron.New(cron.WithLogger(cronLog), cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
		store:  st,
		syncer: syncer,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Affiliate.Enabled && syncer != nil {
		if _, err := s.cron.AddFunc(cfg.Affiliate.SyncSchedule, s.runSync); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule affiliate sync %q: %w", cfg.Affiliate.SyncSchedule, err)
		}
	}
	if _, err := s.cron.AddFunc(cfg.Workflow.CleanupSchedule, s.runCleanup); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule history cleanup %q: %w", cfg.Workflow.CleanupSchedule, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.Int("jobs", len(s.cron.Entries())),
	)
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Entries reports the next run of each job.
func (s *Scheduler) Entries() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) runSync() {
	started := s.now()
	results, err := s.syncer.SyncAll(s.jobContext())
	if err != nil {
		logging.ErrorWithContext(s.logger, "scheduled affiliate sync failed", "scheduled_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "see sync_logs for per-platform details"),
		)
	}
	total := 0
	for _, r := range results {
		total += r.ProductsCount
	}
	s.logger.Info("scheduled affiliate sync finished",
		logging.String(logging.FieldEventType, "scheduled_sync_finished"),
		logging.Int("platforms", len(results)),
		logging.Int("products", total),
		logging.Duration("duration", s.now().Sub(started)),
	)
}

func (s *Scheduler) runCleanup() {
	if _, err := s.Cleanup(s.jobContext()); err != nil {
		logging.ErrorWithContext(s.logger, "history cleanup failed", "history_cleanup_failed", logging.Error(err))
	}
}

// Cleanup deletes finished try-on sessions older than each plan's history
// window and returns the number removed. Monthly usage lives in its own
// ledger, so pruned sessions still count against the quota; ledger rows are
// kept for the current and previous month.
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()
	var removed int64
	for _, limits := range plans.All() {
		cutoff, ok := limits.HistoryCutoff(now)
		if !ok {
			continue
		}
		n, err := s.store.PruneSessions(ctx, limits.Type, cutoff)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	usage, err := s.store.PruneUsage(ctx, plans.MonthStart(now).AddDate(0, -1, 0))
	if err != nil {
		return removed, err
	}
	s.logger.Info("try-on history pruned",
		logging.String(logging.FieldEventType, "history_pruned"),
		logging.Int64("removed", removed),
		logging.Int64("usage_removed", usage),
	)
	return removed, nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err), logging.String(logging.FieldEventType, "cron_job_error")}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
