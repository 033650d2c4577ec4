package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fitstogo/internal/config"
	"fitstogo/internal/logging"
	"fitstogo/internal/scheduler"
	"fitstogo/internal/store"
	"fitstogo/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	workflow  *workflow.Manager
	scheduler *scheduler.Scheduler
	http      *httpServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	DatabasePath string                 `json:"databasePath"`
	LockFilePath string                 `json:"lockFilePath"`
	APIAddress   string                 `json:"apiAddress,omitempty"`
	NextRuns     []time.Time            `json:"nextRuns,omitempty"`
}

// New constructs a daemon. sched and handler may be nil; an empty
// paths.api_bind also disables the HTTP listener.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, sched *scheduler.Scheduler, handler http.Handler) (*Daemon, error) {
	if cfg == nil || st == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := filepath.Join(cfg.Paths.LogDir, "fitstogod.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		workflow:  wf,
		scheduler: sched,
		http:      newHTTPServer(cfg.Paths.APIBind, handler, logger),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager, the
// scheduler and the HTTP listener, in that order.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fitstogo daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.scheduler != nil {
		d.scheduler.Start()
	}
	if err := d.http.start(runCtx); err != nil {
		d.stopBackground()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("fitstogo daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.http.address()),
	)
	return nil
}

// Stop shuts components down in reverse start order and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.http.stop()
	d.stopBackground()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start reports a running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("fitstogo daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) stopBackground() {
	if d.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.scheduler.Stop(ctx); err != nil {
			d.logger.Warn("scheduler did not stop cleanly",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scheduler_stop_timeout"),
				logging.String(logging.FieldImpact, "a running sync may be interrupted"),
			)
		}
		cancel()
	}
	d.workflow.Stop()
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.http.address(),
	}
	if d.scheduler != nil {
		status.NextRuns = d.scheduler.Entries()
	}
	return status
}
