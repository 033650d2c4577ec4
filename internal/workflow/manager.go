package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fitstogo/internal/config"
	"fitstogo/internal/logging"
	"fitstogo/internal/stage"
	"fitstogo/internal/store"
)

// Observer receives processing events, typically for metrics.
type Observer interface {
	WorkerBusy(delta int)
	SessionFinished(provider string, status store.SessionStatus, duration time.Duration)
}

// Manager coordinates try-on processing across a pool of workers.
type Manager struct {
	cfg           *config.Config
	store         *store.Store
	handler       stage.Handler
	logger        *slog.Logger
	pollInterval  time.Duration
	retryInterval time.Duration
	workers       int
	observer      Observer

	heartbeat *HeartbeatMonitor
	wake      chan struct{}

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastSession *store.TryOnSession
	processed   int64
	failed      int64
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithObserver registers a processing observer.
func WithObserver(observer Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = observer
	}
}

// WithWorkers overrides the configured worker count.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// NewManager constructs a workflow manager running handler for each claimed
// session.
func NewManager(cfg *config.Config, st *store.Store, handler stage.Handler, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	m := &Manager{
		cfg:           cfg,
		store:         st,
		handler:       handler,
		logger:        logger,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		workers:       max(cfg.TryOn.Workers, 1),
		heartbeat: NewHeartbeatMonitor(
			st,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
