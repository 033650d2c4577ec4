package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fitstogo/internal/logging"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.handler == nil {
		m.mu.Unlock()
		return errors.New("workflow stage not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		logger := m.logger.With(logging.String(logging.FieldComponent, fmt.Sprintf("workflow-worker-%d", i+1)))
		go m.runWorker(runCtx, logger)
	}
	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for in-flight sessions to
// return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Wake nudges an idle worker to look for work immediately. It never blocks.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleSessions(ctx, logger); err != nil && ctx.Err() == nil {
			logger.Warn("reclaim stale sessions failed; stuck sessions may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}

		session, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextSessionError(ctx, logger, err)
			continue
		}
		if session == nil {
			m.waitForSessionOrShutdown(ctx)
			continue
		}

		if err := m.processSession(ctx, logger, session); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) handleNextSessionError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next session",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryInterval):
	}
}

func (m *Manager) waitForSessionOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}
