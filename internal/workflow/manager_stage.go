package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fitstogo/internal/logging"
	"fitstogo/internal/services"
	"fitstogo/internal/stage"
	"fitstogo/internal/store"
)

const stageName = "tryon"

func (m *Manager) processSession(ctx context.Context, workerLogger *slog.Logger, session *store.TryOnSession) error {
	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, session, requestID)
	logger := logging.WithContext(stageCtx, workerLogger)
	m.setLastSession(session)

	if m.observer != nil {
		m.observer.WorkerBusy(1)
		defer m.observer.WorkerBusy(-1)
	}

	start := time.Now()
	logger.Info("session processing started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String(logging.FieldUserID, session.UserID),
		logging.String(logging.FieldProductID, session.ProductID),
		logging.String("provider", session.Provider),
		logging.Int("attempt", session.Attempts),
		logging.Bool("resuming_task", session.ProviderTaskID != ""),
	)

	if err := m.handler.Prepare(stageCtx, session); err != nil {
		if interruptedByShutdown(ctx) {
			logger.Debug("session interrupted by shutdown during prepare; reclaim will resume it")
			return err
		}
		m.handleStageFailure(stageCtx, logger, session, err, start)
		return err
	}

	if err := m.executeWithHeartbeat(stageCtx, m.handler, session); err != nil {
		if interruptedByShutdown(ctx) {
			logger.Debug("session interrupted by shutdown; heartbeat reclaim will resume it")
			return err
		}
		m.handleStageFailure(stageCtx, logger, session, err, start)
		return err
	}

	if err := m.store.CompleteSession(stageCtx, session.ID, session.ResultURL); err != nil {
		wrapped := fmt.Errorf("persist session result: %w", err)
		logger.Error("failed to persist session result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	now := time.Now().UTC()
	session.Status = store.SessionCompleted
	session.CompletedAt = &now
	m.setLastSession(session)
	m.recordOutcome(session, store.SessionCompleted, time.Since(start))

	logger.Info("session processing completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("result_url", session.ResultURL),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

// interruptedByShutdown reports whether the worker context was cancelled.
// Errors seen after that are shutdown noise, and the session stays
// PROCESSING so reclaim can pick it up.
func interruptedByShutdown(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, session *store.TryOnSession) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, session.ID)

	execErr := handler.Execute(ctx, session)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) recordOutcome(session *store.TryOnSession, status store.SessionStatus, duration time.Duration) {
	if m.observer != nil {
		m.observer.SessionFinished(session.Provider, status, duration)
	}
	m.mu.Lock()
	if status == store.SessionCompleted {
		m.processed++
	} else {
		m.failed++
	}
	m.mu.Unlock()
}

func withStageContext(ctx context.Context, session *store.TryOnSession, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if session != nil {
		ctx = services.WithSessionID(ctx, session.ID)
		ctx = services.WithUserID(ctx, session.UserID)
	}
	ctx = services.WithStage(ctx, stageName)
	return services.WithRequestID(ctx, requestID)
}
