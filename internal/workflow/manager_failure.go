package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fitstogo/internal/logging"
	"fitstogo/internal/services"
	"fitstogo/internal/store"
)

const defaultFailureMessage = "Processing failed"

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, session *store.TryOnSession, stageErr error, start time.Time) {
	message := classifyStageFailure(stageErr)
	now := time.Now().UTC()
	session.Status = store.SessionFailed
	session.ErrorMsg = message
	session.CompletedAt = &now

	details := services.Details(stageErr)
	logger.Error("session processing failed",
		logging.String("resolved_status", string(store.SessionFailed)),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
	)

	// Persist even when the worker context is cancelled mid-failure.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.FailSession(persistCtx, session.ID, message); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not record session failure")
		} else {
			logger.Error("failed to persist session failure", logging.Error(err))
		}
	}

	m.setLastError(stageErr)
	m.setLastSession(session)
	m.recordOutcome(session, store.SessionFailed, time.Since(start))
}

func classifyStageFailure(stageErr error) string {
	if stageErr == nil {
		return defaultFailureMessage
	}
	message := strings.TrimSpace(services.Message(stageErr))
	if message == "" {
		return defaultFailureMessage
	}
	return message
}
