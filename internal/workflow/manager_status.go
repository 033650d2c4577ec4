package workflow

import (
	"context"

	"fitstogo/internal/logging"
	"fitstogo/internal/stage"
	"fitstogo/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool                        `json:"running"`
	Workers       int                         `json:"workers"`
	LastError     string                      `json:"lastError,omitempty"`
	LastSessionID string                      `json:"lastSessionId,omitempty"`
	Processed     int64                       `json:"processed"`
	Failed        int64                       `json:"failed"`
	SessionStats  map[store.SessionStatus]int `json:"sessionStats,omitempty"`
	StageHealth   stage.Health                `json:"stageHealth"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		Workers:   m.workers,
		Processed: m.processed,
		Failed:    m.failed,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastSession != nil {
		summary.LastSessionID = m.lastSession.ID
	}
	m.mu.RUnlock()

	stats, err := m.store.SessionStats(ctx)
	if err != nil {
		m.logger.Warn("failed to read session stats", logging.Error(err))
	}
	summary.SessionStats = stats
	if m.handler != nil {
		summary.StageHealth = m.handler.HealthCheck(ctx)
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastSession(session *store.TryOnSession) {
	m.mu.Lock()
	if session != nil {
		copy := *session
		m.lastSession = &copy
	} else {
		m.lastSession = nil
	}
	m.mu.Unlock()
}
