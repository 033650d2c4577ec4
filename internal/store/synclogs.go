package store

import (
	"context"
	"database/sql"
	"fmt"
)

// StartSyncLog records the start of a platform sync.
func (s *Store) StartSyncLog(ctx context.Context, platform Platform) (*SyncLog, error) {
	log := &SyncLog{ID: newID(), Platform: platform, Status: SyncStarted, StartedAt: s.now().UTC()}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO sync_logs (id, platform, status, products_count, started_at) VALUES (?, ?, ?, 0, ?)`,
		log.ID, string(platform), string(log.Status), formatTime(log.StartedAt),
	); err != nil {
		return nil, fmt.Errorf("start sync log: %w", err)
	}
	return log, nil
}

// FinishSyncLog stores the outcome of a sync run.
func (s *Store) FinishSyncLog(ctx context.Context, id string, status SyncStatus, productsCount int, errorMessage string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE sync_logs SET status = ?, products_count = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(status), productsCount, nullableString(errorMessage), s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("finish sync log: %w", err)
	}
	return nil
}

// ListSyncLogs returns the most recent sync runs.
func (s *Store) ListSyncLogs(ctx context.Context, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, status, products_count, error_message, started_at, completed_at
         FROM sync_logs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()
	logs := []SyncLog{}
	for rows.Next() {
		var (
			entry     SyncLog
			platform  string
			status    string
			errMsg    sql.NullString
			started   sql.NullString
			completed sql.NullString
		)
		if err := rows.Scan(&entry.ID, &platform, &status, &entry.ProductsCount, &errMsg, &started, &completed); err != nil {
			return nil, err
		}
		entry.Platform = Platform(platform)
		entry.Status = SyncStatus(status)
		entry.ErrorMessage = errMsg.String
		entry.StartedAt = parseTime(started)
		entry.CompletedAt = parseTimePtr(completed)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
