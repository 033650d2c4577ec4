package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = "id, user_id, product_id, user_photo_id, status, garment_image_url, mask_json, description, provider, provider_task_id, result_url, error_msg, progress_stage, attempts, last_heartbeat, created_at, updated_at, completed_at"

// Progress stages recorded on processing sessions.
const (
	StageQueued     = "queued"
	StageDescribing = "describing"
	StageGenerating = "generating"
	StagePolling    = "polling"
	StageUploading  = "uploading"
)

func scanSession(scanner rowScanner) (*TryOnSession, error) {
	var (
		session       TryOnSession
		status        string
		photoID       sql.NullString
		garment       sql.NullString
		mask          sql.NullString
		description   sql.NullString
		provider      sql.NullString
		taskID        sql.NullString
		resultURL     sql.NullString
		errorMsg      sql.NullString
		progressStage sql.NullString
		heartbeat     sql.NullString
		created       sql.NullString
		updated       sql.NullString
		completed     sql.NullString
	)
	if err := scanner.Scan(
		&session.ID, &session.UserID, &session.ProductID, &photoID, &status,
		&garment, &mask, &description, &provider, &taskID, &resultURL, &errorMsg, &progressStage,
		&session.Attempts, &heartbeat, &created, &updated, &completed,
	); err != nil {
		return nil, err
	}
	session.Status = SessionStatus(status)
	session.UserPhotoID = photoID.String
	session.GarmentImageURL = garment.String
	session.MaskJSON = mask.String
	session.Description = description.String
	session.Provider = provider.String
	session.ProviderTaskID = taskID.String
	session.ResultURL = resultURL.String
	session.ErrorMsg = errorMsg.String
	session.ProgressStage = progressStage.String
	session.LastHeartbeat = parseTimePtr(heartbeat)
	session.CreatedAt = parseTime(created)
	session.UpdatedAt = parseTime(updated)
	session.CompletedAt = parseTimePtr(completed)
	return &session, nil
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]*TryOnSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []*TryOnSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CreateSession inserts a PENDING session and records one try-on against the
// user's monthly usage. It returns ErrActiveSession when an identical session
// is already PENDING or PROCESSING.
func (s *Store) CreateSession(ctx context.Context, session *TryOnSession) error {
	if session == nil {
		return errors.New("session is nil")
	}
	if session.ID == "" {
		session.ID = newID()
	}
	now := s.now().UTC()
	session.Status = SessionPending
	session.ProgressStage = StageQueued
	session.CreatedAt = now
	session.UpdatedAt = now
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tryon_sessions (
                id, user_id, product_id, user_photo_id, status, garment_image_url, mask_json,
                provider, progress_stage, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.UserID, session.ProductID, nullableString(session.UserPhotoID), string(session.Status),
			nullableString(session.GarmentImageURL), nullableString(session.MaskJSON),
			nullableString(session.Provider), session.ProgressStage, formatTime(now), formatTime(now),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tryon_usage (id, user_id, session_id, created_at) VALUES (?, ?, ?, ?)`,
			newID(), session.UserID, session.ID, formatTime(now))
		return err
	})
	if isUniqueViolation(err) {
		return ErrActiveSession
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*TryOnSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM tryon_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// FindActiveSession returns an unfinished session for the same request, if any.
func (s *Store) FindActiveSession(ctx context.Context, userID, productID, photoID, garmentURL string) (*TryOnSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM tryon_sessions
         WHERE user_id = ? AND product_id = ? AND user_photo_id = ? AND COALESCE(garment_image_url, '') = ?
           AND status IN (?, ?)
         ORDER BY created_at DESC LIMIT 1`,
		userID, productID, photoID, garmentURL, string(SessionPending), string(SessionProcessing)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return session, nil
}

// ListUserSessions returns a user's most recent sessions created at or after
// since. A zero since returns the whole history.
func (s *Store) ListUserSessions(ctx context.Context, userID string, since time.Time, limit int) ([]*TryOnSession, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + sessionColumns + ` FROM tryon_sessions WHERE user_id = ?`
	args := []any{userID}
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(since))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	sessions, err := s.querySessions(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return sessions, nil
}

// ListSessions returns recent sessions, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, status SessionStatus, limit int) ([]*TryOnSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + sessionColumns + ` FROM tryon_sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	sessions, err := s.querySessions(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CountUsageSince counts try-ons a user started at or after since. Usage rows
// outlive their sessions, so deleting photos or pruning history never lowers
// the count.
func (s *Store) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tryon_usage WHERE user_id = ? AND created_at >= ?`,
		userID, formatTime(since),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return count, nil
}

// PruneUsage deletes usage rows created before cutoff.
func (s *Store) PruneUsage(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tryon_usage WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return res.RowsAffected()
}

// ClaimNextPending atomically moves the oldest PENDING session to PROCESSING
// and returns it. It returns (nil, nil) when nothing is pending.
func (s *Store) ClaimNextPending(ctx context.Context) (*TryOnSession, error) {
	now := s.timestamp()
	var session *TryOnSession
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		session, scanErr = scanSession(s.db.QueryRowContext(ctx,
			`UPDATE tryon_sessions
             SET status = ?, progress_stage = ?, attempts = attempts + 1,
                 last_heartbeat = ?, updated_at = ?, error_msg = NULL
             WHERE id = (
                 SELECT id FROM tryon_sessions WHERE status = ? ORDER BY created_at, rowid LIMIT 1
             ) AND status = ?
             RETURNING `+sessionColumns,
			string(SessionProcessing), StageDescribing, now, now,
			string(SessionPending), string(SessionPending)))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim session: %w", err)
	}
	return session, nil
}

// UpdateSessionStage records the current processing stage.
func (s *Store) UpdateSessionStage(ctx context.Context, id, stage string) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions SET progress_stage = ?, updated_at = ? WHERE id = ?`, stage, now, id); err != nil {
		return fmt.Errorf("update session stage: %w", err)
	}
	return nil
}

// SetSessionDescription stores the garment description used in the prompt.
func (s *Store) SetSessionDescription(ctx context.Context, id, description string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions SET description = ?, updated_at = ? WHERE id = ?`,
		nullableString(description), s.timestamp(), id); err != nil {
		return fmt.Errorf("set session description: %w", err)
	}
	return nil
}

// SetProviderTask records the provider and its task id so a reclaimed session
// resumes polling instead of submitting a second task.
func (s *Store) SetProviderTask(ctx context.Context, id, provider, taskID string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions SET provider = ?, provider_task_id = ?, updated_at = ? WHERE id = ?`,
		nullableString(provider), nullableString(taskID), s.timestamp(), id); err != nil {
		return fmt.Errorf("set provider task: %w", err)
	}
	return nil
}

// CompleteSession marks a session COMPLETED with its result URL.
func (s *Store) CompleteSession(ctx context.Context, id, resultURL string) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions
         SET status = ?, result_url = ?, error_msg = NULL, progress_stage = NULL,
             last_heartbeat = NULL, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		string(SessionCompleted), resultURL, now, now, id); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// FailSession marks a session FAILED with a user-facing message.
func (s *Store) FailSession(ctx context.Context, id, message string) error {
	if message == "" {
		message = "Processing failed"
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions
         SET status = ?, error_msg = ?, progress_stage = NULL,
             last_heartbeat = NULL, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		string(SessionFailed), message, now, now, id); err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	return nil
}

// UpdateSessionHeartbeat refreshes the heartbeat of a PROCESSING session.
func (s *Store) UpdateSessionHeartbeat(ctx context.Context, id string) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, string(SessionProcessing)); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleSessions returns PROCESSING sessions whose heartbeat is older
// than cutoff to PENDING. The provider task id is kept.
func (s *Store) ReclaimStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions
         SET status = ?, progress_stage = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		string(SessionPending), StageQueued, s.timestamp(),
		string(SessionProcessing), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale sessions: %w", err)
	}
	return res.RowsAffected()
}

// ResetProcessingSessions returns every PROCESSING session to PENDING. It is
// run once at daemon start, when no worker can own a session.
func (s *Store) ResetProcessingSessions(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions SET status = ?, progress_stage = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		string(SessionPending), StageQueued, s.timestamp(), string(SessionProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset processing sessions: %w", err)
	}
	return res.RowsAffected()
}

// RetrySession moves a FAILED session back to PENDING, clearing the error
// and provider task. It reports whether a session was changed, and returns
// ErrActiveSession when an identical session is already queued.
func (s *Store) RetrySession(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE tryon_sessions
         SET status = ?, progress_stage = ?, error_msg = NULL, provider_task_id = NULL,
             result_url = NULL, completed_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(SessionPending), StageQueued, s.timestamp(), id, string(SessionFailed))
	if isUniqueViolation(err) {
		return false, ErrActiveSession
	}
	if err != nil {
		return false, fmt.Errorf("retry session: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PruneSessions deletes finished sessions created before cutoff for users on
// plan. Users without a subscription row count as FREE.
func (s *Store) PruneSessions(ctx context.Context, plan PlanType, cutoff time.Time) (int64, error) {
	query := `DELETE FROM tryon_sessions WHERE created_at < ? AND status IN (?, ?) AND `
	args := []any{formatTime(cutoff), string(SessionCompleted), string(SessionFailed)}
	if plan == PlanFree {
		query += `user_id NOT IN (SELECT user_id FROM subscriptions WHERE plan_type != ?)`
		args = append(args, string(PlanFree))
	} else {
		query += `user_id IN (SELECT user_id FROM subscriptions WHERE plan_type = ?)`
		args = append(args, string(plan))
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune %s sessions: %w", plan, err)
	}
	return res.RowsAffected()
}

// SessionStats returns session counts grouped by status.
func (s *Store) SessionStats(ctx context.Context) (map[SessionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tryon_sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[SessionStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[SessionStatus(status)] = count
	}
	return stats, rows.Err()
}
