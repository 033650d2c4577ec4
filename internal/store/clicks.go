package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecordClick inserts an affiliate click.
func (s *Store) RecordClick(ctx context.Context, click *Click) error {
	if click == nil {
		return errors.New("click is nil")
	}
	if click.ID == "" {
		click.ID = newID()
	}
	if click.ClickedAt.IsZero() {
		click.ClickedAt = s.now().UTC()
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO click_tracking (id, product_id, user_id, platform, ip_address, user_agent, clicked_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		click.ID, click.ProductID, nullableString(click.UserID), string(click.Platform),
		nullableString(click.IPAddress), nullableString(click.UserAgent), formatTime(click.ClickedAt),
	); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

// ClickStats counts clicks per platform at or after since.
func (s *Store) ClickStats(ctx context.Context, since time.Time) (map[Platform]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, COUNT(1) FROM click_tracking WHERE clicked_at >= ? GROUP BY platform`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("click stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Platform]int)
	for rows.Next() {
		var (
			platform string
			count    int
		)
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, err
		}
		stats[Platform(platform)] = count
	}
	return stats, rows.Err()
}
