package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const photoColumns = "id, user_id, photo_url, photo_type, is_default, created_at"

func scanPhoto(scanner rowScanner) (*UserPhoto, error) {
	var (
		photo     UserPhoto
		photoType string
		isDefault int
		created   sql.NullString
	)
	if err := scanner.Scan(&photo.ID, &photo.UserID, &photo.PhotoURL, &photoType, &isDefault, &created); err != nil {
		return nil, err
	}
	photo.PhotoType = PhotoType(photoType)
	photo.IsDefault = isDefault != 0
	photo.CreatedAt = parseTime(created)
	return &photo, nil
}

// ListPhotos returns a user's photos, newest first.
func (s *Store) ListPhotos(ctx context.Context, userID string) ([]*UserPhoto, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+photoColumns+` FROM user_photos WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()
	photos := []*UserPhoto{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// CountPhotos returns how many photos a user has.
func (s *Store) CountPhotos(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_photos WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count photos: %w", err)
	}
	return count, nil
}

// GetPhoto fetches a photo by id.
func (s *Store) GetPhoto(ctx context.Context, id string) (*UserPhoto, error) {
	photo, err := scanPhoto(s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM user_photos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return photo, nil
}

// GetUserPhoto fetches a photo only when it belongs to userID.
func (s *Store) GetUserPhoto(ctx context.Context, userID, id string) (*UserPhoto, error) {
	photo, err := s.GetPhoto(ctx, id)
	if err != nil || photo == nil || photo.UserID != userID {
		return nil, err
	}
	return photo, nil
}

// CreatePhoto inserts a photo. The user's first photo becomes the default.
func (s *Store) CreatePhoto(ctx context.Context, photo *UserPhoto) error {
	if photo == nil {
		return errors.New("photo is nil")
	}
	if photo.ID == "" {
		photo.ID = newID()
	}
	if photo.PhotoType == "" {
		photo.PhotoType = PhotoFullBody
	}
	photo.CreatedAt = s.now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_photos WHERE user_id = ?`, photo.UserID).Scan(&existing); err != nil {
			return fmt.Errorf("count photos: %w", err)
		}
		photo.IsDefault = existing == 0
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_photos (id, user_id, photo_url, photo_type, is_default, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			photo.ID, photo.UserID, photo.PhotoURL, string(photo.PhotoType), boolToInt(photo.IsDefault), formatTime(photo.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		return nil
	})
}

// DeletePhoto removes a photo owned by userID. When the default photo is
// deleted the most recent remaining photo is promoted. It reports whether a
// row was removed.
func (s *Store) DeletePhoto(ctx context.Context, userID, id string) (bool, error) {
	removed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		removed = false
		var isDefault int
		err := tx.QueryRowContext(ctx, `SELECT is_default FROM user_photos WHERE id = ? AND user_id = ?`, id, userID).Scan(&isDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup photo: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_photos WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete photo: %w", err)
		}
		removed = true
		if isDefault == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_photos SET is_default = 1 WHERE id = (
                SELECT id FROM user_photos WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1
            )`, userID); err != nil {
			return fmt.Errorf("promote default photo: %w", err)
		}
		return nil
	})
	return removed, err
}

// SetDefaultPhoto makes id the only default photo of userID. It reports
// whether the photo exists for that user.
func (s *Store) SetDefaultPhoto(ctx context.Context, userID, id string) (bool, error) {
	found := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		found = false
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_photos WHERE id = ? AND user_id = ?`, id, userID).Scan(&count); err != nil {
			return fmt.Errorf("lookup photo: %w", err)
		}
		if count == 0 {
			return nil
		}
		found = true
		if _, err := tx.ExecContext(ctx, `UPDATE user_photos SET is_default = 0 WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear default photos: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE user_photos SET is_default = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("set default photo: %w", err)
		}
		return nil
	})
	return found, err
}
