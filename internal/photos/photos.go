// Package photos manages the reference photos users try garments on.
package photos

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fitstogo/internal/logging"
	"fitstogo/internal/plans"
	"fitstogo/internal/services"
	"fitstogo/internal/store"
)

// ObjectStore is the subset of object storage used for photo files.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(raw string) string
}

// KeyFunc builds the storage key for an uploaded photo.
type KeyFunc func(userID, filename string, now time.Time) string

// UploadInput describes one uploaded file.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	PhotoType   string
}

// Service implements photo listing, upload, deletion and default selection.
type Service struct {
	store   *store.Store
	objects ObjectStore
	keyFor  KeyFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds a photo service.
func NewService(st *store.Store, objects ObjectStore, keyFor KeyFunc, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		objects: objects,
		keyFor:  keyFor,
		logger:  logging.NewComponentLogger(logger, "photos"),
		now:     time.Now,
	}
}

// List returns the user's photos, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*store.UserPhoto, error) {
	photos, err := s.store.ListPhotos(ctx, userID)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch photos", Cause: err}
	}
	return photos, nil
}

// Upload stores the file and records it. The user's first photo becomes the
// default.
func (s *Service) Upload(ctx context.Context, userID string, in UploadInput) (*store.UserPhoto, error) {
	if in.Body == nil {
		return nil, services.NewUserError(services.ErrValidation, "No file provided")
	}
	photoType, ok := store.ParsePhotoType(in.PhotoType)
	if !ok {
		return nil, services.NewUserError(services.ErrValidation, "Invalid photo type")
	}
	if in.ContentType != "" && !strings.HasPrefix(in.ContentType, "image/") {
		return nil, services.NewUserError(services.ErrValidation, "Only image files are allowed")
	}

	var (
		sub   *store.Subscription
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sub, err = s.store.GetSubscription(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = s.store.CountPhotos(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &services.UserError{Message: "Failed to upload photo", Cause: err}
	}

	plan := store.PlanFree
	if sub != nil {
		plan = sub.PlanType
	}
	limits := plans.For(plan)
	if !limits.AllowsPhoto(count) {
		return nil, services.NewUserError(services.ErrQuotaExceeded,
			fmt.Sprintf("Photo limit reached. Maximum %d photos allowed.", limits.MaxPhotos))
	}

	if s.objects == nil {
		return nil, services.NewUserError(services.ErrConfiguration, "Photo storage not configured")
	}
	key := s.keyFor(userID, in.Filename, s.now())
	url, err := s.objects.Upload(ctx, key, in.Body, in.Size, in.ContentType)
	if err != nil {
		return nil, &services.UserError{Marker: services.ErrExternalTool, Message: "Failed to upload photo", Cause: err}
	}
	photo := &store.UserPhoto{UserID: userID, PhotoURL: url, PhotoType: photoType}
	if err := s.store.CreatePhoto(ctx, photo); err != nil {
		return nil, &services.UserError{Message: "Failed to upload photo", Cause: err}
	}
	s.logger.Info("photo uploaded",
		logging.String("user_id", userID),
		logging.String("photo_id", photo.ID),
		logging.Bool("is_default", photo.IsDefault),
	)
	return photo, nil
}

// Delete removes an owned photo. Storage removal is best-effort.
func (s *Service) Delete(ctx context.Context, userID, photoID string) error {
	photo, err := s.store.GetUserPhoto(ctx, userID, photoID)
	if err != nil {
		return &services.UserError{Message: "Failed to delete photo", Cause: err}
	}
	if photo == nil {
		return services.NewUserError(services.ErrNotFound, "Photo not found")
	}
	if s.objects != nil {
		if err := s.objects.Delete(ctx, s.objects.KeyFromURL(photo.PhotoURL)); err != nil {
			logging.WarnWithContext(s.logger, "photo storage delete failed", "storage_delete_failed",
				logging.String("photo_id", photoID),
				logging.Error(err),
			)
		}
	}
	removed, err := s.store.DeletePhoto(ctx, userID, photoID)
	if err != nil {
		return &services.UserError{Message: "Failed to delete photo", Cause: err}
	}
	if !removed {
		return services.NewUserError(services.ErrNotFound, "Photo not found")
	}
	return nil
}

// SetDefault makes photoID the user's only default photo.
func (s *Service) SetDefault(ctx context.Context, userID, photoID string) error {
	found, err := s.store.SetDefaultPhoto(ctx, userID, photoID)
	if err != nil {
		return &services.UserError{Message: "Failed to update photo", Cause: err}
	}
	if !found {
		return services.NewUserError(services.ErrNotFound, "Photo not found")
	}
	return nil
}
