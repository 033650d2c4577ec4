// Package tryon accepts try-on requests and turns queued sessions into
// generated images.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fitstogo/internal/logging"
	"fitstogo/internal/plans"
	"fitstogo/internal/services"
	"fitstogo/internal/services/kieai"
	"fitstogo/internal/stage"
	"fitstogo/internal/store"
)

const historyLimit = 20

// Waker is notified when new work is queued.
type Waker interface {
	Wake()
}

// CreateInput is a try-on request.
type CreateInput struct {
	ProductID       string      `json:"productId"`
	UserPhotoID     string      `json:"userPhotoId"`
	GarmentImageURL string      `json:"garmentImageUrl,omitempty"`
	Mask            *kieai.Mask `json:"mask,omitempty"`
}

// Service is the request side of try-on: quota checks, deduplication and
// session lookup.
type Service struct {
	store    *store.Store
	provider string
	waker    Waker
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for quota months and history
// windows.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds the request-side service. provider is recorded on new
// sessions; waker may be nil.
func NewService(st *store.Store, provider string, waker Waker, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		provider: provider,
		waker:    waker,
		logger:   logging.NewComponentLogger(logger, "tryon"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create queues a session, or returns the user's identical unfinished one.
// created is false when an existing session was returned.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (session *store.TryOnSession, created bool, err error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.UserPhotoID = strings.TrimSpace(in.UserPhotoID)
	if in.ProductID == "" || in.UserPhotoID == "" {
		return nil, false, services.NewUserError(services.ErrValidation, "Product ID and photo ID are required")
	}
	if err := validateMask(in.Mask); err != nil {
		return nil, false, err
	}

	var (
		sub  *store.Subscription
		used int
	)
	quota, qctx := errgroup.WithContext(ctx)
	quota.Go(func() error {
		var err error
		sub, err = s.store.GetSubscription(qctx, userID)
		return err
	})
	quota.Go(func() error {
		var err error
		used, err = s.store.CountUsageSince(qctx, userID, plans.MonthStart(s.now()))
		return err
	})
	if err := quota.Wait(); err != nil {
		return nil, false, &services.UserError{Message: "Failed to create try-on session", Cause: err}
	}

	var (
		product *store.Product
		photo   *store.UserPhoto
	)
	lookups, lctx := errgroup.WithContext(ctx)
	lookups.Go(func() error {
		var err error
		product, err = s.store.GetProduct(lctx, in.ProductID)
		return err
	})
	lookups.Go(func() error {
		var err error
		photo, err = s.store.GetUserPhoto(lctx, userID, in.UserPhotoID)
		return err
	})
	if err := lookups.Wait(); err != nil {
		return nil, false, &services.UserError{Message: "Failed to create try-on session", Cause: err}
	}
	if product == nil || !product.IsActive {
		return nil, false, services.NewUserError(services.ErrNotFound, "Product not found")
	}
	if photo == nil {
		return nil, false, services.NewUserError(services.ErrNotFound, "Photo not found")
	}

	garment := strings.TrimSpace(in.GarmentImageURL)
	if garment == "" {
		garment = product.ImageURL
	}
	existing, err := s.store.FindActiveSession(ctx, userID, product.ID, photo.ID, garment)
	if err != nil {
		return nil, false, &services.UserError{Message: "Failed to create try-on session", Cause: err}
	}
	if existing != nil {
		existing.Product = summarize(product)
		existing.UserPhoto = photo
		return existing, false, nil
	}

	plan := store.PlanFree
	if sub != nil {
		plan = sub.PlanType
	}
	limits := plans.For(plan)
	if !limits.AllowsTryOn(used) {
		return nil, false, services.NewUserError(services.ErrQuotaExceeded,
			fmt.Sprintf("Monthly try-on limit reached. Maximum %d try-ons.", limits.TryOnsPerMonth))
	}

	session = &store.TryOnSession{
		UserID:          userID,
		ProductID:       product.ID,
		UserPhotoID:     photo.ID,
		GarmentImageURL: garment,
		MaskJSON:        stage.EncodeMask(in.Mask),
		Provider:        s.provider,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrActiveSession) {
			return s.activeTwin(ctx, userID, product, photo, garment)
		}
		return nil, false, &services.UserError{Message: "Failed to create try-on session", Cause: err}
	}
	session.Product = summarize(product)
	session.UserPhoto = photo

	s.logger.Info("try-on session queued",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String(logging.FieldUserID, userID),
		logging.String(logging.FieldProductID, product.ID),
		logging.String("plan", string(plan)),
		logging.Int("used_this_month", used+1),
	)
	if s.waker != nil {
		s.waker.Wake()
	}
	return session, true, nil
}

// activeTwin returns the session a concurrent identical request inserted
// between the duplicate check and the insert.
func (s *Service) activeTwin(ctx context.Context, userID string, product *store.Product, photo *store.UserPhoto, garment string) (*store.TryOnSession, bool, error) {
	existing, err := s.store.FindActiveSession(ctx, userID, product.ID, photo.ID, garment)
	if err != nil {
		return nil, false, &services.UserError{Message: "Failed to create try-on session", Cause: err}
	}
	if existing == nil {
		return nil, false, &services.UserError{Message: "Failed to create try-on session", Cause: store.ErrActiveSession}
	}
	existing.Product = summarize(product)
	existing.UserPhoto = photo
	return existing, false, nil
}

// History returns the user's latest sessions inside their plan's history
// window, with product summaries.
func (s *Service) History(ctx context.Context, userID string) ([]*store.TryOnSession, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch try-on history", Cause: err}
	}
	plan := store.PlanFree
	if sub != nil {
		plan = sub.PlanType
	}
	var since time.Time
	if cutoff, ok := plans.For(plan).HistoryCutoff(s.now()); ok {
		since = cutoff
	}
	sessions, err := s.store.ListUserSessions(ctx, userID, since, historyLimit)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch try-on history", Cause: err}
	}
	products := make(map[string]*store.ProductSummary)
	for _, session := range sessions {
		summary, ok := products[session.ProductID]
		if !ok {
			product, err := s.store.GetProduct(ctx, session.ProductID)
			if err != nil {
				return nil, &services.UserError{Message: "Failed to fetch try-on history", Cause: err}
			}
			summary = summarize(product)
			products[session.ProductID] = summary
		}
		session.Product = summary
	}
	return sessions, nil
}

// Get returns one of the user's sessions with its product and photo.
func (s *Service) Get(ctx context.Context, userID, id string) (*store.TryOnSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch try-on session", Cause: err}
	}
	if session == nil || session.UserID != userID {
		return nil, services.NewUserError(services.ErrNotFound, "Session not found")
	}
	product, err := s.store.GetProduct(ctx, session.ProductID)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch try-on session", Cause: err}
	}
	if session.UserPhotoID != "" {
		photo, err := s.store.GetPhoto(ctx, session.UserPhotoID)
		if err != nil {
			return nil, &services.UserError{Message: "Failed to fetch try-on session", Cause: err}
		}
		session.UserPhoto = photo
	}
	session.Product = summarize(product)
	return session, nil
}

// Retry re-queues a failed session.
func (s *Service) Retry(ctx context.Context, id string) error {
	existing, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return services.NewUserError(services.ErrNotFound, "Session not found")
	}
	ok, err := s.store.RetrySession(ctx, id)
	if errors.Is(err, store.ErrActiveSession) {
		return services.NewUserError(services.ErrValidation, "An identical session is already queued")
	}
	if err != nil {
		return err
	}
	if !ok {
		return services.NewUserError(services.ErrValidation, "Only failed sessions can be retried")
	}
	s.logger.Info("try-on session re-queued", logging.String(logging.FieldSessionID, id))
	if s.waker != nil {
		s.waker.Wake()
	}
	return nil
}

func summarize(product *store.Product) *store.ProductSummary {
	if product == nil {
		return nil
	}
	return &store.ProductSummary{ID: product.ID, Title: product.Title, ImageURL: product.ImageURL}
}

func validateMask(mask *kieai.Mask) error {
	if mask == nil {
		return nil
	}
	for _, v := range []float64{mask.X, mask.Y, mask.Width, mask.Height} {
		if v < 0 || v > 100 {
			return services.NewUserError(services.ErrValidation, "Mask values must be percentages between 0 and 100")
		}
	}
	return nil
}

// InferProductType buckets a product title for the generation prompt.
func InferProductType(title string) string {
	lower := strings.ToLower(title)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case containsAny("dress", "gown", "jumpsuit"):
		return "dress"
	case containsAny("jacket", "coat", "blazer", "cardigan"):
		return "outerwear"
	case containsAny("pants", "jeans", "skirt", "shorts", "trousers"):
		return "bottom"
	default:
		return "top"
	}
}
