// Package clicks records affiliate click-throughs and resolves their
// outbound marketplace URLs.
package clicks

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fitstogo/internal/logging"
	"fitstogo/internal/services"
	"fitstogo/internal/store"
)

// FallbackPath is where visitors land when the product no longer exists.
const FallbackPath = "/products"

// Visit describes one redirect request.
type Visit struct {
	ProductID string
	UserID    string
	IP        string
	UserAgent string
}

// Service records clicks.
type Service struct {
	store    *store.Store
	logger   *slog.Logger
	observer func(platform store.Platform)
}

// Option customizes the service.
type Option func(*Service)

// WithObserver registers a callback invoked for every recorded click.
func WithObserver(observer func(platform store.Platform)) Option {
	return func(s *Service) { s.observer = observer }
}

// NewService builds a click service.
func NewService(st *store.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: st, logger: logging.NewComponentLogger(logger, "clicks")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Redirect records a click for the visit and returns the affiliate URL.
// found is false when the product does not exist; callers send the visitor
// to FallbackPath instead.
func (s *Service) Redirect(ctx context.Context, visit Visit) (string, bool, error) {
	product, err := s.store.GetProduct(ctx, visit.ProductID)
	if err != nil {
		return "", false, &services.UserError{Message: "Redirect failed", Cause: err}
	}
	if product == nil {
		return "", false, nil
	}
	click := &store.Click{
		ProductID: product.ID,
		UserID:    visit.UserID,
		Platform:  product.Platform,
		IPAddress: visit.IP,
		UserAgent: visit.UserAgent,
	}
	if err := s.store.RecordClick(ctx, click); err != nil {
		return "", false, &services.UserError{Message: "Redirect failed", Cause: err}
	}
	if s.observer != nil {
		s.observer(product.Platform)
	}
	s.logger.Debug("affiliate click recorded",
		logging.String(logging.FieldProductID, product.ID),
		logging.String(logging.FieldPlatform, string(product.Platform)),
		logging.String(logging.FieldUserID, visit.UserID),
	)
	return product.AffiliateURL, true, nil
}

// Stats counts clicks per platform at or after since.
func (s *Service) Stats(ctx context.Context, since time.Time) (map[store.Platform]int, error) {
	return s.store.ClickStats(ctx, since)
}

// ClientIP returns the first X-Forwarded-For entry, else X-Real-IP, else
// "unknown".
func ClientIP(header http.Header) string {
	if forwarded := header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(header.Get("X-Real-IP")); real != "" {
		return real
	}
	return "unknown"
}
