// Package catalog serves product listings and details through the read cache.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"fitstogo/internal/cache"
	"fitstogo/internal/logging"
	"fitstogo/internal/services"
	"fitstogo/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	listKeyPrefix   = "products:"
	detailKeyPrefix = "product:"
)

// Filter selects one page of the catalog.
type Filter struct {
	Page     int      `json:"page"`
	Limit    int      `json:"limit"`
	Platform string   `json:"platform,omitempty"`
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"minPrice,omitempty"`
	MaxPrice *float64 `json:"maxPrice,omitempty"`
	Search   string   `json:"search,omitempty"`
	Sort     string   `json:"sort,omitempty"`
}

// Normalize applies paging defaults and bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	f.Platform = strings.ToUpper(strings.TrimSpace(f.Platform))
	f.Category = strings.TrimSpace(f.Category)
	f.Search = strings.TrimSpace(f.Search)
	switch f.Sort {
	case store.SortPriceAsc, store.SortPriceDesc, store.SortRating:
	default:
		f.Sort = store.SortNewest
	}
	return f
}

// Page is one listing response.
type Page struct {
	Data       []*store.Product `json:"data"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

// Service reads the catalog.
type Service struct {
	store     *store.Store
	cache     *cache.Client
	listTTL   time.Duration
	detailTTL time.Duration
	logger    *slog.Logger
}

// NewService builds a catalog service. cache may be nil.
func NewService(st *store.Store, c *cache.Client, listTTL, detailTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		cache:     c,
		listTTL:   listTTL,
		detailTTL: detailTTL,
		logger:    logging.NewComponentLogger(logger, "catalog"),
	}
}

// List returns a filtered, sorted page of active products.
func (s *Service) List(ctx context.Context, filter Filter) (Page, error) {
	filter = filter.Normalize()
	var platform store.Platform
	if filter.Platform != "" {
		parsed, ok := store.ParsePlatform(filter.Platform)
		if !ok {
			return Page{}, services.NewUserError(services.ErrValidation, "Invalid platform")
		}
		platform = parsed
	}
	encoded, err := json.Marshal(filter)
	if err != nil {
		return Page{}, err
	}
	page, err := cache.GetCached(ctx, s.cache, listKeyPrefix+string(encoded), s.listTTL, func(ctx context.Context) (Page, error) {
		products, total, err := s.store.ListProducts(ctx, store.ProductFilter{
			Platform:     platform,
			CategorySlug: filter.Category,
			MinPrice:     filter.MinPrice,
			MaxPrice:     filter.MaxPrice,
			Search:       filter.Search,
			Sort:         filter.Sort,
			Offset:       (filter.Page - 1) * filter.Limit,
			Limit:        filter.Limit,
		})
		if err != nil {
			return Page{}, err
		}
		if products == nil {
			products = []*store.Product{}
		}
		return Page{
			Data:       products,
			Total:      total,
			Page:       filter.Page,
			Limit:      filter.Limit,
			TotalPages: (total + filter.Limit - 1) / filter.Limit,
		}, nil
	})
	if err != nil {
		return Page{}, &services.UserError{Message: "Failed to fetch products", Cause: err}
	}
	return page, nil
}

// Get returns a product with its sizes, variants and category.
func (s *Service) Get(ctx context.Context, id string) (*store.Product, error) {
	product, err := cache.GetCached(ctx, s.cache, detailKeyPrefix+id, s.detailTTL, func(ctx context.Context) (*store.Product, error) {
		product, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return nil, &services.UserError{Message: "Failed to fetch product", Cause: err}
		}
		if product == nil {
			return nil, services.NewUserError(services.ErrNotFound, "Product not found")
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Categories lists every category by name.
func (s *Service) Categories(ctx context.Context) ([]store.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch categories", Cause: err}
	}
	return categories, nil
}

// Invalidate drops cached listings and details. Failures are logged only.
func (s *Service) Invalidate(ctx context.Context) {
	for _, pattern := range []string{listKeyPrefix + "*", detailKeyPrefix + "*"} {
		removed, err := s.cache.InvalidatePattern(ctx, pattern)
		if err != nil {
			logging.WarnWithContext(s.logger, "catalog cache invalidation failed", "cache_invalidate_failed",
				logging.String("pattern", pattern),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale catalog entries expire by TTL"),
			)
			continue
		}
		if removed > 0 {
			s.logger.Debug("catalog cache invalidated", logging.String("pattern", pattern), logging.Int("removed", removed))
		}
	}
}
