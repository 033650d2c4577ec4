package affiliate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"fitstogo/internal/logging"
	"fitstogo/internal/store"
)

// maxPages bounds pagination per category so a misbehaving feed cannot loop.
const maxPages = 20

// Invalidator drops cached catalog reads after products change.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// SyncResult summarizes one platform sync.
type SyncResult struct {
	Platform      store.Platform `json:"platform"`
	Success       bool           `json:"success"`
	ProductsCount int            `json:"productsCount"`
	Errors        []string       `json:"errors,omitempty"`
}

// Syncer runs feed syncs and records them in sync_logs.
type Syncer struct {
	store       *store.Store
	sources     map[store.Platform]*Source
	invalidator Invalidator
	pageSize    int
	logger      *slog.Logger
	observer    func(platform store.Platform, status store.SyncStatus, count int)
}

// SyncerOption customizes a Syncer.
type SyncerOption func(*Syncer)

// WithSyncObserver registers a callback invoked after every platform sync.
func WithSyncObserver(observer func(platform store.Platform, status store.SyncStatus, count int)) SyncerOption {
	return func(s *Syncer) { s.observer = observer }
}

// WithPageSize overrides the feed page size.
func WithPageSize(size int) SyncerOption {
	return func(s *Syncer) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewSyncer builds a syncer over the given sources.
func NewSyncer(st *store.Store, invalidator Invalidator, logger *slog.Logger, sources []*Source, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		store:       st,
		sources:     make(map[store.Platform]*Source, len(sources)),
		invalidator: invalidator,
		pageSize:    50,
		logger:      logging.NewComponentLogger(logger, "affiliate"),
	}
	for _, source := range sources {
		s.sources[source.Platform] = source
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Platforms lists the platforms with a registered source.
func (s *Syncer) Platforms() []store.Platform {
	out := make([]store.Platform, 0, len(s.sources))
	for _, platform := range []store.Platform{store.PlatformShopee, store.PlatformLazada} {
		if _, ok := s.sources[platform]; ok {
			out = append(out, platform)
		}
	}
	return out
}

// SyncPlatform pulls every configured category of one platform. Category
// failures are collected into the result; only bookkeeping failures are
// returned as errors.
func (s *Syncer) SyncPlatform(ctx context.Context, platform store.Platform) (SyncResult, error) {
	result := SyncResult{Platform: platform}
	source, ok := s.sources[platform]
	if !ok {
		return result, fmt.Errorf("no affiliate source for %s", platform)
	}
	logger := s.logger.With(logging.String(logging.FieldPlatform, string(platform)))

	entry, err := s.store.StartSyncLog(ctx, platform)
	if err != nil {
		return result, err
	}
	if !source.Configured() {
		logger.Info("affiliate credentials not configured; feed is empty",
			logging.String(logging.FieldEventType, "affiliate_sync_unconfigured"))
	}

	for _, category := range source.Categories() {
		count, err := s.syncCategory(ctx, source, category)
		result.ProductsCount += count
		if err != nil {
			if ctx.Err() != nil {
				s.finish(ctx, entry.ID, store.SyncFailed, result.ProductsCount, ctx.Err().Error())
				return result, ctx.Err()
			}
			msg := fmt.Sprintf("Failed to sync category %s: %v", category, err)
			result.Errors = append(result.Errors, msg)
			logging.WarnWithContext(logger, "affiliate category sync failed", "affiliate_category_failed",
				logging.String("category", category),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check affiliate credentials and base_url"),
				logging.String(logging.FieldImpact, "category products not refreshed"),
			)
		}
	}

	result.Success = len(result.Errors) == 0
	status := store.SyncCompleted
	if !result.Success {
		status = store.SyncFailed
	}
	if err := s.store.FinishSyncLog(ctx, entry.ID, status, result.ProductsCount, strings.Join(result.Errors, "\n")); err != nil {
		return result, err
	}
	if s.observer != nil {
		s.observer(platform, status, result.ProductsCount)
	}
	logger.Info("affiliate sync finished",
		logging.String(logging.FieldEventType, "affiliate_sync_finished"),
		logging.String("status", string(status)),
		logging.Int("products", result.ProductsCount),
	)
	return result, nil
}

func (s *Syncer) finish(ctx context.Context, id string, status store.SyncStatus, count int, msg string) {
	if err := s.store.FinishSyncLog(context.WithoutCancel(ctx), id, status, count, msg); err != nil {
		logging.WarnWithContext(s.logger, "failed to close sync log", "sync_log_update_failed", logging.Error(err))
	}
}

func (s *Syncer) syncCategory(ctx context.Context, source *Source, category string) (int, error) {
	var categoryID string
	if cat, err := s.store.CategoryBySlug(ctx, category); err != nil {
		return 0, err
	} else if cat != nil {
		categoryID = cat.ID
	}

	count := 0
	for page := 1; page <= maxPages; page++ {
		items, err := source.Fetch(ctx, category, page, s.pageSize)
		if err != nil {
			return count, err
		}
		for _, item := range items {
			product := s.toProduct(ctx, source, item, categoryID)
			if product == nil {
				continue
			}
			if err := s.store.UpsertProduct(ctx, product); err != nil {
				return count, err
			}
			count++
		}
		if len(items) < s.pageSize {
			break
		}
	}
	return count, nil
}

func (s *Syncer) toProduct(ctx context.Context, source *Source, item Product, categoryID string) *store.Product {
	if strings.TrimSpace(item.ExternalID) == "" || strings.TrimSpace(item.Title) == "" {
		return nil
	}
	if item.Category != "" {
		if cat, err := s.store.CategoryBySlug(ctx, item.Category); err == nil && cat != nil {
			categoryID = cat.ID
		}
	}
	sizes := make([]store.ProductSize, 0, len(item.Sizes))
	for _, size := range item.Sizes {
		sizes = append(sizes, store.ProductSize{Size: size.Size, StockStatus: size.StockStatus})
	}
	images := item.Images
	if len(images) == 0 && item.ImageURL != "" {
		images = []string{item.ImageURL}
	}
	return &store.Product{
		ExternalID:    item.ExternalID,
		Platform:      source.Platform,
		Title:         item.Title,
		Description:   item.Description,
		Price:         item.Price,
		OriginalPrice: item.OriginalPrice,
		Currency:      item.Currency,
		ImageURL:      item.ImageURL,
		Images:        images,
		AffiliateURL:  source.AffiliateURL(item.ProductURL),
		CategoryID:    categoryID,
		Brand:         item.Brand,
		Rating:        item.Rating,
		ReviewCount:   item.ReviewCount,
		IsActive:      true,
		Sizes:         sizes,
	}
}

// SyncAll syncs every platform concurrently. One platform failing never
// stops the others; the joined error reports every failure.
func (s *Syncer) SyncAll(ctx context.Context) ([]SyncResult, error) {
	platforms := s.Platforms()
	results := make([]SyncResult, len(platforms))
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for i, platform := range platforms {
		g.Go(func() error {
			result, err := s.SyncPlatform(ctx, platform)
			results[i] = result
			if err != nil {
				logging.ErrorWithContext(s.logger, "affiliate sync failed", "affiliate_sync_failed",
					logging.String(logging.FieldPlatform, string(platform)),
					logging.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", platform, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return results, errors.Join(errs...)
}
