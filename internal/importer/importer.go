// Package importer loads marketplace product feed exports into the catalog.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"fitstogo/internal/logging"
	"fitstogo/internal/store"
)

const (
	defaultMaxProducts = 2000
	batchSize          = 100
	maxTitle           = 500
	maxDescription     = 5000
	maxImages          = 10
)

// categorySlugs maps feed top-level categories to catalog slugs. Rows in any
// other category are skipped.
var categorySlugs = map[string]string{
	"Women Clothes":       "women",
	"Men Clothes":         "men",
	"Baby & Kids Fashion": "kids",
	"Women Shoes":         "women",
	"Men Shoes":           "men",
	"Muslim Fashion":      "women",
}

var catalogCategories = []struct{ slug, name string }{
	{"women", "Women"},
	{"men", "Men"},
	{"kids", "Kids"},
	{"accessories", "Accessories"},
}

var defaultSizes = []string{"S", "M", "L", "XL"}

// Invalidator drops cached catalog reads after an import.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Summary reports what an import did.
type Summary struct {
	Processed int `json:"processed"`
	Imported  int `json:"imported"`
	Sizes     int `json:"sizes"`
	Variants  int `json:"variants"`
	Skipped   int `json:"skipped"`
}

// Importer replaces the Shopee catalog from a product feed CSV.
type Importer struct {
	store       *store.Store
	invalidator Invalidator
	logger      *slog.Logger
	maxProducts int
}

// Option customizes an Importer.
type Option func(*Importer)

// WithMaxProducts caps how many products one import keeps.
func WithMaxProducts(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.maxProducts = n
		}
	}
}

// New builds an importer.
func New(st *store.Store, invalidator Invalidator, logger *slog.Logger, opts ...Option) *Importer {
	imp := &Importer{
		store:       st,
		invalidator: invalidator,
		logger:      logging.NewComponentLogger(logger, "importer"),
		maxProducts: defaultMaxProducts,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

type row struct {
	index  map[string]int
	record []string
}

func (r row) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// ImportShopee deactivates existing Shopee products and imports clothing rows
// from the feed until the product cap is reached. Products present in the
// feed are updated in place and become active again.
func (imp *Importer) ImportShopee(ctx context.Context, feed io.Reader) (Summary, error) {
	var summary Summary

	categoryIDs := make(map[string]string, len(catalogCategories))
	for _, c := range catalogCategories {
		category, err := imp.store.UpsertCategory(ctx, c.name, c.slug)
		if err != nil {
			return summary, err
		}
		categoryIDs[c.slug] = category.ID
	}

	reader := csv.NewReader(feed)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return summary, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	deactivated, err := imp.store.DeactivateProductsByPlatform(ctx, store.PlatformShopee)
	if err != nil {
		return summary, err
	}
	imp.logger.Info("deactivated shopee products",
		logging.String(logging.FieldEventType, "import_cleared"),
		logging.Int64("deactivated", deactivated),
	)

	batch := make([]*store.Product, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := imp.store.InsertProductBatch(ctx, batch)
		if err != nil {
			return err
		}
		summary.Imported += result.Products
		summary.Sizes += result.Sizes
		summary.Variants += result.Variants
		batch = batch[:0]
		imp.logger.Debug("import batch written", logging.Int("imported", summary.Imported))
		return nil
	}

	collected := 0
	for collected < imp.maxProducts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				summary.Processed++
				summary.Skipped++
				continue
			}
			return summary, fmt.Errorf("read csv: %w", err)
		}
		summary.Processed++

		product := buildProduct(row{index: index, record: record}, categoryIDs)
		if product == nil {
			summary.Skipped++
			continue
		}
		batch = append(batch, product)
		collected++
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := flush(); err != nil {
		return summary, err
	}

	if imp.invalidator != nil {
		imp.invalidator.Invalidate(ctx)
	}
	imp.logger.Info("shopee import complete",
		logging.String(logging.FieldEventType, "import_complete"),
		logging.Int("processed", summary.Processed),
		logging.Int("imported", summary.Imported),
		logging.Int("sizes", summary.Sizes),
		logging.Int("variants", summary.Variants),
		logging.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func buildProduct(r row, categoryIDs map[string]string) *store.Product {
	slug, ok := categorySlugs[r.get("global_category1")]
	if !ok {
		return nil
	}
	title := r.get("title")
	priceRaw := r.get("price")
	image := r.get("image_link")
	link := r.get("product_link")
	if title == "" || priceRaw == "" || image == "" || link == "" || r.get("itemid") == "" {
		return nil
	}

	listPrice := parseFloat(priceRaw)
	price := listPrice
	if sale := r.get("sale_price"); sale != "" {
		price = parseFloat(sale)
	}
	var originalPrice *float64
	if listPrice > price {
		originalPrice = &listPrice
	}
	var rating *float64
	if value := parseFloat(r.get("item_rating")); value != 0 {
		rating = &value
	}
	reviewCount, _ := strconv.Atoi(r.get("item_sold"))

	var images []string
	for _, img := range strings.Split(r.get("additional_image_link"), ",") {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
		if len(images) == maxImages {
			break
		}
	}

	affiliateURL := r.get("product_short link")
	if affiliateURL == "" {
		affiliateURL = link
	}

	variants := ParseVariants(r.get("model_names"), r.get("model_prices"), r.get("model_ids"), price)
	sizeLabels := UniqueSizes(variants)
	if len(sizeLabels) == 0 {
		sizeLabels = defaultSizes
	}
	sizes := make([]store.ProductSize, 0, len(sizeLabels))
	for _, label := range sizeLabels {
		sizes = append(sizes, store.ProductSize{Size: label, StockStatus: store.StockIn})
	}

	return &store.Product{
		ExternalID:    r.get("itemid"),
		Platform:      store.PlatformShopee,
		Title:         truncateRunes(title, maxTitle),
		Description:   truncateRunes(r.get("description"), maxDescription),
		Price:         price,
		OriginalPrice: originalPrice,
		Currency:      "THB",
		ImageURL:      image,
		Images:        images,
		AffiliateURL:  affiliateURL,
		CategoryID:    categoryIDs[slug],
		Brand:         r.get("global_brand"),
		Rating:        rating,
		ReviewCount:   reviewCount,
		IsActive:      true,
		Sizes:         sizes,
		Variants:      variants,
	}
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}
