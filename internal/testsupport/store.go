package testsupport

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"fitstogo/internal/config"
	"fitstogo/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

var productSeq atomic.Int64

// ProductOption customizes SeedProduct.
type ProductOption func(*store.Product)

// WithPlatform sets the product platform.
func WithPlatform(platform store.Platform) ProductOption {
	return func(p *store.Product) { p.Platform = platform }
}

// WithTitle sets the product title.
func WithTitle(title string) ProductOption {
	return func(p *store.Product) { p.Title = title }
}

// WithPrice sets the product price.
func WithPrice(price float64) ProductOption {
	return func(p *store.Product) { p.Price = price }
}

// WithCategory sets the product category id.
func WithCategory(categoryID string) ProductOption {
	return func(p *store.Product) { p.CategoryID = categoryID }
}

// SeedProduct inserts an active product with S/M sizes.
func SeedProduct(t testing.TB, st *store.Store, opts ...ProductOption) *store.Product {
	t.Helper()
	n := productSeq.Add(1)
	product := &store.Product{
		ExternalID:   fmt.Sprintf("ext-%d", n),
		Platform:     store.PlatformShopee,
		Title:        fmt.Sprintf("Test Shirt %d", n),
		Price:        299,
		Currency:     "THB",
		ImageURL:     fmt.Sprintf("https://cdn.example/products/%d.jpg", n),
		AffiliateURL: fmt.Sprintf("https://shopee.co.th/product/%d", n),
		IsActive:     true,
		Sizes:        []store.ProductSize{{Size: "S"}, {Size: "M"}},
	}
	for _, opt := range opts {
		opt(product)
	}
	if err := st.UpsertProduct(context.Background(), product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedPhoto inserts a photo for userID.
func SeedPhoto(t testing.TB, st *store.Store, userID string) *store.UserPhoto {
	t.Helper()
	photo := &store.UserPhoto{
		UserID:    userID,
		PhotoURL:  fmt.Sprintf("https://cdn.example/photos/%s/%d.jpg", userID, productSeq.Add(1)),
		PhotoType: store.PhotoFullBody,
	}
	if err := st.CreatePhoto(context.Background(), photo); err != nil {
		t.Fatalf("seed photo: %v", err)
	}
	return photo
}
