package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"fitstogo/internal/cache"
	"fitstogo/internal/catalog"
	"fitstogo/internal/services"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
)

func newCatalog(t *testing.T) (*catalog.Service, *store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.Open(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return catalog.NewService(st, client, 5*time.Minute, 10*time.Minute, nil), st, mr
}

func TestFilterNormalize(t *testing.T) {
	tests := []struct {
		in   catalog.Filter
		want catalog.Filter
	}{
		{catalog.Filter{}, catalog.Filter{Page: 1, Limit: 20, Sort: store.SortNewest}},
		{catalog.Filter{Page: 3, Limit: 500, Sort: "price_asc"}, catalog.Filter{Page: 3, Limit: 100, Sort: store.SortPriceAsc}},
		{catalog.Filter{Platform: " shopee ", Sort: "bogus"}, catalog.Filter{Page: 1, Limit: 20, Platform: "SHOPEE", Sort: store.SortNewest}},
	}
	for _, tc := range tests {
		got := tc.in.Normalize()
		if got.Page != tc.want.Page || got.Limit != tc.want.Limit || got.Sort != tc.want.Sort || got.Platform != tc.want.Platform {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestListPaginatesAndCaches(t *testing.T) {
	svc, st, mr := newCatalog(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		testsupport.SeedProduct(t, st)
	}

	page, err := svc.List(ctx, catalog.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Data) != 2 || page.Page != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(page.Data[0].Sizes) != 2 {
		t.Fatalf("expected sizes attached, got %+v", page.Data[0].Sizes)
	}
	if keys := mr.Keys(); len(keys) != 1 {
		t.Fatalf("expected one cached listing, got %v", keys)
	}

	testsupport.SeedProduct(t, st)
	cached, err := svc.List(ctx, catalog.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if cached.Total != 3 {
		t.Fatalf("expected cached total 3, got %d", cached.Total)
	}

	svc.Invalidate(ctx)
	fresh, err := svc.List(ctx, catalog.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if fresh.Total != 4 {
		t.Fatalf("expected fresh total 4, got %d", fresh.Total)
	}
}

func TestListRejectsUnknownPlatform(t *testing.T) {
	svc, _, _ := newCatalog(t)
	_, err := svc.List(context.Background(), catalog.Filter{Platform: "amazon"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetProduct(t *testing.T) {
	svc, st, mr := newCatalog(t)
	ctx := context.Background()
	product := testsupport.SeedProduct(t, st, testsupport.WithTitle("Linen Dress"))

	got, err := svc.Get(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Linen Dress" {
		t.Fatalf("title = %q", got.Title)
	}
	if !mr.Exists("product:" + product.ID) {
		t.Fatal("expected product detail cached")
	}

	_, err = svc.Get(ctx, "missing")
	if !errors.Is(err, services.ErrNotFound) || services.Message(err) != "Product not found" {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("product:missing") {
		t.Fatal("misses must not be cached")
	}
}

func TestListWithoutCache(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	svc := catalog.NewService(st, nil, time.Minute, time.Minute, nil)
	testsupport.SeedProduct(t, st, testsupport.WithPlatform(store.PlatformLazada))

	page, err := svc.List(context.Background(), catalog.Filter{Platform: "LAZADA"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 product, got %d", page.Total)
	}
	empty, err := svc.List(context.Background(), catalog.Filter{Platform: "SHOPEE"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if empty.Data == nil || len(empty.Data) != 0 {
		t.Fatalf("expected empty non-nil data, got %#v", empty.Data)
	}
	svc.Invalidate(context.Background())
}
