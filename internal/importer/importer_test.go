package importer_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"fitstogo/internal/importer"
	"fitstogo/internal/store"
	"fitstogo/internal/testsupport"
)

var feedHeader = []string{
	"itemid", "title", "description", "price", "sale_price", "image_link", "additional_image_link",
	"global_category1", "item_rating", "item_sold", "product_link", "product_short link",
	"global_brand", "model_names", "model_prices", "model_ids",
}

type feedRow map[string]string

func buildFeed(t *testing.T, rows ...feedRow) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(feedHeader); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, r := range rows {
		record := make([]string, len(feedHeader))
		for i, column := range feedHeader {
			record[i] = r[column]
		}
		if err := w.Write(record); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	return &buf
}

func clothingRow(id string) feedRow {
	return feedRow{
		"itemid":           id,
		"title":            "Linen Shirt " + id,
		"price":            "590",
		"sale_price":       "390",
		"image_link":       "https://cf.shopee.co.th/file/" + id,
		"global_category1": "Men Clothes",
		"item_rating":      "4.8",
		"item_sold":        "120",
		"product_link":     "https://shopee.co.th/product/" + id,
	}
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

func TestImportShopee(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	stale := testsupport.SeedProduct(t, st, testsupport.WithPlatform(store.PlatformShopee))
	lazada := testsupport.SeedProduct(t, st, testsupport.WithPlatform(store.PlatformLazada))

	withVariants := clothingRow("100")
	withVariants["global_category1"] = "Women Clothes"
	withVariants["product_short link"] = "https://s.shopee.co.th/abc"
	withVariants["additional_image_link"] = "https://img/1.jpg,https://img/2.jpg,"
	withVariants["global_brand"] = "Acme"
	withVariants["model_names"] = "สีดำ,M|White,L|ชมพูพาสเทล"
	withVariants["model_prices"] = "350|360|"
	withVariants["model_ids"] = "v1|v2|v3"

	noSale := clothingRow("101")
	noSale["sale_price"] = ""
	noSale["global_category1"] = "Baby & Kids Fashion"

	electronics := clothingRow("102")
	electronics["global_category1"] = "Mobile & Gadgets"
	missingImage := clothingRow("103")
	missingImage["image_link"] = ""

	invalidator := &countingInvalidator{}
	imp := importer.New(st, invalidator, nil)
	summary, err := imp.ImportShopee(ctx, buildFeed(t, withVariants, noSale, electronics, missingImage))
	if err != nil {
		t.Fatalf("ImportShopee: %v", err)
	}
	want := importer.Summary{Processed: 4, Imported: 2, Sizes: 2 + 4, Variants: 3, Skipped: 2}
	if summary != want {
		t.Fatalf("summary = %+v, want %+v", summary, want)
	}
	if invalidator.calls != 1 {
		t.Fatalf("expected cache invalidation")
	}

	if got, _ := st.GetProduct(ctx, stale.ID); got == nil || got.IsActive {
		t.Fatalf("stale shopee product should be kept inactive, got %+v", got)
	}
	if got, _ := st.GetProduct(ctx, lazada.ID); got == nil {
		t.Fatalf("lazada product removed by shopee import")
	}

	products, total, err := st.ListProducts(ctx, store.ProductFilter{Platform: store.PlatformShopee, Limit: 10})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 shopee products, got %d", total)
	}
	byExternal := map[string]*store.Product{}
	for _, p := range products {
		byExternal[p.ExternalID] = p
	}

	p, err := st.GetProduct(ctx, byExternal["100"].ID)
	if err != nil || p == nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.Price != 390 || p.OriginalPrice == nil || *p.OriginalPrice != 590 {
		t.Fatalf("unexpected pricing: price=%v original=%v", p.Price, p.OriginalPrice)
	}
	if p.AffiliateURL != "https://s.shopee.co.th/abc" || p.Brand != "Acme" || p.ReviewCount != 120 {
		t.Fatalf("unexpected product fields: %+v", p)
	}
	if len(p.Images) != 2 {
		t.Fatalf("expected 2 images, got %v", p.Images)
	}
	if p.Category == nil || p.Category.Slug != "women" {
		t.Fatalf("expected women category, got %+v", p.Category)
	}
	if len(p.Sizes) != 2 {
		t.Fatalf("expected sizes from variants, got %+v", p.Sizes)
	}
	if len(p.Variants) != 3 {
		t.Fatalf("expected 3 variants, got %+v", p.Variants)
	}

	kids, err := st.GetProduct(ctx, byExternal["101"].ID)
	if err != nil || kids == nil {
		t.Fatalf("GetProduct kids: %v", err)
	}
	if kids.Price != 590 || kids.OriginalPrice != nil {
		t.Fatalf("unexpected pricing without sale: price=%v original=%v", kids.Price, kids.OriginalPrice)
	}
	if len(kids.Sizes) != 4 {
		t.Fatalf("expected default sizes, got %+v", kids.Sizes)
	}
	if kids.Category == nil || kids.Category.Slug != "kids" {
		t.Fatalf("expected kids category, got %+v", kids.Category)
	}

	for _, slug := range []string{"women", "men", "kids", "accessories"} {
		if c, err := st.CategoryBySlug(ctx, slug); err != nil || c == nil {
			t.Fatalf("category %s missing: %v", slug, err)
		}
	}
}

func TestReimportKeepsSessionsAndClicks(t *testing.T) {
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	imp := importer.New(st, nil, nil)

	row := clothingRow("300")
	row["model_names"] = "Black,M|White,L"
	row["model_prices"] = "350|360"
	if _, err := imp.ImportShopee(ctx, buildFeed(t, row)); err != nil {
		t.Fatalf("first import: %v", err)
	}
	products, _, err := st.ListProducts(ctx, store.ProductFilter{Platform: store.PlatformShopee, Limit: 10})
	if err != nil || len(products) != 1 {
		t.Fatalf("ListProducts: %d %v", len(products), err)
	}
	product := products[0]

	photo := testsupport.SeedPhoto(t, st, "user-1")
	session := &store.TryOnSession{UserID: "user-1", ProductID: product.ID, UserPhotoID: photo.ID}
	if err := st.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.RecordClick(ctx, &store.Click{ProductID: product.ID, Platform: store.PlatformShopee, IPAddress: "1.2.3.4"}); err != nil {
		t.Fatalf("RecordClick: %v", err)
	}

	if _, err := imp.ImportShopee(ctx, buildFeed(t, row)); err != nil {
		t.Fatalf("second import: %v", err)
	}

	if got, err := st.GetSession(ctx, session.ID); err != nil || got == nil {
		t.Fatalf("session lost on re-import: %v", err)
	}
	if used, err := st.CountUsageSince(ctx, "user-1", time.Now().Add(-time.Hour)); err != nil || used != 1 {
		t.Fatalf("usage after re-import = %d (%v), want 1", used, err)
	}
	stats, err := st.ClickStats(ctx, time.Now().Add(-time.Hour))
	if err != nil || stats[store.PlatformShopee] != 1 {
		t.Fatalf("click stats after re-import = %v (%v)", stats, err)
	}
	reloaded, err := st.GetProduct(ctx, product.ID)
	if err != nil || reloaded == nil || !reloaded.IsActive {
		t.Fatalf("re-imported product should be active: %+v %v", reloaded, err)
	}
	if len(reloaded.Variants) != 2 {
		t.Fatalf("variants duplicated on re-import: %d", len(reloaded.Variants))
	}
}

func TestImportShopeeCapsProducts(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rows := make([]feedRow, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, clothingRow(fmt.Sprintf("%d", 200+i)))
	}
	imp := importer.New(st, nil, nil, importer.WithMaxProducts(3))
	summary, err := imp.ImportShopee(context.Background(), buildFeed(t, rows...))
	if err != nil {
		t.Fatalf("ImportShopee: %v", err)
	}
	if summary.Imported != 3 || summary.Processed != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestImportShopeeRejectsEmptyFeed(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	seeded := testsupport.SeedProduct(t, st)
	if _, err := importer.New(st, nil, nil).ImportShopee(context.Background(), strings.NewReader("")); err == nil {
		t.Fatalf("expected error for feed without header")
	}
	if got, _ := st.GetProduct(context.Background(), seeded.ID); got == nil {
		t.Fatalf("products must survive a feed that fails to parse")
	}
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name      string
		names     string
		prices    string
		wantColor []string
		wantSize  []string
		wantPrice []float64
	}{
		{
			name:      "thai colour and size",
			names:     "สีขาว,M|ดํา,XL",
			prices:    "100|120",
			wantColor: []string{"White", "Black"},
			wantSize:  []string{"M", "XL"},
			wantPrice: []float64{100, 120},
		},
		{
			name:      "english colour title cased",
			names:     "NAVY,free size",
			wantColor: []string{"Navy"},
			wantSize:  []string{"FREE SIZE"},
			wantPrice: []float64{99},
		},
		{
			name:      "numeric size and fallback price",
			names:     "Red,42|Red,44",
			prices:    "abc",
			wantColor: []string{"Red", "Red"},
			wantSize:  []string{"42", "44"},
			wantPrice: []float64{99, 99},
		},
		{
			name:      "single part substring colour",
			names:     "เสื้อสีเทาอ่อน",
			wantColor: []string{"Gray"},
			wantSize:  []string{""},
			wantPrice: []float64{99},
		},
		{
			name:      "unknown parts",
			names:     "Pattern A, Long",
			wantColor: []string{""},
			wantSize:  []string{""},
			wantPrice: []float64{99},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variants := importer.ParseVariants(tt.names, tt.prices, "", 99)
			if len(variants) != len(tt.wantColor) {
				t.Fatalf("got %d variants, want %d", len(variants), len(tt.wantColor))
			}
			for i, v := range variants {
				if v.Color != tt.wantColor[i] || v.Size != tt.wantSize[i] || v.Price != tt.wantPrice[i] {
					t.Fatalf("variant %d = %+v, want color=%q size=%q price=%v", i, v, tt.wantColor[i], tt.wantSize[i], tt.wantPrice[i])
				}
			}
		})
	}
}

func TestUniqueSizes(t *testing.T) {
	variants := importer.ParseVariants("Black,M|White,M|Black,L", "", "", 1)
	got := importer.UniqueSizes(variants)
	if strings.Join(got, ",") != "M,L" {
		t.Fatalf("UniqueSizes = %v", got)
	}
}
