package store

import (
	"context"
	"fmt"
)

type seedProduct struct {
	externalID    string
	platform      Platform
	title         string
	description   string
	price         float64
	originalPrice float64
	imageURL      string
	affiliateURL  string
	categorySlug  string
	brand         string
	rating        float64
	reviewCount   int
}

var seedCategories = []Category{
	{Name: "Women Tops", Slug: "women-tops"},
	{Name: "Women Dresses", Slug: "women-dresses"},
	{Name: "Men Shirts", Slug: "men-shirts"},
	{Name: "Outerwear", Slug: "outerwear"},
}

var seedProducts = []seedProduct{
	{"lzd-001", PlatformLazada, "Elegant Summer Floral Dress - Casual Beach Style", "Beautiful floral print dress perfect for summer occasions.", 599, 899, "https://placehold.co/400x600/fce7f3/be185d?text=Floral+Dress", "https://lazada.co.th/products/sample-1", "women-dresses", "SummerStyle", 4.5, 128},
	{"lzd-002", PlatformLazada, "Classic White Blouse - Office Wear Collection", "Elegant white blouse suitable for office and formal occasions.", 450, 550, "https://placehold.co/400x600/f0f9ff/0369a1?text=White+Blouse", "https://lazada.co.th/products/sample-2", "women-tops", "OfficeLady", 4.2, 89},
	{"shp-001", PlatformShopee, "Korean Style Oversized T-Shirt - Unisex Fashion", "Trendy oversized t-shirt with minimalist design.", 299, 399, "https://placehold.co/400x600/f5f5f4/44403c?text=Oversized+Tee", "https://shopee.co.th/products/sample-1", "women-tops", "KoreanStyle", 4.7, 256},
	{"shp-002", PlatformShopee, "Men Premium Cotton Shirt - Business Casual", "High quality cotton shirt for the modern professional.", 699, 899, "https://placehold.co/400x600/eff6ff/1d4ed8?text=Cotton+Shirt", "https://shopee.co.th/products/sample-2", "men-shirts", "GentleMan", 4.4, 167},
	{"lzd-003", PlatformLazada, "Winter Wool Coat - Elegant Long Design", "Warm and stylish wool coat for cold weather.", 1899, 2499, "https://placehold.co/400x600/fef3c7/d97706?text=Wool+Coat", "https://lazada.co.th/products/sample-3", "outerwear", "WinterWarm", 4.8, 45},
	{"shp-003", PlatformShopee, "Casual Denim Jacket - Vintage Wash Style", "Classic denim jacket with vintage wash finish.", 799, 999, "https://placehold.co/400x600/dbeafe/2563eb?text=Denim+Jacket", "https://shopee.co.th/products/sample-3", "outerwear", "DenimCo", 4.3, 198},
}

var seedSizes = []ProductSize{
	{Size: "S", StockStatus: StockIn},
	{Size: "M", StockStatus: StockIn},
	{Size: "L", StockStatus: StockIn},
	{Size: "XL", StockStatus: StockLow},
}

// SeedResult counts rows written by Seed.
type SeedResult struct {
	Categories int
	Products   int
}

// Seed upserts the sample categories and products used for local development.
// It is idempotent.
func (s *Store) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	slugToID := make(map[string]string, len(seedCategories))
	for _, c := range seedCategories {
		category, err := s.UpsertCategory(ctx, c.Name, c.Slug)
		if err != nil {
			return result, fmt.Errorf("seed category %s: %w", c.Slug, err)
		}
		slugToID[c.Slug] = category.ID
		result.Categories++
	}

	products := make([]*Product, 0, len(seedProducts))
	for _, sp := range seedProducts {
		originalPrice := sp.originalPrice
		rating := sp.rating
		products = append(products, &Product{
			ExternalID:    sp.externalID,
			Platform:      sp.platform,
			Title:         sp.title,
			Description:   sp.description,
			Price:         sp.price,
			OriginalPrice: &originalPrice,
			Currency:      "THB",
			ImageURL:      sp.imageURL,
			AffiliateURL:  sp.affiliateURL,
			CategoryID:    slugToID[sp.categorySlug],
			Brand:         sp.brand,
			Rating:        &rating,
			ReviewCount:   sp.reviewCount,
			IsActive:      true,
			Sizes:         seedSizes,
		})
	}
	batch, err := s.InsertProductBatch(ctx, products)
	if err != nil {
		return result, fmt.Errorf("seed products: %w", err)
	}
	result.Products = batch.Products
	return result, nil
}
