package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const productColumns = "p.id, p.external_id, p.platform, p.title, p.description, p.price, p.original_price, p.currency, p.image_url, p.images_json, p.affiliate_url, p.category_id, p.brand, p.rating, p.review_count, p.is_active, p.created_at, p.updated_at, c.id, c.name, c.slug, c.created_at"

// Product sort orders accepted by ListProducts.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
)

// ProductFilter narrows ListProducts. Only active products are returned.
type ProductFilter struct {
	Platform     Platform
	CategorySlug string
	MinPrice     *float64
	MaxPrice     *float64
	Search       string
	Sort         string
	Offset       int
	Limit        int
}

func scanProduct(scanner rowScanner) (*Product, error) {
	var (
		p             Product
		platform      string
		description   sql.NullString
		originalPrice sql.NullFloat64
		imagesJSON    sql.NullString
		categoryID    sql.NullString
		brand         sql.NullString
		rating        sql.NullFloat64
		isActive      int
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		catID         sql.NullString
		catName       sql.NullString
		catSlug       sql.NullString
		catCreated    sql.NullString
	)
	if err := scanner.Scan(
		&p.ID, &p.ExternalID, &platform, &p.Title, &description, &p.Price, &originalPrice,
		&p.Currency, &p.ImageURL, &imagesJSON, &p.AffiliateURL, &categoryID, &brand, &rating,
		&p.ReviewCount, &isActive, &createdRaw, &updatedRaw,
		&catID, &catName, &catSlug, &catCreated,
	); err != nil {
		return nil, err
	}
	p.Platform = Platform(platform)
	p.Description = description.String
	p.OriginalPrice = floatPtr(originalPrice)
	p.CategoryID = categoryID.String
	p.Brand = brand.String
	p.Rating = floatPtr(rating)
	p.IsActive = isActive != 0
	p.CreatedAt = parseTime(createdRaw)
	p.UpdatedAt = parseTime(updatedRaw)
	p.Images = []string{}
	if imagesJSON.Valid && imagesJSON.String != "" {
		_ = json.Unmarshal([]byte(imagesJSON.String), &p.Images)
	}
	if catID.Valid {
		p.Category = &Category{ID: catID.String, Name: catName.String, Slug: catSlug.String, CreatedAt: parseTime(catCreated)}
	}
	return &p, nil
}

func productOrder(sort string) string {
	switch sort {
	case SortPriceAsc:
		return "p.price ASC, p.id"
	case SortPriceDesc:
		return "p.price DESC, p.id"
	case SortRating:
		return "p.rating IS NULL, p.rating DESC, p.id"
	default:
		return "p.created_at DESC, p.id"
	}
}

// ListProducts returns one page of active products with category and sizes,
// plus the total count matching the filter.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, int, error) {
	where := []string{"p.is_active = 1"}
	var args []any
	if filter.Platform != "" {
		where = append(where, "p.platform = ?")
		args = append(args, string(filter.Platform))
	}
	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" {
		where = append(where, "c.slug = ?")
		args = append(args, slug)
	}
	if filter.MinPrice != nil {
		where = append(where, "p.price >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where = append(where, "p.price <= ?")
		args = append(args, *filter.MaxPrice)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		where = append(where, "(LOWER(p.title) LIKE ? OR LOWER(COALESCE(p.brand, '')) LIKE ?)")
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	from := " FROM products p LEFT JOIN categories c ON c.id = p.category_id WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1)"+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + productColumns + from + " ORDER BY " + productOrder(filter.Sort) + " LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, max(filter.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := s.attachSizes(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) attachSizes(ctx context.Context, products []*Product) error {
	if len(products) == 0 {
		return nil
	}
	byID := make(map[string]*Product, len(products))
	args := make([]any, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		p.Sizes = []ProductSize{}
		args = append(args, p.ID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, size, stock_status, in_stock FROM product_sizes
         WHERE product_id IN (`+makePlaceholders(len(args))+`) ORDER BY rowid`, args...)
	if err != nil {
		return fmt.Errorf("list sizes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			size    ProductSize
			inStock int
		)
		if err := rows.Scan(&size.ID, &size.ProductID, &size.Size, &size.StockStatus, &inStock); err != nil {
			return fmt.Errorf("scan size: %w", err)
		}
		size.InStock = inStock != 0
		if p := byID[size.ProductID]; p != nil {
			p.Sizes = append(p.Sizes, size)
		}
	}
	return rows.Err()
}

func (s *Store) productVariants(ctx context.Context, productID string) ([]ProductVariant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, external_id, name, color, size, price, in_stock FROM product_variants
         WHERE product_id = ? ORDER BY rowid`, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()
	variants := []ProductVariant{}
	for rows.Next() {
		var (
			v          ProductVariant
			externalID sql.NullString
			color      sql.NullString
			size       sql.NullString
			inStock    int
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &externalID, &v.Name, &color, &size, &v.Price, &inStock); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		v.ExternalID = externalID.String
		v.Color = color.String
		v.Size = size.String
		v.InStock = inStock != 0
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// GetProduct fetches a product with its category, sizes and variants.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products p LEFT JOIN categories c ON c.id = p.category_id WHERE p.id = ?", id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err := s.attachSizes(ctx, []*Product{product}); err != nil {
		return nil, err
	}
	if product.Variants, err = s.productVariants(ctx, product.ID); err != nil {
		return nil, err
	}
	return product, nil
}

func imagesJSON(images []string) string {
	if len(images) == 0 {
		return "[]"
	}
	data, err := json.Marshal(images)
	if err != nil {
		return "[]"
	}
	return string(data)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) upsertProduct(ctx context.Context, q execer, p *Product) (string, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Currency == "" {
		p.Currency = "THB"
	}
	now := s.timestamp()
	var id string
	err := q.QueryRowContext(ctx,
		`INSERT INTO products (
            id, external_id, platform, title, description, price, original_price, currency,
            image_url, images_json, affiliate_url, category_id, brand, rating, review_count,
            is_active, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(platform, external_id) DO UPDATE SET
            title = excluded.title,
            description = excluded.description,
            price = excluded.price,
            original_price = excluded.original_price,
            currency = excluded.currency,
            image_url = excluded.image_url,
            images_json = excluded.images_json,
            affiliate_url = excluded.affiliate_url,
            category_id = COALESCE(excluded.category_id, products.category_id),
            brand = excluded.brand,
            rating = excluded.rating,
            review_count = excluded.review_count,
            is_active = excluded.is_active,
            updated_at = excluded.updated_at
        RETURNING id`,
		p.ID, p.ExternalID, string(p.Platform), p.Title, nullableString(p.Description), p.Price,
		nullableFloat(p.OriginalPrice), p.Currency, p.ImageURL, imagesJSON(p.Images), p.AffiliateURL,
		nullableString(p.CategoryID), nullableString(p.Brand), nullableFloat(p.Rating), p.ReviewCount,
		boolToInt(p.IsActive), now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert product %s/%s: %w", p.Platform, p.ExternalID, err)
	}
	p.ID = id
	return id, nil
}

func upsertSizes(ctx context.Context, q execer, productID string, sizes []ProductSize) (int, error) {
	count := 0
	for _, size := range sizes {
		label := strings.TrimSpace(size.Size)
		if label == "" {
			continue
		}
		status := size.StockStatus
		if status == "" {
			status = StockIn
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO product_sizes (id, product_id, size, stock_status, in_stock) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(product_id, size) DO UPDATE SET stock_status = excluded.stock_status, in_stock = excluded.in_stock`,
			newID(), productID, label, status, boolToInt(status != StockOut),
		); err != nil {
			return count, fmt.Errorf("upsert size %s: %w", label, err)
		}
		count++
	}
	return count, nil
}

func replaceVariants(ctx context.Context, q execer, productID string, variants []ProductVariant) (int, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = ?`, productID); err != nil {
		return 0, fmt.Errorf("clear variants: %w", err)
	}
	for i, v := range variants {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO product_variants (id, product_id, external_id, name, color, size, price, in_stock)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(), productID, nullableString(v.ExternalID), v.Name, nullableString(v.Color),
			nullableString(v.Size), v.Price, boolToInt(v.InStock),
		); err != nil {
			return i, fmt.Errorf("insert variant %q: %w", v.Name, err)
		}
	}
	return len(variants), nil
}

// UpsertProduct inserts or updates a product keyed by (platform, external id)
// and upserts its sizes. p.ID is set to the persisted id.
func (s *Store) UpsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return errors.New("product is nil")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := s.upsertProduct(ctx, tx, p)
		if err != nil {
			return err
		}
		_, err = upsertSizes(ctx, tx, id, p.Sizes)
		return err
	})
}

// BatchResult counts rows written by InsertProductBatch.
type BatchResult struct {
	Products int
	Sizes    int
	Variants int
}

// InsertProductBatch writes products with their sizes and variants in one
// transaction. Existing (platform, external id) rows are updated in place and
// their variants replaced.
func (s *Store) InsertProductBatch(ctx context.Context, products []*Product) (BatchResult, error) {
	var result BatchResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = BatchResult{}
		for _, p := range products {
			id, err := s.upsertProduct(ctx, tx, p)
			if err != nil {
				return err
			}
			sizes, err := upsertSizes(ctx, tx, id, p.Sizes)
			if err != nil {
				return err
			}
			variants, err := replaceVariants(ctx, tx, id, p.Variants)
			if err != nil {
				return err
			}
			result.Products++
			result.Sizes += sizes
			result.Variants += variants
		}
		return nil
	})
	return result, err
}

// DeactivateProductsByPlatform hides every active product of a platform from
// listings. Rows stay so sessions and clicks keep their product; a later
// upsert of the same external id reactivates it.
func (s *Store) DeactivateProductsByPlatform(ctx context.Context, platform Platform) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE products SET is_active = 0, updated_at = ? WHERE platform = ? AND is_active = 1`,
		s.timestamp(), string(platform))
	if err != nil {
		return 0, fmt.Errorf("deactivate %s products: %w", platform, err)
	}
	return res.RowsAffected()
}

// CountProducts returns product counts grouped by platform.
func (s *Store) CountProducts(ctx context.Context) (map[Platform]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, COUNT(1) FROM products GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	defer rows.Close()
	counts := make(map[Platform]int)
	for rows.Next() {
		var (
			platform string
			count    int
		)
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, err
		}
		counts[Platform(platform)] = count
	}
	return counts, rows.Err()
}

// UpsertCategory creates a category or renames the one with the same slug.
func (s *Store) UpsertCategory(ctx context.Context, name, slug string) (*Category, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errors.New("category slug is required")
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO categories (id, name, slug, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(slug) DO UPDATE SET name = excluded.name`,
		newID(), strings.TrimSpace(name), slug, s.timestamp(),
	); err != nil {
		return nil, fmt.Errorf("upsert category: %w", err)
	}
	return s.CategoryBySlug(ctx, slug)
}

// CategoryBySlug fetches a category by slug.
func (s *Store) CategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var (
		c       Category
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug, created_at FROM categories WHERE slug = ?`, slug).
		Scan(&c.ID, &c.Name, &c.Slug, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	categories := []Category{}
	for rows.Next() {
		var (
			c       Category
			created sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
