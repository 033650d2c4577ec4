// Package affiliate pulls products from marketplace affiliate feeds and
// upserts them into the catalog.
package affiliate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fitstogo/internal/config"
	"fitstogo/internal/services"
	"fitstogo/internal/services/apiclient"
	"fitstogo/internal/store"
)

// SizeStock is one size offered by a feed product.
type SizeStock struct {
	Size        string `json:"size"`
	StockStatus string `json:"stockStatus"`
}

// Product is the feed representation of a marketplace listing.
type Product struct {
	ExternalID    string      `json:"externalId"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Price         float64     `json:"price"`
	OriginalPrice *float64    `json:"originalPrice"`
	Currency      string      `json:"currency"`
	ImageURL      string      `json:"imageUrl"`
	Images        []string    `json:"images"`
	ProductURL    string      `json:"affiliateUrl"`
	Category      string      `json:"category"`
	Brand         string      `json:"brand"`
	Rating        *float64    `json:"rating"`
	ReviewCount   int         `json:"reviewCount"`
	Sizes         []SizeStock `json:"sizes"`
}

type productsResponse struct {
	Products []Product `json:"products"`
}

// Source is one marketplace feed.
type Source struct {
	Platform store.Platform

	affiliateParam string
	cfg            config.AffiliatePlatform
	api            *apiclient.Client
	now            func() time.Time
}

// NewShopee builds the Shopee feed source.
func NewShopee(cfg config.Affiliate, opts ...apiclient.Option) *Source {
	return newSource(store.PlatformShopee, "af_id", cfg.Shopee, cfg.TimeoutSeconds, opts...)
}

// NewLazada builds the Lazada feed source.
func NewLazada(cfg config.Affiliate, opts ...apiclient.Option) *Source {
	return newSource(store.PlatformLazada, "aff_id", cfg.Lazada, cfg.TimeoutSeconds, opts...)
}

func newSource(platform store.Platform, param string, cfg config.AffiliatePlatform, timeoutSeconds int, opts ...apiclient.Option) *Source {
	base := []apiclient.Option{apiclient.WithTimeout(time.Duration(timeoutSeconds) * time.Second)}
	return &Source{
		Platform:       platform,
		affiliateParam: param,
		cfg:            cfg,
		// Credentials travel in signed headers rather than a bearer token.
		api: apiclient.New(strings.ToLower(string(platform)), cfg.BaseURL, "", append(base, opts...)...),
		now: time.Now,
	}
}

// Configured reports whether feed credentials are present.
func (s *Source) Configured() bool {
	return s.cfg.APIKey != "" && s.cfg.APISecret != ""
}

// Categories lists the feed categories synced for this platform.
func (s *Source) Categories() []string {
	return append([]string(nil), s.cfg.Categories...)
}

// Fetch returns one page of a category. Without credentials the feed is empty.
func (s *Source) Fetch(ctx context.Context, category string, page, limit int) ([]Product, error) {
	if !s.Configured() {
		return nil, nil
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	header := http.Header{}
	header.Set("X-Api-Key", s.cfg.APIKey)
	header.Set("X-Timestamp", timestamp)
	header.Set("X-Signature", Sign(s.cfg.APISecret, s.cfg.APIKey, timestamp))

	query := url.Values{}
	query.Set("category", category)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var resp productsResponse
	if err := s.api.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: "/products", Query: query, Header: header}, &resp); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "affiliate", "fetch "+category, string(s.Platform), err)
	}
	return resp.Products, nil
}

// AffiliateURL tags productURL with the platform's affiliate parameter.
// Unparseable URLs are returned unchanged.
func (s *Source) AffiliateURL(productURL string) string {
	if s.cfg.AffiliateID == "" {
		return productURL
	}
	parsed, err := url.Parse(productURL)
	if err != nil || parsed.Scheme == "" {
		return productURL
	}
	query := parsed.Query()
	query.Set(s.affiliateParam, s.cfg.AffiliateID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// Sign returns the hex HMAC-SHA256 of apiKey+timestamp keyed by secret.
func Sign(secret, apiKey, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(apiKey + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
