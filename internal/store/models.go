package store

import (
	"strings"
	"time"
)

// Platform identifies the marketplace a product was sourced from.
type Platform string

const (
	PlatformShopee Platform = "SHOPEE"
	PlatformLazada Platform = "LAZADA"
)

// ParsePlatform normalizes a platform name. ok is false for unknown values.
func ParsePlatform(value string) (Platform, bool) {
	switch Platform(strings.ToUpper(strings.TrimSpace(value))) {
	case PlatformShopee:
		return PlatformShopee, true
	case PlatformLazada:
		return PlatformLazada, true
	}
	return "", false
}

// PhotoType describes how much of the body a user photo shows.
type PhotoType string

const (
	PhotoFullBody  PhotoType = "FULL_BODY"
	PhotoUpperBody PhotoType = "UPPER_BODY"
	PhotoLowerBody PhotoType = "LOWER_BODY"
)

// ParsePhotoType returns the photo type for value; empty means FULL_BODY.
func ParsePhotoType(value string) (PhotoType, bool) {
	switch PhotoType(strings.ToUpper(strings.TrimSpace(value))) {
	case "", PhotoFullBody:
		return PhotoFullBody, true
	case PhotoUpperBody:
		return PhotoUpperBody, true
	case PhotoLowerBody:
		return PhotoLowerBody, true
	}
	return "", false
}

// SessionStatus represents the lifecycle of a try-on session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "PENDING"
	SessionProcessing SessionStatus = "PROCESSING"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionFailed     SessionStatus = "FAILED"
)

// IsTerminal reports whether no further processing happens for the status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// ParseSessionStatus normalizes a status filter.
func ParseSessionStatus(value string) (SessionStatus, bool) {
	status := SessionStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case SessionPending, SessionProcessing, SessionCompleted, SessionFailed:
		return status, true
	}
	return "", false
}

// PlanType is a subscription tier.
type PlanType string

const (
	PlanFree    PlanType = "FREE"
	PlanBasic   PlanType = "BASIC"
	PlanPremium PlanType = "PREMIUM"
)

// SubscriptionStatus mirrors the billing provider's subscription state.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// SyncStatus is the outcome recorded on a sync log.
type SyncStatus string

const (
	SyncStarted   SyncStatus = "started"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// Stock statuses carried by product sizes.
const (
	StockIn  = "in_stock"
	StockLow = "low_stock"
	StockOut = "out_of_stock"
)

// User is an authenticated account, upserted from verified tokens.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Category groups products for browsing.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is one marketplace listing.
type Product struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"externalId"`
	Platform      Platform  `json:"platform"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price"`
	OriginalPrice *float64  `json:"originalPrice"`
	Currency      string    `json:"currency"`
	ImageURL      string    `json:"imageUrl"`
	Images        []string  `json:"images"`
	AffiliateURL  string    `json:"affiliateUrl"`
	CategoryID    string    `json:"categoryId,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Rating        *float64  `json:"rating"`
	ReviewCount   int       `json:"reviewCount"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Category *Category        `json:"category,omitempty"`
	Sizes    []ProductSize    `json:"sizes,omitempty"`
	Variants []ProductVariant `json:"variants,omitempty"`
}

// ProductSize is a size offered for a product.
type ProductSize struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	Size        string `json:"size"`
	StockStatus string `json:"stockStatus"`
	InStock     bool   `json:"inStock"`
}

// ProductVariant is a purchasable colour/size combination.
type ProductVariant struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"productId"`
	ExternalID string  `json:"externalId,omitempty"`
	Name       string  `json:"name"`
	Color      string  `json:"color,omitempty"`
	Size       string  `json:"size,omitempty"`
	Price      float64 `json:"price"`
	InStock    bool    `json:"inStock"`
}

// ProductSummary is the compact product shape embedded in try-on responses.
type ProductSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

// UserPhoto is a body photo a user uploaded for try-on.
type UserPhoto struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PhotoURL  string    `json:"photoUrl"`
	PhotoType PhotoType `json:"photoType"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
}

// TryOnSession tracks one request to render a product on a user photo.
type TryOnSession struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	ProductID       string        `json:"productId"`
	UserPhotoID     string        `json:"userPhotoId"`
	Status          SessionStatus `json:"status"`
	GarmentImageURL string        `json:"garmentImageUrl,omitempty"`
	MaskJSON        string        `json:"-"`
	Description     string        `json:"description,omitempty"`
	Provider        string        `json:"provider,omitempty"`
	ProviderTaskID  string        `json:"-"`
	ResultURL       string        `json:"resultUrl,omitempty"`
	ErrorMsg        string        `json:"errorMsg,omitempty"`
	ProgressStage   string        `json:"progressStage,omitempty"`
	Attempts        int           `json:"-"`
	LastHeartbeat   *time.Time    `json:"-"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`

	Product   *ProductSummary `json:"product,omitempty"`
	UserPhoto *UserPhoto      `json:"userPhoto,omitempty"`
}

// Subscription is a user's plan and billing state.
type Subscription struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	PlanType          PlanType           `json:"planType"`
	Status            SubscriptionStatus `json:"status"`
	StripeCustomerID  string             `json:"stripeCustomerId,omitempty"`
	StripeSubID       string             `json:"stripeSubId,omitempty"`
	CurrentPeriodEnd  *time.Time         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Click is one affiliate redirect.
type Click struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId,omitempty"`
	Platform  Platform  `json:"platform"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	ClickedAt time.Time `json:"clickedAt"`
}

// SyncLog records one affiliate sync run.
type SyncLog struct {
	ID            string     `json:"id"`
	Platform      Platform   `json:"platform"`
	Status        SyncStatus `json:"status"`
	ProductsCount int        `json:"productsCount"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}
