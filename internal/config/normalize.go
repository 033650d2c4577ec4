package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRedis()
	c.normalizeStorage()
	c.normalizeProviders()
	c.normalizeTryOn()
	c.normalizeStripe()
	c.normalizeAffiliate()
	c.normalizeAuth()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	envFallback(&c.Paths.AppURL, "APP_URL", "NEXT_PUBLIC_APP_URL")
	c.Paths.AppURL = strings.TrimRight(strings.TrimSpace(c.Paths.AppURL), "/")
	if c.Paths.AppURL == "" {
		c.Paths.AppURL = defaultAppURL
	}

	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeRedis() {
	if value, ok := os.LookupEnv("REDIS_URL"); ok && strings.TrimSpace(value) != "" {
		c.Redis.URL = strings.TrimSpace(value)
		c.Redis.Enabled = true
	}
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	if c.Redis.URL == "" {
		c.Redis.URL = defaultRedisURL
	}
	if c.Redis.ListTTLSeconds == 0 {
		c.Redis.ListTTLSeconds = defaultListTTLSeconds
	}
	if c.Redis.DetailTTLSeconds == 0 {
		c.Redis.DetailTTLSeconds = defaultDetailTTLSeconds
	}
}

func (c *Config) normalizeStorage() {
	envFallback(&c.Storage.Endpoint, "DO_SPACES_ENDPOINT")
	envFallback(&c.Storage.Region, "DO_SPACES_REGION")
	envFallback(&c.Storage.AccessKey, "DO_SPACES_KEY")
	envFallback(&c.Storage.SecretKey, "DO_SPACES_SECRET")
	envFallback(&c.Storage.Bucket, "DO_SPACES_BUCKET")
	c.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(c.Storage.Endpoint), "/")
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultStorageBucket
	}
	if c.Storage.PresignExpirySeconds <= 0 {
		c.Storage.PresignExpirySeconds = defaultPresignExpirySeconds
	}
}

func (c *Config) normalizeProviders() {
	envFallback(&c.GLM.APIKey, "GLM_API_KEY")
	if value, ok := os.LookupEnv("GLM_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.GLM.BaseURL = value
	}
	c.GLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.GLM.BaseURL), "/")
	if c.GLM.BaseURL == "" {
		c.GLM.BaseURL = defaultGLMBaseURL
	}
	if strings.TrimSpace(c.GLM.Model) == "" {
		c.GLM.Model = defaultGLMModel
	}
	if c.GLM.MaxTokens <= 0 {
		c.GLM.MaxTokens = defaultGLMMaxTokens
	}
	if c.GLM.TimeoutSeconds <= 0 {
		c.GLM.TimeoutSeconds = defaultGLMTimeoutSeconds
	}

	envFallback(&c.Kie.APIKey, "KIE_AI_API_KEY")
	if value, ok := os.LookupEnv("KIE_AI_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.Kie.BaseURL = value
	}
	c.Kie.BaseURL = strings.TrimRight(strings.TrimSpace(c.Kie.BaseURL), "/")
	if c.Kie.BaseURL == "" {
		c.Kie.BaseURL = defaultKieBaseURL
	}
	if strings.TrimSpace(c.Kie.Model) == "" {
		c.Kie.Model = defaultKieModel
	}
	if c.Kie.OutputFormat == "" {
		c.Kie.OutputFormat = defaultKieOutputFormat
	}
	if c.Kie.ImageSize == "" {
		c.Kie.ImageSize = defaultKieImageSize
	}
	if c.Kie.TimeoutSeconds <= 0 {
		c.Kie.TimeoutSeconds = defaultKieTimeoutSeconds
	}

	envFallback(&c.Gemini.APIKey, "GOOGLE_AI_API_KEY", "GEMINI_API_KEY")
	if strings.TrimSpace(c.Gemini.Model) == "" {
		c.Gemini.Model = defaultGeminiModel
	}
}

func (c *Config) normalizeTryOn() {
	c.TryOn.Provider = strings.ToLower(strings.TrimSpace(c.TryOn.Provider))
	if c.TryOn.Provider == "" {
		c.TryOn.Provider = defaultTryOnProvider
	}
	if c.TryOn.RequestBurst <= 0 {
		c.TryOn.RequestBurst = defaultTryOnRequestBurst
	}
}

func (c *Config) normalizeStripe() {
	envFallback(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	envFallback(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	envFallback(&c.Stripe.PriceBasic, "STRIPE_PRICE_BASIC")
	envFallback(&c.Stripe.PricePremium, "STRIPE_PRICE_PREMIUM")
}

func (c *Config) normalizeAffiliate() {
	envFallback(&c.Affiliate.Shopee.APIKey, "SHOPEE_API_KEY")
	envFallback(&c.Affiliate.Shopee.APISecret, "SHOPEE_API_SECRET")
	envFallback(&c.Affiliate.Shopee.AffiliateID, "SHOPEE_AFFILIATE_ID")
	envFallback(&c.Affiliate.Lazada.APIKey, "LAZADA_APP_KEY")
	envFallback(&c.Affiliate.Lazada.APISecret, "LAZADA_APP_SECRET")
	envFallback(&c.Affiliate.Lazada.AffiliateID, "LAZADA_AFFILIATE_ID")

	if c.Affiliate.Shopee.BaseURL == "" {
		c.Affiliate.Shopee.BaseURL = defaultShopeeBaseURL
	}
	if c.Affiliate.Lazada.BaseURL == "" {
		c.Affiliate.Lazada.BaseURL = defaultLazadaBaseURL
	}
	c.Affiliate.Shopee.BaseURL = strings.TrimRight(c.Affiliate.Shopee.BaseURL, "/")
	c.Affiliate.Lazada.BaseURL = strings.TrimRight(c.Affiliate.Lazada.BaseURL, "/")
	if len(c.Affiliate.Shopee.Categories) == 0 {
		c.Affiliate.Shopee.Categories = append([]string(nil), defaultShopeeCategories...)
	}
	if len(c.Affiliate.Lazada.Categories) == 0 {
		c.Affiliate.Lazada.Categories = append([]string(nil), defaultLazadaCategories...)
	}
	c.Affiliate.SyncSchedule = strings.TrimSpace(c.Affiliate.SyncSchedule)
	if c.Affiliate.SyncSchedule == "" {
		c.Affiliate.SyncSchedule = defaultSyncSchedule
	}
	if c.Affiliate.PageSize <= 0 {
		c.Affiliate.PageSize = defaultAffiliatePageSize
	}
	if c.Affiliate.TimeoutSeconds <= 0 {
		c.Affiliate.TimeoutSeconds = defaultAffiliateTimeout
	}
	c.Workflow.CleanupSchedule = strings.TrimSpace(c.Workflow.CleanupSchedule)
	if c.Workflow.CleanupSchedule == "" {
		c.Workflow.CleanupSchedule = defaultCleanupSchedule
	}
}

func (c *Config) normalizeAuth() {
	envFallback(&c.Auth.JWTSecret, "FITSTOGO_JWT_SECRET")
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		c.Auth.Issuer = defaultAuthIssuer
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = defaultTokenTTLHours
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// envFallback fills an empty field from the first non-empty environment variable.
func envFallback(field *string, names ...string) {
	*field = strings.TrimSpace(*field)
	if *field != "" {
		return
	}
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			*field = strings.TrimSpace(value)
			return
		}
	}
}
