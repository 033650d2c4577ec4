package testsupport

import (
	"path/filepath"
	"testing"

	"fitstogo/internal/config"
)

// TestJWTSecret is the signing secret placed in generated test configs.
const TestJWTSecret = "test-secret-0123456789abcdef"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.AppURL = "http://fitstogo.test"
	cfgVal.Database.Path = filepath.Join(base, "data", "fitstogo.db")
	cfgVal.Auth.JWTSecret = TestJWTSecret
	cfgVal.TryOn.DescribeGarment = false
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithKie points the Kie.ai client at baseURL with a test key.
func WithKie(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Kie.APIKey = "kie-test"
		b.cfg.Kie.BaseURL = baseURL
		b.cfg.Kie.PollIntervalSeconds = 1
		b.cfg.Kie.MaxPollAttempts = 3
		b.cfg.TryOn.Provider = "kie"
	}
}

// WithGLM enables garment description against baseURL.
func WithGLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.GLM.APIKey = "glm-test"
		b.cfg.GLM.BaseURL = baseURL
		b.cfg.TryOn.DescribeGarment = true
	}
}

// WithRedis enables the catalog cache at url.
func WithRedis(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Redis.Enabled = true
		b.cfg.Redis.URL = url
	}
}

// WithStripe configures billing with test credentials.
func WithStripe(webhookSecret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stripe.SecretKey = "sk_test_fitstogo"
		b.cfg.Stripe.WebhookSecret = webhookSecret
		b.cfg.Stripe.PriceBasic = "price_basic"
		b.cfg.Stripe.PricePremium = "price_premium"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithStorage points object storage at an S3-compatible test endpoint.
func WithStorage(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Endpoint = endpoint
		b.cfg.Storage.AccessKey = "test-access"
		b.cfg.Storage.SecretKey = "test-secret"
		b.cfg.Storage.Bucket = "fitstogo-test"
		b.cfg.Storage.Region = "us-east-1"
	}
}
