package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, bind address and public URL configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
	AppURL  string `toml:"app_url"`
}

// Database contains the SQLite database location.
type Database struct {
	Path string `toml:"path"`
}

// Redis contains catalog cache settings.
type Redis struct {
	Enabled          bool   `toml:"enabled"`
	URL              string `toml:"url"`
	ListTTLSeconds   int    `toml:"list_ttl_seconds"`
	DetailTTLSeconds int    `toml:"detail_ttl_seconds"`
}

// Storage contains S3-compatible object storage settings (DigitalOcean Spaces).
type Storage struct {
	Endpoint             string `toml:"endpoint"`
	Region               string `toml:"region"`
	AccessKey            string `toml:"access_key"`
	SecretKey            string `toml:"secret_key"`
	Bucket               string `toml:"bucket"`
	UseSSL               bool   `toml:"use_ssl"`
	PresignExpirySeconds int    `toml:"presign_expiry_seconds"`
}

// GLM contains the vision model used to describe garments.
type GLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Kie contains the task-based image generation API settings.
type Kie struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	Model               string `toml:"model"`
	OutputFormat        string `toml:"output_format"`
	ImageSize           string `toml:"image_size"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxPollAttempts     int    `toml:"max_poll_attempts"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// Gemini contains the direct image generation provider settings.
type Gemini struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// TryOn contains orchestration settings for try-on sessions.
type TryOn struct {
	Provider        string  `toml:"provider"`
	DescribeGarment bool    `toml:"describe_garment"`
	Workers         int     `toml:"workers"`
	RequestRate     float64 `toml:"request_rate"`
	RequestBurst    int     `toml:"request_burst"`
}

// Stripe contains billing credentials and plan price identifiers.
type Stripe struct {
	SecretKey     string `toml:"secret_key"`
	WebhookSecret string `toml:"webhook_secret"`
	PriceBasic    string `toml:"price_basic"`
	PricePremium  string `toml:"price_premium"`
}

// AffiliatePlatform contains credentials for one marketplace affiliate API.
type AffiliatePlatform struct {
	APIKey      string   `toml:"api_key"`
	APISecret   string   `toml:"api_secret"`
	AffiliateID string   `toml:"affiliate_id"`
	BaseURL     string   `toml:"base_url"`
	Categories  []string `toml:"categories"`
}

// Affiliate contains marketplace sync settings.
type Affiliate struct {
	Enabled        bool              `toml:"enabled"`
	SyncSchedule   string            `toml:"sync_schedule"`
	PageSize       int               `toml:"page_size"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Shopee         AffiliatePlatform `toml:"shopee"`
	Lazada         AffiliatePlatform `toml:"lazada"`
}

// Auth contains bearer token verification settings.
type Auth struct {
	JWTSecret     string `toml:"jwt_secret"`
	Issuer        string `toml:"issuer"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

// Workflow contains configuration for worker timing and intervals.
type Workflow struct {
	QueuePollInterval  int    `toml:"queue_poll_interval"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	HeartbeatInterval  int    `toml:"heartbeat_interval"`
	HeartbeatTimeout   int    `toml:"heartbeat_timeout"`
	CleanupSchedule    string `toml:"cleanup_schedule"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fitstogo.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, API bind address, public app URL
//   - Database: SQLite location
//   - Redis: catalog cache
//   - Storage: photo and result object storage
//   - GLM, Kie, Gemini: AI providers used by the try-on pipeline
//   - TryOn: provider selection and worker count
//   - Stripe: checkout and webhook reconciliation
//   - Affiliate: marketplace sync credentials and schedule
//   - Auth: bearer token verification
//   - Workflow: worker polling intervals and heartbeats
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Database  Database  `toml:"database"`
	Redis     Redis     `toml:"redis"`
	Storage   Storage   `toml:"storage"`
	GLM       GLM       `toml:"glm"`
	Kie       Kie       `toml:"kie"`
	Gemini    Gemini    `toml:"gemini"`
	TryOn     TryOn     `toml:"tryon"`
	Stripe    Stripe    `toml:"stripe"`
	Affiliate Affiliate `toml:"affiliate"`
	Auth      Auth      `toml:"auth"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fitstogo/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fitstogo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if dbDir := filepath.Dir(c.Database.Path); dbDir != "" && dbDir != "." {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ListTTL returns the cache lifetime for product listings.
func (c *Config) ListTTL() time.Duration {
	return time.Duration(c.Redis.ListTTLSeconds) * time.Second
}

// DetailTTL returns the cache lifetime for a single product.
func (c *Config) DetailTTL() time.Duration {
	return time.Duration(c.Redis.DetailTTLSeconds) * time.Second
}

// PresignExpiry returns the lifetime of presigned storage URLs.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.Storage.PresignExpirySeconds) * time.Second
}

// StorageConfigured reports whether object storage credentials are present.
func (c *Config) StorageConfigured() bool {
	return c.Storage.Endpoint != "" && c.Storage.AccessKey != "" && c.Storage.SecretKey != ""
}

// StripeConfigured reports whether checkout can be offered.
func (c *Config) StripeConfigured() bool {
	return c.Stripe.SecretKey != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
