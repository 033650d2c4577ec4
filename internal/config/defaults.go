package config

const (
	defaultDataDir              = "~/.local/share/fitstogo"
	defaultLogDir               = "~/.local/share/fitstogo/logs"
	defaultDatabaseFile         = "fitstogo.db"
	defaultAPIBind              = "127.0.0.1:3080"
	defaultAppURL               = "http://localhost:3000"
	defaultRedisURL             = "redis://localhost:6379/0"
	defaultListTTLSeconds       = 300
	defaultDetailTTLSeconds     = 600
	defaultStorageRegion        = "sgp1"
	defaultStorageBucket        = "fitstogo"
	defaultPresignExpirySeconds = 3600
	defaultGLMBaseURL           = "https://api.z.ai/api/paas/v4"
	defaultGLMModel             = "glm-4v-flash"
	defaultGLMMaxTokens         = 300
	defaultGLMTemperature       = 0.3
	defaultGLMTimeoutSeconds    = 60
	defaultKieBaseURL           = "https://api.kie.ai"
	defaultKieModel             = "google/nano-banana-edit"
	defaultKieOutputFormat      = "png"
	defaultKieImageSize         = "1:1"
	defaultKiePollInterval      = 5
	defaultKieMaxPollAttempts   = 60
	defaultKieTimeoutSeconds    = 30
	defaultGeminiModel          = "gemini-2.5-flash-image"
	defaultTryOnProvider        = "kie"
	defaultTryOnWorkers         = 2
	defaultTryOnRequestRate     = 0.2
	defaultTryOnRequestBurst    = 3
	defaultShopeeBaseURL        = "https://affiliate.shopee.co.th/api"
	defaultLazadaBaseURL        = "https://api.lazada.co.th/rest"
	defaultSyncSchedule         = "0 */6 * * *"
	defaultAffiliatePageSize    = 50
	defaultAffiliateTimeout     = 30
	defaultAuthIssuer           = "fitstogo"
	defaultTokenTTLHours        = 24 * 30
	defaultQueuePollInterval    = 2
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultCleanupSchedule      = "30 3 * * *"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

var (
	defaultShopeeCategories = []string{"fashion", "women", "men"}
	defaultLazadaCategories = []string{"women-clothes", "men-clothes", "dresses"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
			AppURL:  defaultAppURL,
		},
		Redis: Redis{
			URL:              defaultRedisURL,
			ListTTLSeconds:   defaultListTTLSeconds,
			DetailTTLSeconds: defaultDetailTTLSeconds,
		},
		Storage: Storage{
			Region:               defaultStorageRegion,
			Bucket:               defaultStorageBucket,
			UseSSL:               true,
			PresignExpirySeconds: defaultPresignExpirySeconds,
		},
		GLM: GLM{
			BaseURL:        defaultGLMBaseURL,
			Model:          defaultGLMModel,
			MaxTokens:      defaultGLMMaxTokens,
			Temperature:    defaultGLMTemperature,
			TimeoutSeconds: defaultGLMTimeoutSeconds,
		},
		Kie: Kie{
			BaseURL:             defaultKieBaseURL,
			Model:               defaultKieModel,
			OutputFormat:        defaultKieOutputFormat,
			ImageSize:           defaultKieImageSize,
			PollIntervalSeconds: defaultKiePollInterval,
			MaxPollAttempts:     defaultKieMaxPollAttempts,
			TimeoutSeconds:      defaultKieTimeoutSeconds,
		},
		Gemini: Gemini{
			Model: defaultGeminiModel,
		},
		TryOn: TryOn{
			Provider:        defaultTryOnProvider,
			DescribeGarment: true,
			Workers:         defaultTryOnWorkers,
			RequestRate:     defaultTryOnRequestRate,
			RequestBurst:    defaultTryOnRequestBurst,
		},
		Affiliate: Affiliate{
			SyncSchedule:   defaultSyncSchedule,
			PageSize:       defaultAffiliatePageSize,
			TimeoutSeconds: defaultAffiliateTimeout,
			Shopee: AffiliatePlatform{
				BaseURL:    defaultShopeeBaseURL,
				Categories: append([]string(nil), defaultShopeeCategories...),
			},
			Lazada: AffiliatePlatform{
				BaseURL:    defaultLazadaBaseURL,
				Categories: append([]string(nil), defaultLazadaCategories...),
			},
		},
		Auth: Auth{
			Issuer:        defaultAuthIssuer,
			TokenTTLHours: defaultTokenTTLHours,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			CleanupSchedule:    defaultCleanupSchedule,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
