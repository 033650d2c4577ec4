package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fitstogo/internal/affiliate"
	"fitstogo/internal/api"
	"fitstogo/internal/auth"
	"fitstogo/internal/billing"
	"fitstogo/internal/cache"
	"fitstogo/internal/catalog"
	"fitstogo/internal/clicks"
	"fitstogo/internal/config"
	"fitstogo/internal/importer"
	"fitstogo/internal/logging"
	"fitstogo/internal/metrics"
	"fitstogo/internal/objectstore"
	"fitstogo/internal/photos"
	"fitstogo/internal/scheduler"
	"fitstogo/internal/services/gemini"
	"fitstogo/internal/services/glm"
	"fitstogo/internal/services/kieai"
	"fitstogo/internal/store"
	"fitstogo/internal/tryon"
	"fitstogo/internal/workflow"
)

// App holds every wired component. The daemon uses all of it; CLI commands
// reach for the pieces they need.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *store.Store
	Cache   *cache.Client
	Objects *objectstore.Store
	Metrics *metrics.Metrics

	Catalog   *catalog.Service
	Photos    *photos.Service
	TryOn     *tryon.Service
	Processor *tryon.Processor
	Workflow  *workflow.Manager
	Syncer    *affiliate.Syncer
	Importer  *importer.Importer
	Clicks    *clicks.Service
	Billing   *billing.Service
	Verifier  *auth.Verifier
	Scheduler *scheduler.Scheduler
	API       *api.Server
}

// Build opens the store and wires every service from cfg. Optional backends
// (redis, object storage) degrade with a warning instead of failing.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.Store = st

	app.Cache = openCache(ctx, cfg, logger, app.Metrics)
	app.Catalog = catalog.NewService(st, app.Cache, cfg.ListTTL(), cfg.DetailTTL(), logger)

	var results tryon.ResultStore
	var photoObjects photos.ObjectStore
	if cfg.StorageConfigured() {
		objects, err := objectstore.New(cfg)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("object storage: %w", err)
		}
		app.Objects = objects
		results = objects
		photoObjects = objects
	} else {
		logging.WarnWithContext(logger, "object storage not configured", "storage_unconfigured",
			logging.String(logging.FieldErrorHint, "set storage.access_key, storage.secret_key and storage.endpoint"),
			logging.String(logging.FieldImpact, "photo uploads are rejected and results keep provider URLs"),
		)
	}
	app.Photos = photos.NewService(st, photoObjects, objectstore.PhotoKey, logger)

	app.Processor = tryon.NewProcessor(st, cfg.Paths.AppURL, cfg.TryOn.Provider, cfg.TryOn.DescribeGarment, tryon.ProcessorDeps{
		Describer: glm.NewClient(cfg.GLM),
		Tasks:     kieai.NewClient(cfg.Kie),
		Images:    gemini.NewClient(cfg.Gemini),
		Results:   results,
	}, logger)
	app.Workflow = workflow.NewManager(cfg, st, app.Processor, logger,
		workflow.WithObserver(app.Metrics),
		workflow.WithWorkers(cfg.TryOn.Workers),
	)
	app.TryOn = tryon.NewService(st, cfg.TryOn.Provider, app.Workflow, logger)

	app.Syncer = affiliate.NewSyncer(st, app.Catalog, logger,
		[]*affiliate.Source{
			affiliate.NewShopee(cfg.Affiliate),
			affiliate.NewLazada(cfg.Affiliate),
		},
		affiliate.WithSyncObserver(app.Metrics.SyncFinished),
		affiliate.WithPageSize(cfg.Affiliate.PageSize),
	)
	app.Importer = importer.New(st, app.Catalog, logger)
	app.Clicks = clicks.NewService(st, logger, clicks.WithObserver(app.Metrics.Click))

	billingLogger := logging.NewComponentLogger(logger, "billing-events")
	app.Billing = billing.NewService(cfg, st, logger, billing.WithEventCallback(func(ev billing.WebhookEvent) {
		app.Metrics.BillingEvent(ev.EventType)
		billingLogger.Info("subscription changed",
			logging.String(logging.FieldEventType, "subscription_changed"),
			logging.String(logging.FieldUserID, ev.UserID),
			logging.String("stripe_event", ev.EventType),
			logging.String("previous_tier", string(ev.PreviousTier)),
			logging.String("new_tier", string(ev.NewTier)),
		)
	}))

	app.Verifier, err = auth.NewVerifier(cfg.Auth)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var syncer scheduler.Syncer
	if cfg.Affiliate.Enabled {
		syncer = app.Syncer
	}
	app.Scheduler, err = scheduler.New(cfg, st, syncer, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.API, err = api.New(api.Deps{
		Config:   cfg,
		Store:    st,
		Verifier: app.Verifier,
		Catalog:  app.Catalog,
		Photos:   app.Photos,
		TryOn:    app.TryOn,
		Billing:  app.Billing,
		Clicks:   app.Clicks,
		Metrics:  app.Metrics,
		Workflow: app.Workflow,
		Logger:   logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *cache.Client {
	if !cfg.Redis.Enabled || cfg.Redis.URL == "" {
		return nil
	}
	client, err := cache.Open(ctx, cfg.Redis.URL, cache.WithLogger(logger), cache.WithObserver(m.CacheResult))
	if err != nil {
		logging.WarnWithContext(logger, "redis unavailable; catalog cache disabled", "cache_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check redis.url"),
			logging.String(logging.FieldImpact, "catalog reads go straight to the database"),
		)
		return nil
	}
	return client
}

// Close releases the cache and the store.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
