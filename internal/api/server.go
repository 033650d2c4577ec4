package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"fitstogo/internal/auth"
	"fitstogo/internal/billing"
	"fitstogo/internal/catalog"
	"fitstogo/internal/clicks"
	"fitstogo/internal/config"
	"fitstogo/internal/logging"
	"fitstogo/internal/metrics"
	"fitstogo/internal/photos"
	"fitstogo/internal/store"
	"fitstogo/internal/tryon"
	"fitstogo/internal/workflow"
)

// StatusProvider reports worker state for /health.
type StatusProvider interface {
	Status(ctx context.Context) workflow.StatusSummary
}

// Deps holds the services the API routes to. Metrics and Workflow are
// optional.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Verifier *auth.Verifier
	Catalog  *catalog.Service
	Photos   *photos.Service
	TryOn    *tryon.Service
	Billing  *billing.Service
	Clicks   *clicks.Service
	Metrics  *metrics.Metrics
	Workflow StatusProvider
	Logger   *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	echo    *echo.Echo
	logger  *slog.Logger
	limiter *userLimiter
}

// New builds the router. It fails when a required dependency is missing.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil, deps.Store == nil:
		return nil, errors.New("api requires config and store")
	case deps.Verifier == nil:
		return nil, errors.New("api requires a token verifier")
	case deps.Catalog == nil, deps.Photos == nil, deps.TryOn == nil, deps.Billing == nil, deps.Clicks == nil:
		return nil, errors.New("api requires catalog, photos, tryon, billing and clicks services")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		deps:    deps,
		echo:    e,
		logger:  logging.NewComponentLogger(deps.Logger, "api"),
		limiter: newUserLimiter(deps.Config.TryOn.RequestRate, deps.Config.TryOn.RequestBurst),
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.logRequests)
	if deps.Metrics != nil {
		e.Use(s.observe)
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	api := s.echo.Group("/api")
	api.GET("/products", s.handleListProducts)
	api.GET("/products/:id", s.handleGetProduct)
	api.GET("/categories", s.handleCategories)
	api.GET("/redirect/:productId", s.handleRedirect, s.optionalAuth)
	api.POST("/webhooks/stripe", s.handleStripeWebhook)

	private := api.Group("", s.requireAuth)
	private.GET("/photos", s.handleListPhotos)
	private.POST("/photos", s.handleUploadPhoto)
	private.PATCH("/photos/:id", s.handleUpdatePhoto)
	private.DELETE("/photos/:id", s.handleDeletePhoto)
	private.GET("/tryon", s.handleTryOnHistory)
	private.POST("/tryon", s.handleCreateTryOn, s.rateLimitTryOn)
	private.GET("/tryon/:id", s.handleGetTryOn)
	private.GET("/subscription", s.handleGetSubscription)
	private.POST("/subscription/checkout", s.handleCheckout)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type healthResponse struct {
	Status   string                  `json:"status"`
	Database string                  `json:"database"`
	Workflow *workflow.StatusSummary `json:"workflow,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	resp := healthResponse{Status: "ok", Database: "ok"}
	if _, err := s.deps.Store.CheckHealth(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
	}
	if s.deps.Workflow != nil {
		summary := s.deps.Workflow.Status(ctx)
		resp.Workflow = &summary
	}
	return c.JSON(http.StatusOK, resp)
}
