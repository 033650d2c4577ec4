package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"fitstogo/internal/auth"
	"fitstogo/internal/logging"
	"fitstogo/internal/services"
)

const identityKey = "identity"

// logRequests tags the request context with its request id and logs the
// outcome once the handler returns.
func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
			c.SetRequest(req.WithContext(services.WithRequestID(req.Context(), rid)))
		}

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		status := c.Response().Status
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case c.Path() == "/health" || c.Path() == "/metrics":
			level = slog.LevelDebug
		}
		s.requestLogger(c).Log(c.Request().Context(), level, "http request",
			logging.String("method", req.Method),
			logging.String("route", c.Path()),
			logging.String("uri", req.RequestURI),
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)),
			logging.String(logging.FieldEventType, "http_request"),
		)
		return nil
	}
}

func (s *Server) requestLogger(c echo.Context) *slog.Logger {
	return logging.WithContext(c.Request().Context(), s.logger)
}

// observe records request metrics by route pattern.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if err != nil {
			status = statusForHandlerError(err)
		}
		s.deps.Metrics.ObserveHTTP(c.Request().Method, c.Path(), status, time.Since(start))
		return err
	}
}

func statusForHandlerError(err error) int {
	if httpErr, ok := err.(*echo.HTTPError); ok {
		return httpErr.Code
	}
	return statusFor(err)
}

func (s *Server) authenticate(c echo.Context) (auth.Identity, bool) {
	token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return auth.Identity{}, false
	}
	id, err := s.deps.Verifier.Verify(token)
	if err != nil {
		s.requestLogger(c).Debug("bearer token rejected", logging.Error(err))
		return auth.Identity{}, false
	}
	return id, true
}

func (s *Server) attachIdentity(c echo.Context, id auth.Identity) {
	c.Set(identityKey, id)
	req := c.Request()
	c.SetRequest(req.WithContext(services.WithUserID(req.Context(), id.UserID)))
}

// requireAuth rejects requests without a valid bearer token and records the
// caller in users.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := s.authenticate(c)
		if !ok {
			return unauthorized()
		}
		email := id.Email
		if email == "" {
			email = id.UserID + "@users.fitstogo.invalid"
		}
		if _, err := s.deps.Store.UpsertUser(c.Request().Context(), id.UserID, email, id.Name); err != nil {
			return &services.UserError{Message: "Failed to load user", Cause: err}
		}
		s.attachIdentity(c, id)
		return next(c)
	}
}

// optionalAuth attaches the caller when a valid token is present.
func (s *Server) optionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id, ok := s.authenticate(c); ok {
			s.attachIdentity(c, id)
		}
		return next(c)
	}
}

func identity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}

func (s *Server) rateLimitTryOn(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, _ := identity(c)
		if !s.limiter.allow(id.UserID) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many try-on requests. Please wait a moment.")
		}
		return next(c)
	}
}

// userLimiter keeps one token bucket per user.
type userLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &userLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *userLimiter) allow(userID string) bool {
	key := strings.TrimSpace(userID)
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
