package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Stripe signs payloads well under this size.
const maxWebhookBytes = 1 << 16

type checkoutRequest struct {
	Plan string `json:"plan"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type webhookResponse struct {
	Received bool `json:"received"`
}

func (s *Server) handleGetSubscription(c echo.Context) error {
	id, _ := identity(c)
	sub, err := s.deps.Billing.GetOrCreate(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleCheckout(c echo.Context) error {
	id, _ := identity(c)
	if id.Email == "" {
		return unauthorized()
	}
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid plan")
	}
	url, err := s.deps.Billing.Checkout(c.Request().Context(), id.UserID, id.Email, req.Plan)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, checkoutResponse{URL: url})
}

func (s *Server) handleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid payload")
	}
	if err := s.deps.Billing.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, webhookResponse{Received: true})
}
