// Package billing sells plan upgrades through Stripe Checkout and reconciles
// subscriptions from Stripe webhooks.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"fitstogo/internal/config"
	"fitstogo/internal/logging"
	"fitstogo/internal/plans"
	"fitstogo/internal/services"
	"fitstogo/internal/store"
)

// WebhookEvent describes a plan change applied from a webhook.
type WebhookEvent struct {
	UserID       string
	PreviousTier store.PlanType
	NewTier      store.PlanType
	EventType    string
}

// Service implements checkout and webhook reconciliation.
type Service struct {
	store         *store.Store
	api           *client.API
	webhookSecret string
	prices        config.Stripe
	appURL        string
	onEvent       func(WebhookEvent)
	logger        *slog.Logger
}

// Option customizes the service.
type Option func(*serviceOptions)

type serviceOptions struct {
	backends *stripe.Backends
	onEvent  func(WebhookEvent)
}

// WithBackends overrides the Stripe API backends.
func WithBackends(backends *stripe.Backends) Option {
	return func(o *serviceOptions) { o.backends = backends }
}

// WithEventCallback registers a callback for every applied webhook event.
func WithEventCallback(fn func(WebhookEvent)) Option {
	return func(o *serviceOptions) { o.onEvent = fn }
}

// NewService builds the billing service.
func NewService(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Service {
	options := serviceOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:         st,
		api:           client.New(cfg.Stripe.SecretKey, options.backends),
		webhookSecret: cfg.Stripe.WebhookSecret,
		prices:        cfg.Stripe,
		appURL:        strings.TrimRight(cfg.Paths.AppURL, "/"),
		onEvent:       options.onEvent,
		logger:        logging.NewComponentLogger(logger, "billing"),
	}
}

// GetOrCreate returns the user's subscription, creating a FREE one on first
// access.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*store.Subscription, error) {
	sub, err := s.store.GetOrCreateSubscription(ctx, userID)
	if err != nil {
		return nil, &services.UserError{Message: "Failed to fetch subscription", Cause: err}
	}
	return sub, nil
}

// Checkout creates a Stripe Checkout session for a paid plan and returns its URL.
func (s *Service) Checkout(ctx context.Context, userID, email, planName string) (string, error) {
	plan, ok := plans.ParseType(planName)
	if !ok || !plans.Paid(plan) {
		return "", services.NewUserError(services.ErrValidation, "Invalid plan")
	}
	priceID := plans.PriceID(s.prices, plan)
	if priceID == "" {
		return "", services.NewUserError(services.ErrValidation, "Plan not available")
	}

	sub, err := s.store.GetOrCreateSubscription(ctx, userID)
	if err != nil {
		return "", s.checkoutFailed(err)
	}
	customerID := sub.StripeCustomerID
	if customerID == "" {
		params := &stripe.CustomerParams{Email: stripe.String(email)}
		params.Context = ctx
		params.AddMetadata("userId", userID)
		customer, err := s.api.Customers.New(params)
		if err != nil {
			return "", s.checkoutFailed(err)
		}
		customerID = customer.ID
		if err := s.store.SetStripeCustomer(ctx, userID, customerID); err != nil {
			return "", s.checkoutFailed(err)
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(s.appURL + "/profile?success=true"),
		CancelURL:  stripe.String(s.appURL + "/subscription?canceled=true"),
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	params.AddMetadata("plan", string(plan))
	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", s.checkoutFailed(err)
	}
	s.logger.Info("checkout session created",
		logging.String(logging.FieldUserID, userID),
		logging.String("plan", string(plan)),
		logging.String("checkout_session", session.ID),
	)
	return session.URL, nil
}

func (s *Service) checkoutFailed(err error) error {
	return &services.UserError{Marker: services.ErrExternalTool, Message: "Failed to create checkout session", Cause: err}
}

// HandleWebhook verifies and applies a Stripe event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return services.NewUserError(services.ErrValidation, "No signature")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logging.WarnWithContext(s.logger, "webhook signature rejected", "webhook_signature_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check stripe.webhook_secret"),
		)
		return &services.UserError{Marker: services.ErrValidation, Message: "Invalid signature", Cause: err}
	}

	if err := s.apply(ctx, event); err != nil {
		s.logger.Error("webhook handler failed",
			logging.String("event_id", event.ID),
			logging.String("stripe_event", string(event.Type)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "webhook_failed"),
		)
		return &services.UserError{Message: "Webhook handler failed", Cause: err}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, string(event.Type), &session)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.subscriptionUpdated(ctx, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.subscriptionDeleted(ctx, string(event.Type), sub.ID)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if invoice.Subscription == nil || invoice.Subscription.ID == "" {
			return nil
		}
		if _, err := s.store.MarkPastDueByStripeID(ctx, invoice.Subscription.ID); err != nil {
			return err
		}
		s.logger.Info("subscription payment failed", logging.String("stripe_subscription", invoice.Subscription.ID))
		return nil
	default:
		s.logger.Debug("ignoring stripe event", logging.String("stripe_event", string(event.Type)))
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, eventType string, session *stripe.CheckoutSession) error {
	userID := session.Metadata["userId"]
	plan, ok := plans.ParseType(session.Metadata["plan"])
	if userID == "" || !ok || session.Subscription == nil || session.Subscription.ID == "" {
		s.logger.Warn("checkout session missing user, plan or subscription; ignoring",
			logging.String("checkout_session", session.ID),
			logging.String(logging.FieldEventType, "checkout_incomplete_metadata"),
		)
		return nil
	}
	previous, err := s.currentTier(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.store.ActivateSubscription(ctx, userID, session.Subscription.ID, plan); err != nil {
		return err
	}
	s.emit(WebhookEvent{UserID: userID, PreviousTier: previous, NewTier: plan, EventType: eventType})
	return nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}
	matched, err := s.store.UpdateSubscriptionByStripeID(ctx, sub.ID, MapStatus(sub.Status), periodEnd, sub.CancelAtPeriodEnd)
	if err != nil {
		return err
	}
	if !matched {
		s.logger.Debug("subscription update for unknown subscription", logging.String("stripe_subscription", sub.ID))
	}
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, eventType, stripeSubID string) error {
	existing, err := s.store.GetSubscriptionByStripeID(ctx, stripeSubID)
	if err != nil {
		return err
	}
	if _, err := s.store.CancelSubscriptionByStripeID(ctx, stripeSubID); err != nil {
		return err
	}
	if existing != nil {
		s.emit(WebhookEvent{UserID: existing.UserID, PreviousTier: existing.PlanType, NewTier: store.PlanFree, EventType: eventType})
	}
	return nil
}

func (s *Service) currentTier(ctx context.Context, userID string) (store.PlanType, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return store.PlanFree, nil
	}
	return sub.PlanType, nil
}

func (s *Service) emit(event WebhookEvent) {
	s.logger.Info("subscription tier changed",
		logging.String(logging.FieldUserID, event.UserID),
		logging.String("previous_tier", string(event.PreviousTier)),
		logging.String("new_tier", string(event.NewTier)),
		logging.String("stripe_event", event.EventType),
	)
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

// MapStatus converts a Stripe subscription status to the stored status.
func MapStatus(status stripe.SubscriptionStatus) store.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusPastDue:
		return store.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled:
		return store.SubscriptionCanceled
	default:
		return store.SubscriptionActive
	}
}
