package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const subscriptionColumns = "id, user_id, plan_type, status, stripe_customer_id, stripe_sub_id, current_period_end, cancel_at_period_end, created_at, updated_at"

func scanSubscription(scanner rowScanner) (*Subscription, error) {
	var (
		sub        Subscription
		plan       string
		status     string
		customerID sql.NullString
		subID      sql.NullString
		periodEnd  sql.NullString
		cancelAt   int
		created    sql.NullString
		updated    sql.NullString
	)
	if err := scanner.Scan(&sub.ID, &sub.UserID, &plan, &status, &customerID, &subID, &periodEnd, &cancelAt, &created, &updated); err != nil {
		return nil, err
	}
	sub.PlanType = PlanType(plan)
	sub.Status = SubscriptionStatus(status)
	sub.StripeCustomerID = customerID.String
	sub.StripeSubID = subID.String
	sub.CurrentPeriodEnd = parseTimePtr(periodEnd)
	sub.CancelAtPeriodEnd = cancelAt != 0
	sub.CreatedAt = parseTime(created)
	sub.UpdatedAt = parseTime(updated)
	return &sub, nil
}

func (s *Store) subscriptionWhere(ctx context.Context, clause string, arg any) (*Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+clause, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// GetSubscription fetches a user's subscription.
func (s *Store) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	return s.subscriptionWhere(ctx, "user_id = ?", userID)
}

// GetSubscriptionByStripeID fetches the subscription linked to a Stripe subscription id.
func (s *Store) GetSubscriptionByStripeID(ctx context.Context, stripeSubID string) (*Subscription, error) {
	return s.subscriptionWhere(ctx, "stripe_sub_id = ?", stripeSubID)
}

// GetOrCreateSubscription returns the user's subscription, creating a FREE
// ACTIVE one on first access.
func (s *Store) GetOrCreateSubscription(ctx context.Context, userID string) (*Subscription, error) {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO subscriptions (id, user_id, plan_type, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		newID(), userID, string(PlanFree), string(SubscriptionActive), now, now,
	); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return s.GetSubscription(ctx, userID)
}

// SetStripeCustomer stores the Stripe customer id for a user.
func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE subscriptions SET stripe_customer_id = ?, updated_at = ? WHERE user_id = ?`,
		customerID, s.timestamp(), userID); err != nil {
		return fmt.Errorf("set stripe customer: %w", err)
	}
	return nil
}

// ActivateSubscription records a completed checkout for userID, creating the
// row when needed.
func (s *Store) ActivateSubscription(ctx context.Context, userID, stripeSubID string, plan PlanType) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO subscriptions (id, user_id, plan_type, status, stripe_sub_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(user_id) DO UPDATE SET
             plan_type = excluded.plan_type,
             status = excluded.status,
             stripe_sub_id = excluded.stripe_sub_id,
             updated_at = excluded.updated_at`,
		newID(), userID, string(plan), string(SubscriptionActive), nullableString(stripeSubID), now, now,
	); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	return nil
}

// UpdateSubscriptionByStripeID applies a provider subscription update. It
// reports whether a row matched.
func (s *Store) UpdateSubscriptionByStripeID(ctx context.Context, stripeSubID string, status SubscriptionStatus, periodEnd *time.Time, cancelAtPeriodEnd bool) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE subscriptions SET status = ?, current_period_end = ?, cancel_at_period_end = ?, updated_at = ?
         WHERE stripe_sub_id = ?`,
		string(status), nullableTime(periodEnd), boolToInt(cancelAtPeriodEnd), s.timestamp(), stripeSubID)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelSubscriptionByStripeID downgrades to FREE/CANCELED and unlinks the
// Stripe subscription.
func (s *Store) CancelSubscriptionByStripeID(ctx context.Context, stripeSubID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE subscriptions SET plan_type = ?, status = ?, stripe_sub_id = NULL, cancel_at_period_end = 0, updated_at = ?
         WHERE stripe_sub_id = ?`,
		string(PlanFree), string(SubscriptionCanceled), s.timestamp(), stripeSubID)
	if err != nil {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkPastDueByStripeID flags a subscription whose invoice payment failed.
func (s *Store) MarkPastDueByStripeID(ctx context.Context, stripeSubID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE stripe_sub_id = ?`,
		string(SubscriptionPastDue), s.timestamp(), stripeSubID)
	if err != nil {
		return false, fmt.Errorf("mark subscription past due: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
