package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository persists subscription ledger rows, one per external
// subscription id. Every write stamps updated_at with the processor event
// time and is conditional on it, so a redelivered or out-of-order event can
// never clobber the effect of a newer one; callers treat an unapplied write
// as a benign no-op.
type SubscriptionRepository interface {
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)
	// GetCurrentForUser returns the user's most recently started row.
	GetCurrentForUser(ctx context.Context, userID int64) (*model.Subscription, error)
	// Upsert inserts a full row snapshot, overwriting an existing row for
	// the same external id when the event time is not older.
	Upsert(ctx context.Context, sub *model.Subscription) error
	// Overwrite replaces an existing row's mutable fields; it never
	// inserts. Returns false when no row matched or the write was stale.
	Overwrite(ctx context.Context, sub *model.Subscription) (bool, error)
	MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt, eventTime time.Time) (bool, error)
	SetStatusAndPeriod(ctx context.Context, stripeSubscriptionID, status string, periodStart, periodEnd, eventTime time.Time) (bool, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
        id, user_id, stripe_subscription_id, plan_id, status, price_cents, currency,
        started_at, current_period_start, current_period_end,
        cancel_at_period_end, canceled_at, metadata, created_at, updated_at`

func (r *subscriptionRepo) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1`
	return r.scanOne(ctx, q, stripeSubscriptionID)
}

func (r *subscriptionRepo) GetCurrentForUser(ctx context.Context, userID int64) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE user_id = $1
        ORDER BY started_at DESC
        LIMIT 1`
	return r.scanOne(ctx, q, userID)
}

func (r *subscriptionRepo) scanOne(ctx context.Context, q string, arg any) (*model.Subscription, error) {
	var s model.Subscription
	var rawMetadata []byte
	err := r.pool.QueryRow(ctx, q, arg).Scan(
		&s.ID,
		&s.UserID,
		&s.StripeSubscriptionID,
		&s.PlanID,
		&s.Status,
		&s.PriceCents,
		&s.Currency,
		&s.StartedAt,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.CanceledAt,
		&rawMetadata,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for subscription %s: %w", s.StripeSubscriptionID, err)
		}
	}
	return &s, nil
}

func (r *subscriptionRepo) Upsert(ctx context.Context, sub *model.Subscription) error {
	const q = `
        INSERT INTO subscriptions (
            user_id, stripe_subscription_id, plan_id, status, price_cents, currency,
            started_at, current_period_start, current_period_end,
            cancel_at_period_end, canceled_at, metadata, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), $13)
        ON CONFLICT (stripe_subscription_id) DO UPDATE
        SET plan_id = EXCLUDED.plan_id,
            status = EXCLUDED.status,
            price_cents = EXCLUDED.price_cents,
            currency = EXCLUDED.currency,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            cancel_at_period_end = EXCLUDED.cancel_at_period_end,
            canceled_at = EXCLUDED.canceled_at,
            metadata = EXCLUDED.metadata,
            updated_at = EXCLUDED.updated_at
        WHERE subscriptions.updated_at <= EXCLUDED.updated_at
    `
	metadata, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, q,
		sub.UserID,
		sub.StripeSubscriptionID,
		sub.PlanID,
		sub.Status,
		sub.PriceCents,
		sub.Currency,
		sub.StartedAt,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		metadata,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	return nil
}

func (r *subscriptionRepo) Overwrite(ctx context.Context, sub *model.Subscription) (bool, error) {
	const q = `
        UPDATE subscriptions
        SET plan_id = $2,
            status = $3,
            price_cents = $4,
            currency = $5,
            current_period_start = $6,
            current_period_end = $7,
            cancel_at_period_end = $8,
            canceled_at = $9,
            metadata = $10,
            updated_at = $11
        WHERE stripe_subscription_id = $1
          AND updated_at <= $11
    `
	metadata, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, q,
		sub.StripeSubscriptionID,
		sub.PlanID,
		sub.Status,
		sub.PriceCents,
		sub.Currency,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		metadata,
		sub.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("overwrite subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *subscriptionRepo) MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt, eventTime time.Time) (bool, error) {
	const q = `
        UPDATE subscriptions
        SET status = $2, canceled_at = $3, updated_at = $4
        WHERE stripe_subscription_id = $1
          AND updated_at <= $4
    `
	tag, err := r.pool.Exec(ctx, q, stripeSubscriptionID, model.SubscriptionStatusCanceled, canceledAt, eventTime)
	if err != nil {
		return false, fmt.Errorf("mark subscription %s canceled: %w", stripeSubscriptionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *subscriptionRepo) SetStatusAndPeriod(ctx context.Context, stripeSubscriptionID, status string, periodStart, periodEnd, eventTime time.Time) (bool, error) {
	const q = `
        UPDATE subscriptions
        SET status = $2, current_period_start = $3, current_period_end = $4, updated_at = $5
        WHERE stripe_subscription_id = $1
          AND updated_at <= $5
    `
	tag, err := r.pool.Exec(ctx, q, stripeSubscriptionID, status, periodStart, periodEnd, eventTime)
	if err != nil {
		return false, fmt.Errorf("set status %s on subscription %s: %w", status, stripeSubscriptionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal subscription metadata: %w", err)
	}
	return raw, nil
}
