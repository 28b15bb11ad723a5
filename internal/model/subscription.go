package model

import "time"

// Subscription statuses as reported by the payment processor.
const (
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
)

// Subscription is the local projection of one processor subscription
// lifecycle, keyed by the processor's subscription id. A user accumulates one
// row per lifecycle; the most recently started row is the current one.
type Subscription struct {
	ID                   int64             `db:"id" json:"id"`
	UserID               int64             `db:"user_id" json:"user_id"`
	StripeSubscriptionID string            `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	PlanID               string            `db:"plan_id" json:"plan_id"`
	Status               string            `db:"status" json:"status"`
	PriceCents           int64             `db:"price_cents" json:"price_cents"`
	Currency             string            `db:"currency" json:"currency"`
	StartedAt            time.Time         `db:"started_at" json:"started_at"`
	CurrentPeriodStart   *time.Time        `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time        `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool              `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CanceledAt           *time.Time        `db:"canceled_at" json:"canceled_at,omitempty"`
	Metadata             map[string]string `db:"metadata" json:"metadata"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	// UpdatedAt carries the processor event timestamp that produced the
	// row's current contents; see repository.SubscriptionRepository.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
