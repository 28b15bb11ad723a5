package model

import "time"

// User account statuses. The coarse status mirrors the state of the user's
// most recent subscription transition.
const (
	UserStatusInactive = "inactive"
	UserStatusActive   = "active"
	UserStatusPastDue  = "past_due"
)

// User represents a registered storefront account.
type User struct {
	ID               int64     `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	Name             string    `db:"name" json:"name"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
