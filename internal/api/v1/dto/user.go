package dto

import "time"

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SignInRequest is the payload for credential sign-in.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest rotates the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// UserResponse is the public view of a user account.
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SubscriptionResponse is the public view of a subscription row.
type SubscriptionResponse struct {
	Status             string     `json:"status"`
	PlanID             string     `json:"plan_id,omitempty"`
	PriceCents         int64      `json:"price_cents,omitempty"`
	Currency           string     `json:"currency,omitempty"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
}

// MeResponse bundles the account with its current subscription, if any.
type MeResponse struct {
	User         UserResponse          `json:"user"`
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}
