package model

import "time"

// OneTimePurchase records a completed payment-mode checkout line item.
type OneTimePurchase struct {
	ID               int64             `db:"id" json:"id"`
	UserID           int64             `db:"user_id" json:"user_id"`
	ProductID        string            `db:"product_id" json:"product_id"`
	AmountCents      int64             `db:"amount_cents" json:"amount_cents"`
	Currency         string            `db:"currency" json:"currency"`
	PaymentProvider  string            `db:"payment_provider" json:"payment_provider"`
	PaymentReference string            `db:"payment_reference" json:"payment_reference"`
	PurchasedAt      time.Time         `db:"purchased_at" json:"purchased_at"`
	Metadata         map[string]string `db:"metadata" json:"metadata"`
}
