package stripeclient

import "time"

// Checkout modes, mirroring the processor's vocabulary.
const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// PaymentStatusPaid is the only session payment status treated as success.
const PaymentStatusPaid = "paid"

// CheckoutItem is one storefront cart line for a payment-mode session.
// UnitAmount is in minor currency units.
type CheckoutItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// CustomerInfo carries optional contact fields supplied at checkout. They are
// stashed in session metadata so the verifier can fall back to them.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	Mode     string
	Items    []CheckoutItem // payment mode
	PriceID  string         // subscription mode
	Quantity int64          // subscription mode, defaults to 1
	// CustomerID attaches an existing processor customer so a new
	// subscription lands on the same billing record.
	CustomerID string
	Customer   CustomerInfo
	SuccessURL string
	CancelURL  string
}

// LineItem is a normalized session line item as returned by the verifier.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	AmountTotal int64  `json:"amount_total"`
	Currency    string `json:"currency"`
}

// Session is the normalized view of a processor checkout session. It is
// reconstructed on demand and never persisted.
type Session struct {
	ID             string            `json:"id"`
	Mode           string            `json:"mode"`
	PaymentStatus  string            `json:"payment_status"`
	CustomerEmail  string            `json:"customer_email"`
	CustomerID     string            `json:"customer_id,omitempty"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	AmountTotal    int64             `json:"amount_total"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
	LineItems      []LineItem        `json:"line_items"`
}

// SubscriptionState is the normalized snapshot of a processor subscription
// object. Webhook events and direct API pulls both reduce to this type so the
// ledger write path is identical for either source.
type SubscriptionState struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	PriceCents        int64
	Currency          string
	StartedAt         time.Time
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	Metadata          map[string]string
}

// Invoice is the normalized slice of a processor invoice that the ledger
// cares about.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Metadata       map[string]string
}

// Event is the verified, normalized webhook envelope. Exactly one of the
// payload fields is set depending on Type; all are nil for event types this
// system does not handle.
type Event struct {
	ID           string
	Type         string
	CreatedAt    time.Time
	Session      *Session
	Subscription *SubscriptionState
	Invoice      *Invoice
}
