package dto

// CheckoutItemRequest is one ad-hoc line item in a payment-mode checkout.
type CheckoutItemRequest struct {
	Name       string `json:"name" validate:"required"`
	UnitAmount int64  `json:"unit_amount" validate:"required,gt=0"`
	Quantity   int64  `json:"quantity" validate:"omitempty,gt=0"`
}

// CustomerInfoRequest carries optional buyer details forwarded to the
// processor.
type CustomerInfoRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// CheckoutRequest starts a hosted checkout session. Type selects the mode:
// "subscription" requires price_id, anything else (including absent) is a
// one-time payment and requires items.
type CheckoutRequest struct {
	Type     string                `json:"type" validate:"omitempty,oneof=payment subscription"`
	PriceID  string                `json:"price_id"`
	Quantity int64                 `json:"quantity" validate:"omitempty,gt=0"`
	Items    []CheckoutItemRequest `json:"items" validate:"omitempty,dive"`
	Customer CustomerInfoRequest   `json:"customer"`
}

// PaymentIntentRequest starts a direct payment of amount minor units.
type PaymentIntentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// CheckoutResponse returns the hosted checkout redirect.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// PaymentIntentResponse returns the client secret the frontend confirms with.
type PaymentIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}
