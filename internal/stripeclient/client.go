package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
)

var (
	// ErrNotFound means the processor does not know the referenced object.
	ErrNotFound = errors.New("stripe: object not found")
	// ErrSignature means webhook signature verification failed. The raw
	// payload must never be parsed when this is returned.
	ErrSignature = errors.New("stripe: webhook signature verification failed")
	// ErrInvalidPayload means a verified event carried data this client
	// could not decode.
	ErrInvalidPayload = errors.New("stripe: invalid event payload")
)

// Client is the narrow surface of the payment processor used by this
// service. It exists so the services can be exercised against a test double
// without network access.
type Client interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency string) (clientSecret string, err error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (url string, err error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	LatestSubscription(ctx context.Context, customerID string) (*SubscriptionState, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error)
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

type client struct {
	webhookSecret string
	logger        zerolog.Logger
}

// New configures the Stripe SDK and returns a Client backed by it.
func New(secretKey, webhookSecret string, logger zerolog.Logger) Client {
	stripe.Key = secretKey
	return &client{
		webhookSecret: webhookSecret,
		logger:        logger.With().Str("service", "StripeClient").Logger(),
	}
}

func (c *client) CreatePaymentIntent(ctx context.Context, amountCents int64, currency string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	intent, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return intent.ClientSecret, nil
}

func (c *client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	quantity := p.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Metadata: map[string]string{
			"customer_name":  p.Customer.Name,
			"customer_phone": p.Customer.Phone,
			"customer_email": p.Customer.Email,
		},
	}
	params.Context = ctx

	switch p.Mode {
	case ModeSubscription:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card", "amazon_pay"})
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(quantity),
		}}
	default:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
		for _, it := range p.Items {
			q := it.Quantity
			if q <= 0 {
				q = 1
			}
			params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(it.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(it.Name),
					},
				},
				Quantity: stripe.Int64(q),
			})
		}
	}

	// Attach the existing billing record if we know it; otherwise let the
	// processor key the session off the email.
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.Customer.Email != "" {
		params.CustomerEmail = stripe.String(p.Customer.Email)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (c *client) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	params.AddExpand("payment_intent")
	params.AddExpand("customer")

	sess, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	return newSession(sess), nil
}

// LatestSubscription pulls the customer's most recently created subscription
// object, bypassing webhook delivery. Used by the manual refresh operation.
func (c *client) LatestSubscription(ctx context.Context, customerID string) (*SubscriptionState, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var latest *stripe.Subscription
	iter := subscriptionpkg.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if latest == nil || sub.Created > latest.Created {
			latest = sub
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions for customer %s: %w", customerID, err)
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return newSubscriptionState(latest), nil
}

func (c *client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := billingsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
