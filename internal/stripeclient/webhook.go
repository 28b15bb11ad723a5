package stripeclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Webhook event types this system reacts to.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaid              = "invoice.paid"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// VerifyWebhook checks the signature over the raw request bytes and, only on
// success, decodes the payload into a normalized Event. Verification before
// parsing is a correctness requirement: an unauthenticated body is never
// interpreted.
func (c *client) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return normalizeEvent(&ev)
}

func normalizeEvent(ev *stripe.Event) (*Event, error) {
	out := &Event{
		ID:        ev.ID,
		Type:      string(ev.Type),
		CreatedAt: time.Unix(ev.Created, 0).UTC(),
	}

	switch {
	case out.Type == EventCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
		}
		out.Session = newSession(&cs)
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
		}
		out.Subscription = newSubscriptionState(&sub)
	case strings.HasPrefix(out.Type, "invoice."):
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: invoice: %v", ErrInvalidPayload, err)
		}
		out.Invoice = newInvoice(&inv, ev.Data.Raw)
	}
	return out, nil
}
