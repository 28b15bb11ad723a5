package stripeclient

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// newSession maps a processor checkout session to its normalized form.
// The customer email is resolved through a fallback chain: session-level
// email, customer details, the linked customer object, then the contact email
// stashed in session metadata at creation time.
func newSession(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:            cs.ID,
		Mode:          string(cs.Mode),
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Metadata:      cs.Metadata,
	}

	switch {
	case cs.CustomerEmail != "":
		s.CustomerEmail = cs.CustomerEmail
	case cs.CustomerDetails != nil && cs.CustomerDetails.Email != "":
		s.CustomerEmail = cs.CustomerDetails.Email
	case cs.Customer != nil && cs.Customer.Email != "":
		s.CustomerEmail = cs.Customer.Email
	case cs.Metadata["customer_email"] != "":
		s.CustomerEmail = cs.Metadata["customer_email"]
	}

	if cs.Customer != nil {
		s.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		s.SubscriptionID = cs.Subscription.ID
	}
	if cs.LineItems != nil {
		for _, li := range cs.LineItems.Data {
			s.LineItems = append(s.LineItems, LineItem{
				Description: li.Description,
				Quantity:    li.Quantity,
				AmountTotal: li.AmountTotal,
				Currency:    string(li.Currency),
			})
		}
	}
	return s
}

// newSubscriptionState maps a processor subscription object to its normalized
// snapshot. Both webhook payloads and direct API pulls pass through here so
// the two sources cannot drift apart.
func newSubscriptionState(sub *stripe.Subscription) *SubscriptionState {
	st := &SubscriptionState{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		st.CustomerID = sub.Customer.ID
	}
	if sub.StartDate > 0 {
		st.StartedAt = time.Unix(sub.StartDate, 0).UTC()
	} else if sub.Created > 0 {
		st.StartedAt = time.Unix(sub.Created, 0).UTC()
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		st.CanceledAt = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			st.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			st.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		if item.Price != nil {
			st.PriceID = item.Price.ID
			st.PriceCents = item.Price.UnitAmount
			st.Currency = string(item.Price.Currency)
		}
	}
	return st
}

// invoiceParent matches the nested parent reference newer API versions use
// for the invoice -> subscription link.
type invoiceParent struct {
	Parent struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Subscription json.RawMessage `json:"subscription"`
}

// newInvoice maps a processor invoice to its normalized form. The
// subscription id may live in a direct field, in a line item, or in a nested
// parent reference depending on API version; all three are checked.
func newInvoice(inv *stripe.Invoice, raw []byte) *Invoice {
	out := &Invoice{
		ID:          inv.ID,
		PeriodStart: time.Unix(inv.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(inv.PeriodEnd, 0).UTC(),
		Metadata:    inv.Metadata,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}

	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line.Subscription != nil && line.Subscription.ID != "" {
				out.SubscriptionID = line.Subscription.ID
				break
			}
		}
	}
	if out.SubscriptionID == "" && len(raw) > 0 {
		var parent invoiceParent
		if err := json.Unmarshal(raw, &parent); err == nil {
			out.SubscriptionID = subscriptionIDFromRaw(parent)
		}
	}
	return out
}

func subscriptionIDFromRaw(parent invoiceParent) string {
	if len(parent.Subscription) > 0 {
		var id string
		if err := json.Unmarshal(parent.Subscription, &id); err == nil && id != "" {
			return id
		}
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(parent.Subscription, &obj); err == nil && obj.ID != "" {
			return obj.ID
		}
	}
	return parent.Parent.SubscriptionDetails.Subscription
}
