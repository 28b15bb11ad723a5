package service

import (
	"context"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/stripeclient"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	provider  *fakeProvider
	users     *fakeUserRepo
	subs      *fakeSubscriptionRepo
	purchases *fakePurchaseRepo
	subSvc    SubscriptionService
	processor *WebhookProcessor
}

func newProcessorFixture() *processorFixture {
	provider := &fakeProvider{}
	users := newFakeUserRepo()
	subs := newFakeSubscriptionRepo()
	purchases := &fakePurchaseRepo{}
	subSvc := NewSubscriptionService(subs, zerolog.Nop())
	return &processorFixture{
		provider:  provider,
		users:     users,
		subs:      subs,
		purchases: purchases,
		subSvc:    subSvc,
		processor: NewWebhookProcessor(provider, users, subSvc, purchases, zerolog.Nop()),
	}
}

func (f *processorFixture) addUser(t *testing.T, email, customerID string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: "Test User", PasswordHash: "x"}
	require.NoError(t, f.users.Create(context.Background(), u))
	if customerID != "" {
		require.NoError(t, f.users.UpdateStripeCustomerID(context.Background(), u.ID, customerID))
	}
	return u
}

func (f *processorFixture) deliver(t *testing.T, ev *stripeclient.Event) {
	t.Helper()
	f.provider.event = ev
	require.NoError(t, f.processor.Process(context.Background(), []byte("{}"), "sig"))
}

func subscriptionEvent(evType, subID, customerID, status string, created time.Time) *stripeclient.Event {
	return &stripeclient.Event{
		ID:        "evt_" + evType,
		Type:      evType,
		CreatedAt: created,
		Subscription: &stripeclient.SubscriptionState{
			ID:          subID,
			CustomerID:  customerID,
			Status:      status,
			PriceID:     "price_basic",
			PriceCents:  1500,
			Currency:    "usd",
			StartedAt:   created,
			PeriodStart: created,
			PeriodEnd:   created.AddDate(0, 1, 0),
		},
	}
}

func invoiceEvent(evType, subID string, created time.Time) *stripeclient.Event {
	return &stripeclient.Event{
		ID:        "evt_" + evType,
		Type:      evType,
		CreatedAt: created,
		Invoice: &stripeclient.Invoice{
			ID:             "in_1",
			CustomerID:     "cus_1",
			SubscriptionID: subID,
			PeriodStart:    created,
			PeriodEnd:      created.AddDate(0, 1, 0),
		},
	}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	f := newProcessorFixture()
	f.provider.verifyErr = stripeclient.ErrSignature

	err := f.processor.Process(context.Background(), []byte("{}"), "bad")
	assert.ErrorIs(t, err, stripeclient.ErrSignature)
}

func TestProcessIgnoresUnhandledEventType(t *testing.T) {
	f := newProcessorFixture()
	f.deliver(t, &stripeclient.Event{ID: "evt_1", Type: "customer.created", CreatedAt: time.Now()})
}

func TestSubscriptionCreatedActivatesUser(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	now := time.Now().UTC().Truncate(time.Second)

	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", now))

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, u.ID, sub.UserID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, int64(1500), sub.PriceCents)
	assert.Equal(t, "usd", sub.Currency)

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, got.Status)
}

func TestSubscriptionCreatedUnknownCustomerIsAcknowledged(t *testing.T) {
	f := newProcessorFixture()

	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_missing", "active", time.Now()))

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestSubscriptionUpdatedOverwritesRow(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	t0 := time.Now().UTC().Truncate(time.Second)

	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", t0))

	ev := subscriptionEvent(stripeclient.EventSubscriptionUpdated, "sub_1", "cus_1", "active", t0.Add(time.Minute))
	ev.Subscription.CancelAtPeriodEnd = true
	ev.Subscription.PriceCents = 2500
	f.deliver(t, ev)

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, int64(2500), sub.PriceCents)

	// Update events never touch the user row.
	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, got.Status)
}

func TestSubscriptionUpdatedUnknownSubscriptionIsAcknowledged(t *testing.T) {
	f := newProcessorFixture()
	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionUpdated, "sub_missing", "cus_1", "active", time.Now()))
}

func TestSubscriptionDeletedCancelsAndDowngrades(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	t0 := time.Now().UTC().Truncate(time.Second)

	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", t0))

	canceledAt := t0.Add(time.Hour)
	ev := subscriptionEvent(stripeclient.EventSubscriptionDeleted, "sub_1", "cus_1", "canceled", t0.Add(time.Hour))
	ev.Subscription.CanceledAt = &canceledAt
	f.deliver(t, ev)

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.True(t, sub.CanceledAt.Equal(canceledAt))

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusInactive, got.Status)
}

func TestInvoicePaidActivatesSubscriptionAndUser(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	t0 := time.Now().UTC().Truncate(time.Second)

	ev := subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "incomplete", t0)
	f.deliver(t, ev)

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusInactive, got.Status)

	f.deliver(t, invoiceEvent(stripeclient.EventInvoicePaid, "sub_1", t0.Add(time.Minute)))

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)

	got, err = f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, got.Status)
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	t0 := time.Now().UTC().Truncate(time.Second)

	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", t0))
	f.deliver(t, invoiceEvent(stripeclient.EventInvoicePaymentFailed, "sub_1", t0.Add(time.Minute)))

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPastDue, sub.Status)

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusPastDue, got.Status)
}

func TestInvoiceWithoutSubscriptionIsAcknowledged(t *testing.T) {
	f := newProcessorFixture()
	f.deliver(t, invoiceEvent(stripeclient.EventInvoicePaid, "", time.Now()))
}

func TestCheckoutCompletedLinksCustomerAndRecordsPurchase(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "")
	now := time.Now().UTC().Truncate(time.Second)

	f.deliver(t, &stripeclient.Event{
		ID:        "evt_checkout",
		Type:      stripeclient.EventCheckoutSessionCompleted,
		CreatedAt: now,
		Session: &stripeclient.Session{
			ID:            "cs_1",
			Mode:          stripeclient.ModePayment,
			PaymentStatus: stripeclient.PaymentStatusPaid,
			CustomerEmail: "a@example.com",
			CustomerID:    "cus_1",
			AmountTotal:   4200,
			Currency:      "usd",
		},
	})

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_1", *got.StripeCustomerID)

	require.Len(t, f.purchases.purchases, 1)
	p := f.purchases.purchases[0]
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, "cs_1", p.PaymentReference)
	assert.Equal(t, int64(4200), p.AmountCents)
	assert.Equal(t, "stripe", p.PaymentProvider)
	// The stored purchase time is the event time, not the processing time.
	assert.True(t, p.PurchasedAt.Equal(now))
}

func TestCheckoutCompletedRecordsEachLineItem(t *testing.T) {
	f := newProcessorFixture()
	f.addUser(t, "a@example.com", "cus_1")

	f.deliver(t, &stripeclient.Event{
		ID:        "evt_checkout",
		Type:      stripeclient.EventCheckoutSessionCompleted,
		CreatedAt: time.Now(),
		Session: &stripeclient.Session{
			ID:            "cs_2",
			Mode:          stripeclient.ModePayment,
			PaymentStatus: stripeclient.PaymentStatusPaid,
			CustomerEmail: "a@example.com",
			CustomerID:    "cus_1",
			Currency:      "usd",
			LineItems: []stripeclient.LineItem{
				{Description: "widget", Quantity: 2, AmountTotal: 2000, Currency: "usd"},
				{Description: "gadget", Quantity: 1, AmountTotal: 500, Currency: "usd"},
			},
		},
	})

	require.Len(t, f.purchases.purchases, 2)
	assert.Equal(t, "widget", f.purchases.purchases[0].ProductID)
	assert.Equal(t, "gadget", f.purchases.purchases[1].ProductID)
}

func TestCheckoutCompletedUnknownEmailIsAcknowledged(t *testing.T) {
	f := newProcessorFixture()

	f.deliver(t, &stripeclient.Event{
		ID:        "evt_checkout",
		Type:      stripeclient.EventCheckoutSessionCompleted,
		CreatedAt: time.Now(),
		Session: &stripeclient.Session{
			ID:            "cs_3",
			Mode:          stripeclient.ModePayment,
			PaymentStatus: stripeclient.PaymentStatusPaid,
			CustomerEmail: "nobody@example.com",
		},
	})

	assert.Empty(t, f.purchases.purchases)
}

func TestCheckoutCompletedSubscriptionModeWritesNoPurchase(t *testing.T) {
	f := newProcessorFixture()
	f.addUser(t, "a@example.com", "")

	f.deliver(t, &stripeclient.Event{
		ID:        "evt_checkout",
		Type:      stripeclient.EventCheckoutSessionCompleted,
		CreatedAt: time.Now(),
		Session: &stripeclient.Session{
			ID:            "cs_4",
			Mode:          stripeclient.ModeSubscription,
			PaymentStatus: stripeclient.PaymentStatusPaid,
			CustomerEmail: "a@example.com",
			CustomerID:    "cus_1",
		},
	})

	assert.Empty(t, f.purchases.purchases)
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	t0 := time.Now().UTC().Truncate(time.Second)

	ev := subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", t0)
	f.deliver(t, ev)
	f.deliver(t, ev)

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)

	checkout := &stripeclient.Event{
		ID:        "evt_checkout",
		Type:      stripeclient.EventCheckoutSessionCompleted,
		CreatedAt: t0,
		Session: &stripeclient.Session{
			ID:            "cs_1",
			Mode:          stripeclient.ModePayment,
			PaymentStatus: stripeclient.PaymentStatusPaid,
			CustomerEmail: "a@example.com",
			CustomerID:    "cus_1",
			AmountTotal:   1000,
			Currency:      "usd",
		},
	}
	f.deliver(t, checkout)
	f.deliver(t, checkout)

	assert.Len(t, f.purchases.purchases, 1)

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, got.Status)
}

func TestStaleEventCannotRegressState(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@example.com", "cus_1")
	t0 := time.Now().UTC().Truncate(time.Second)

	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", t0))
	f.deliver(t, invoiceEvent(stripeclient.EventInvoicePaid, "sub_1", t0.Add(2*time.Minute)))

	// A delayed redelivery of the original created event, carrying the
	// older incomplete status, must not win.
	stale := subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "incomplete", t0)
	f.deliver(t, stale)

	sub, err := f.subs.GetByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, got.Status)
}

func TestSubscriptionLifecycleEndToEnd(t *testing.T) {
	f := newProcessorFixture()
	u := f.addUser(t, "a@x.com", "")
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)

	// Checkout completes and links the billing customer.
	f.deliver(t, &stripeclient.Event{
		ID:        "evt_1",
		Type:      stripeclient.EventCheckoutSessionCompleted,
		CreatedAt: t0,
		Session: &stripeclient.Session{
			ID:             "cs_1",
			Mode:           stripeclient.ModeSubscription,
			PaymentStatus:  stripeclient.PaymentStatusPaid,
			CustomerEmail:  "a@x.com",
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
		},
	})
	got, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_1", *got.StripeCustomerID)

	// Subscription created: ledger row appears, user goes active.
	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionCreated, "sub_1", "cus_1", "active", t0.Add(time.Second)))
	got, _ = f.users.GetByID(ctx, u.ID)
	assert.Equal(t, model.UserStatusActive, got.Status)

	// Renewal payment fails.
	f.deliver(t, invoiceEvent(stripeclient.EventInvoicePaymentFailed, "sub_1", t0.Add(time.Minute)))
	got, _ = f.users.GetByID(ctx, u.ID)
	assert.Equal(t, model.UserStatusPastDue, got.Status)
	sub, _ := f.subs.GetByStripeID(ctx, "sub_1")
	assert.Equal(t, model.SubscriptionStatusPastDue, sub.Status)

	// Processor gives up and deletes the subscription.
	f.deliver(t, subscriptionEvent(stripeclient.EventSubscriptionDeleted, "sub_1", "cus_1", "canceled", t0.Add(2*time.Minute)))
	got, _ = f.users.GetByID(ctx, u.ID)
	assert.Equal(t, model.UserStatusInactive, got.Status)
	sub, _ = f.subs.GetByStripeID(ctx, "sub_1")
	assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
}
