package service

import (
	"context"
	"time"

	"app/internal/model"
	"app/internal/stripeclient"
)

// fakeUserRepo is an in-memory UserRepository keyed by id.
type fakeUserRepo struct {
	users  map[int64]*model.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*model.User{}, nextID: 1}
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	u.ID = r.nextID
	r.nextID++
	if u.Status == "" {
		u.Status = model.UserStatusInactive
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByStripeCustomerID(_ context.Context, customerID string) (*model.User, error) {
	for _, u := range r.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateStripeCustomerID(_ context.Context, id int64, customerID string) error {
	if u, ok := r.users[id]; ok {
		u.StripeCustomerID = &customerID
	}
	return nil
}

func (r *fakeUserRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	if u, ok := r.users[id]; ok {
		u.Status = status
	}
	return nil
}

func (r *fakeUserRepo) UpdatePasswordHash(_ context.Context, id int64, passwordHash string) error {
	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

// fakeSubscriptionRepo mirrors the conditional-write semantics of the
// Postgres repository: writes only land when the stored updated_at is not
// newer than the incoming one.
type fakeSubscriptionRepo struct {
	subs   map[string]*model.Subscription
	nextID int64
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: map[string]*model.Subscription{}, nextID: 1}
}

func (r *fakeSubscriptionRepo) GetByStripeID(_ context.Context, id string) (*model.Subscription, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSubscriptionRepo) GetCurrentForUser(_ context.Context, userID int64) (*model.Subscription, error) {
	var latest *model.Subscription
	for _, s := range r.subs {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeSubscriptionRepo) Upsert(_ context.Context, sub *model.Subscription) error {
	existing, ok := r.subs[sub.StripeSubscriptionID]
	if !ok {
		cp := *sub
		cp.ID = r.nextID
		r.nextID++
		cp.CreatedAt = time.Now()
		r.subs[sub.StripeSubscriptionID] = &cp
		return nil
	}
	if existing.UpdatedAt.After(sub.UpdatedAt) {
		return nil
	}
	existing.PlanID = sub.PlanID
	existing.Status = sub.Status
	existing.PriceCents = sub.PriceCents
	existing.Currency = sub.Currency
	existing.CurrentPeriodStart = sub.CurrentPeriodStart
	existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
	existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	existing.CanceledAt = sub.CanceledAt
	existing.Metadata = sub.Metadata
	existing.UpdatedAt = sub.UpdatedAt
	return nil
}

func (r *fakeSubscriptionRepo) Overwrite(_ context.Context, sub *model.Subscription) (bool, error) {
	existing, ok := r.subs[sub.StripeSubscriptionID]
	if !ok || existing.UpdatedAt.After(sub.UpdatedAt) {
		return false, nil
	}
	existing.PlanID = sub.PlanID
	existing.Status = sub.Status
	existing.PriceCents = sub.PriceCents
	existing.Currency = sub.Currency
	existing.CurrentPeriodStart = sub.CurrentPeriodStart
	existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
	existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	existing.CanceledAt = sub.CanceledAt
	existing.Metadata = sub.Metadata
	existing.UpdatedAt = sub.UpdatedAt
	return true, nil
}

func (r *fakeSubscriptionRepo) MarkCanceled(_ context.Context, id string, canceledAt, eventTime time.Time) (bool, error) {
	existing, ok := r.subs[id]
	if !ok || existing.UpdatedAt.After(eventTime) {
		return false, nil
	}
	existing.Status = model.SubscriptionStatusCanceled
	existing.CanceledAt = &canceledAt
	existing.UpdatedAt = eventTime
	return true, nil
}

func (r *fakeSubscriptionRepo) SetStatusAndPeriod(_ context.Context, id, status string, periodStart, periodEnd, eventTime time.Time) (bool, error) {
	existing, ok := r.subs[id]
	if !ok || existing.UpdatedAt.After(eventTime) {
		return false, nil
	}
	existing.Status = status
	existing.CurrentPeriodStart = &periodStart
	existing.CurrentPeriodEnd = &periodEnd
	existing.UpdatedAt = eventTime
	return true, nil
}

// fakePurchaseRepo deduplicates on (payment_reference, product_id) like the
// Postgres unique key does.
type fakePurchaseRepo struct {
	purchases []*model.OneTimePurchase
}

func (r *fakePurchaseRepo) Record(_ context.Context, p *model.OneTimePurchase) error {
	for _, existing := range r.purchases {
		if existing.PaymentReference == p.PaymentReference && existing.ProductID == p.ProductID {
			return nil
		}
	}
	cp := *p
	r.purchases = append(r.purchases, &cp)
	return nil
}

// fakeProvider is a canned stripeclient.Client. VerifyWebhook returns the
// queued event without checking the signature unless verifyErr is set.
type fakeProvider struct {
	event        *stripeclient.Event
	verifyErr    error
	session      *stripeclient.Session
	sessionErr   error
	latestSub    *stripeclient.SubscriptionState
	latestSubErr error

	checkoutURL    string
	checkoutErr    error
	lastCheckout   stripeclient.CheckoutParams
	portalURL      string
	portalErr      error
	clientSecret   string
	intentErr      error
	lastIntentAmt  int64
	checkoutCalled bool
}

func (f *fakeProvider) CreatePaymentIntent(_ context.Context, amountCents int64, _ string) (string, error) {
	f.lastIntentAmt = amountCents
	return f.clientSecret, f.intentErr
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, params stripeclient.CheckoutParams) (string, error) {
	f.checkoutCalled = true
	f.lastCheckout = params
	return f.checkoutURL, f.checkoutErr
}

func (f *fakeProvider) RetrieveSession(_ context.Context, _ string) (*stripeclient.Session, error) {
	return f.session, f.sessionErr
}

func (f *fakeProvider) LatestSubscription(_ context.Context, _ string) (*stripeclient.SubscriptionState, error) {
	return f.latestSub, f.latestSubErr
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, _, _ string) (string, error) {
	return f.portalURL, f.portalErr
}

func (f *fakeProvider) VerifyWebhook(_ []byte, _ string) (*stripeclient.Event, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.event, nil
}
