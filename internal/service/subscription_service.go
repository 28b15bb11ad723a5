package service

import (
	"context"
	"errors"
	"time"

	"app/internal/model"
	"app/internal/repository"
	"app/internal/stripeclient"

	"github.com/rs/zerolog"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// SubscriptionService owns the subscription ledger. All writes flow through
// rowFromState so webhook delivery and manual refresh cannot produce
// divergent mappings of the same processor object.
type SubscriptionService interface {
	// CurrentForUser returns the user's most recently started subscription,
	// or nil when the user never subscribed.
	CurrentForUser(ctx context.Context, userID int64) (*model.Subscription, error)
	// RecordFromProvider writes a full row snapshot for a subscription owned
	// by the given user, inserting or overwriting as needed.
	RecordFromProvider(ctx context.Context, userID int64, st *stripeclient.SubscriptionState, eventTime time.Time) (*model.Subscription, error)
	// SyncFromProvider overwrites an existing row from a processor snapshot.
	// Returns ErrSubscriptionNotFound when no row exists for the external id.
	SyncFromProvider(ctx context.Context, st *stripeclient.SubscriptionState, eventTime time.Time) (*model.Subscription, error)
	// MarkCanceled moves a row to its terminal state.
	MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt, eventTime time.Time) (*model.Subscription, error)
	// ApplyInvoice sets the status and billing period reported by an invoice.
	ApplyInvoice(ctx context.Context, stripeSubscriptionID, status string, periodStart, periodEnd, eventTime time.Time) (*model.Subscription, error)
}

type subscriptionService struct {
	repo   repository.SubscriptionRepository
	logger zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(repo repository.SubscriptionRepository, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:   repo,
		logger: logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

// rowFromState maps a normalized processor snapshot onto a ledger row.
// UpdatedAt carries the event time so the repository's conditional writes can
// reject stale events.
func rowFromState(userID int64, st *stripeclient.SubscriptionState, eventTime time.Time) *model.Subscription {
	sub := &model.Subscription{
		UserID:               userID,
		StripeSubscriptionID: st.ID,
		PlanID:               st.PriceID,
		Status:               st.Status,
		PriceCents:           st.PriceCents,
		Currency:             st.Currency,
		StartedAt:            st.StartedAt,
		CancelAtPeriodEnd:    st.CancelAtPeriodEnd,
		CanceledAt:           st.CanceledAt,
		Metadata:             st.Metadata,
		UpdatedAt:            eventTime,
	}
	if sub.Currency == "" {
		sub.Currency = "usd"
	}
	if sub.StartedAt.IsZero() {
		sub.StartedAt = eventTime
	}
	if !st.PeriodStart.IsZero() {
		t := st.PeriodStart
		sub.CurrentPeriodStart = &t
	}
	if !st.PeriodEnd.IsZero() {
		t := st.PeriodEnd
		sub.CurrentPeriodEnd = &t
	}
	return sub
}

func (s *subscriptionService) CurrentForUser(ctx context.Context, userID int64) (*model.Subscription, error) {
	sub, err := s.repo.GetCurrentForUser(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to fetch current subscription")
		return nil, err
	}
	return sub, nil
}

func (s *subscriptionService) RecordFromProvider(ctx context.Context, userID int64, st *stripeclient.SubscriptionState, eventTime time.Time) (*model.Subscription, error) {
	row := rowFromState(userID, st, eventTime)
	if err := s.repo.Upsert(ctx, row); err != nil {
		s.logger.Error().Err(err).Str("subscription_id", st.ID).Int64("user_id", userID).Msg("Failed to upsert subscription")
		return nil, err
	}
	return s.current(ctx, st.ID)
}

func (s *subscriptionService) SyncFromProvider(ctx context.Context, st *stripeclient.SubscriptionState, eventTime time.Time) (*model.Subscription, error) {
	existing, err := s.repo.GetByStripeID(ctx, st.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSubscriptionNotFound
	}
	row := rowFromState(existing.UserID, st, eventTime)
	applied, err := s.repo.Overwrite(ctx, row)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", st.ID).Msg("Failed to overwrite subscription")
		return nil, err
	}
	if !applied {
		s.logger.Debug().Str("subscription_id", st.ID).Time("event_time", eventTime).Msg("Stale subscription update skipped")
	}
	return s.current(ctx, st.ID)
}

func (s *subscriptionService) MarkCanceled(ctx context.Context, stripeSubscriptionID string, canceledAt, eventTime time.Time) (*model.Subscription, error) {
	existing, err := s.repo.GetByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSubscriptionNotFound
	}
	applied, err := s.repo.MarkCanceled(ctx, stripeSubscriptionID, canceledAt, eventTime)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", stripeSubscriptionID).Msg("Failed to mark subscription canceled")
		return nil, err
	}
	if !applied {
		s.logger.Debug().Str("subscription_id", stripeSubscriptionID).Msg("Stale cancellation skipped")
	}
	return s.current(ctx, stripeSubscriptionID)
}

func (s *subscriptionService) ApplyInvoice(ctx context.Context, stripeSubscriptionID, status string, periodStart, periodEnd, eventTime time.Time) (*model.Subscription, error) {
	existing, err := s.repo.GetByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSubscriptionNotFound
	}
	applied, err := s.repo.SetStatusAndPeriod(ctx, stripeSubscriptionID, status, periodStart, periodEnd, eventTime)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", stripeSubscriptionID).Str("status", status).Msg("Failed to apply invoice status")
		return nil, err
	}
	if !applied {
		s.logger.Debug().Str("subscription_id", stripeSubscriptionID).Msg("Stale invoice update skipped")
	}
	return s.current(ctx, stripeSubscriptionID)
}

// current re-reads the canonical row after a conditional write; callers use
// its status rather than the event's, so a stale event can never regress
// downstream state.
func (s *subscriptionService) current(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	sub, err := s.repo.GetByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}
