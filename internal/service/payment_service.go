package service

import (
	"context"
	"errors"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/stripeclient"

	"github.com/rs/zerolog"
)

var (
	ErrNoItems          = errors.New("no items provided")
	ErrMissingPriceID   = errors.New("missing price id")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNoLinkedCustomer = errors.New("no billing customer linked to user")
	ErrSessionNotFound  = errors.New("checkout session not found")
)

// CheckoutInput describes a checkout session request. Type selects the mode;
// anything other than "subscription" is a one-time payment.
type CheckoutInput struct {
	Type     string
	PriceID  string
	Quantity int64
	Items    []stripeclient.CheckoutItem
	Customer stripeclient.CustomerInfo
}

// SessionVerification is the normalized result of a verify-session call.
type SessionVerification struct {
	Valid   bool
	Session *stripeclient.Session
}

// PaymentService drives the synchronous processor operations: checkout
// creation, session verification, billing portal and the manual refresh
// escape hatch. It never writes subscription state except through
// SubscriptionService's shared mapping.
type PaymentService struct {
	cfg      *config.Config
	provider stripeclient.Client
	userRepo repository.UserRepository
	subSvc   SubscriptionService
	logger   zerolog.Logger
}

// NewPaymentService creates a new PaymentService with a scoped logger.
func NewPaymentService(cfg *config.Config, provider stripeclient.Client, userRepo repository.UserRepository, subSvc SubscriptionService, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		cfg:      cfg,
		provider: provider,
		userRepo: userRepo,
		subSvc:   subSvc,
		logger:   logger.With().Str("service", "PaymentService").Logger(),
	}
}

// CreatePaymentIntent starts a direct payment of the given amount in minor
// currency units.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, amountCents int64) (string, error) {
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}
	secret, err := s.provider.CreatePaymentIntent(ctx, amountCents, "usd")
	if err != nil {
		s.logger.Error().Err(err).Int64("amount_cents", amountCents).Msg("Failed to create payment intent")
		return "", err
	}
	return secret, nil
}

// CreateCheckoutSession builds a processor checkout session and returns its
// redirect URL. No local state is written; the webhook confirms completion.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	params := stripeclient.CheckoutParams{
		Mode:       stripeclient.ModePayment,
		Items:      in.Items,
		Customer:   in.Customer,
		SuccessURL: s.cfg.ClientURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.ClientURL + "/cancel?session_id={CHECKOUT_SESSION_ID}",
	}

	if in.Type == stripeclient.ModeSubscription {
		if in.PriceID == "" {
			return "", ErrMissingPriceID
		}
		params.Mode = stripeclient.ModeSubscription
		params.PriceID = in.PriceID
		params.Quantity = in.Quantity
		params.Items = nil

		// Reuse the existing billing record when the buyer is a known
		// user, so the processor does not create a duplicate customer.
		if in.Customer.Email != "" {
			u, err := s.userRepo.GetByEmail(ctx, in.Customer.Email)
			if err != nil {
				return "", err
			}
			if u != nil && u.StripeCustomerID != nil && *u.StripeCustomerID != "" {
				params.CustomerID = *u.StripeCustomerID
			}
		}
	} else if len(in.Items) == 0 {
		return "", ErrNoItems
	}

	url, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("mode", params.Mode).Msg("Failed to create checkout session")
		return "", err
	}
	return url, nil
}

// VerifySession re-reads a checkout session from the processor and reports
// whether it was paid. Read-only and safe to repeat.
func (s *PaymentService) VerifySession(ctx context.Context, sessionID string) (*SessionVerification, error) {
	sess, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, stripeclient.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to retrieve checkout session")
		return nil, err
	}
	return &SessionVerification{
		Valid:   sess.PaymentStatus == stripeclient.PaymentStatusPaid,
		Session: sess,
	}, nil
}

// BillingPortal returns a processor-hosted management portal URL for the
// user's linked billing customer.
func (s *PaymentService) BillingPortal(ctx context.Context, userID int64) (string, error) {
	user, err := s.linkedUser(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, s.cfg.ClientURL)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to create billing portal session")
		return "", err
	}
	return url, nil
}

// RefreshSubscription pulls the user's most recent subscription object
// directly from the processor and applies it through the same mapping the
// webhook uses, forcing convergence when a delivery was missed.
func (s *PaymentService) RefreshSubscription(ctx context.Context, userID int64) (*model.Subscription, error) {
	user, err := s.linkedUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := s.provider.LatestSubscription(ctx, *user.StripeCustomerID)
	if err != nil {
		if errors.Is(err, stripeclient.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to pull subscription from processor")
		return nil, err
	}
	sub, err := s.subSvc.RecordFromProvider(ctx, userID, st, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", userID).Str("subscription_id", sub.StripeSubscriptionID).Str("status", sub.Status).Msg("Subscription refreshed from processor")
	return sub, nil
}

func (s *PaymentService) linkedUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, ErrNoLinkedCustomer
	}
	return user, nil
}
