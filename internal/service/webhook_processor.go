package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"
	"app/internal/stripeclient"

	"github.com/rs/zerolog"
)

// WebhookProcessor verifies and applies processor webhook deliveries. Every
// handler is idempotent and tolerant of out-of-order delivery: rows carry the
// event timestamp and writes only land when the incoming event is at least as
// new as the stored state.
type WebhookProcessor struct {
	provider     stripeclient.Client
	userRepo     repository.UserRepository
	subSvc       SubscriptionService
	purchaseRepo repository.PurchaseRepository
	logger       zerolog.Logger
}

// NewWebhookProcessor creates a new WebhookProcessor with a scoped logger.
func NewWebhookProcessor(provider stripeclient.Client, userRepo repository.UserRepository, subSvc SubscriptionService, purchaseRepo repository.PurchaseRepository, logger zerolog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		provider:     provider,
		userRepo:     userRepo,
		subSvc:       subSvc,
		purchaseRepo: purchaseRepo,
		logger:       logger.With().Str("service", "WebhookProcessor").Logger(),
	}
}

// Process verifies the delivery signature against the raw payload, then
// dispatches on event type. A nil return means the delivery may be
// acknowledged; unknown references inside a verified event are acknowledged
// too, since redelivery cannot fix them.
func (s *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	log := s.logger.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	switch ev.Type {
	case stripeclient.EventCheckoutSessionCompleted:
		err = s.checkoutCompleted(ctx, ev, log)
	case stripeclient.EventSubscriptionCreated:
		err = s.subscriptionCreated(ctx, ev, log)
	case stripeclient.EventSubscriptionUpdated:
		err = s.subscriptionUpdated(ctx, ev, log)
	case stripeclient.EventSubscriptionDeleted:
		err = s.subscriptionDeleted(ctx, ev, log)
	case stripeclient.EventInvoicePaid:
		err = s.invoicePaid(ctx, ev, log)
	case stripeclient.EventInvoicePaymentFailed:
		err = s.invoicePaymentFailed(ctx, ev, log)
	default:
		log.Debug().Msg("Ignoring unhandled event type")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to process webhook event")
		return fmt.Errorf("processing %s: %w", ev.Type, err)
	}
	return nil
}

// checkoutCompleted links the session's customer to a local user and, for
// paid payment-mode sessions, records the purchase. Sessions for unknown
// emails are acknowledged without writes.
func (s *WebhookProcessor) checkoutCompleted(ctx context.Context, ev *stripeclient.Event, log zerolog.Logger) error {
	sess := ev.Session
	if sess.CustomerEmail == "" {
		log.Warn().Str("session_id", sess.ID).Msg("Checkout session has no customer email, skipping")
		return nil
	}
	user, err := s.userRepo.GetByEmail(ctx, sess.CustomerEmail)
	if err != nil {
		return err
	}
	if user == nil {
		log.Warn().Str("email", sess.CustomerEmail).Msg("Checkout session email matches no user, skipping")
		return nil
	}

	if sess.CustomerID != "" && (user.StripeCustomerID == nil || *user.StripeCustomerID != sess.CustomerID) {
		if err := s.userRepo.UpdateStripeCustomerID(ctx, user.ID, sess.CustomerID); err != nil {
			return err
		}
		log.Info().Int64("user_id", user.ID).Str("customer_id", sess.CustomerID).Msg("Linked billing customer to user")
	}

	if sess.Mode == stripeclient.ModePayment && sess.PaymentStatus == stripeclient.PaymentStatusPaid {
		return s.recordPurchases(ctx, user.ID, sess, ev.CreatedAt, log)
	}
	return nil
}

// recordPurchases writes one row per line item, or a single aggregate row
// when the event payload carried no line items. The (payment_reference,
// product_id) unique key makes redelivery a no-op.
func (s *WebhookProcessor) recordPurchases(ctx context.Context, userID int64, sess *stripeclient.Session, at time.Time, log zerolog.Logger) error {
	currency := sess.Currency
	if currency == "" {
		currency = "usd"
	}
	items := sess.LineItems
	if len(items) == 0 {
		items = []stripeclient.LineItem{{
			Description: "order",
			Quantity:    1,
			AmountTotal: sess.AmountTotal,
			Currency:    currency,
		}}
	}
	for _, item := range items {
		itemCurrency := item.Currency
		if itemCurrency == "" {
			itemCurrency = currency
		}
		p := &model.OneTimePurchase{
			UserID:           userID,
			ProductID:        item.Description,
			AmountCents:      item.AmountTotal,
			Currency:         itemCurrency,
			PaymentProvider:  "stripe",
			PaymentReference: sess.ID,
			PurchasedAt:      at,
			Metadata:         sess.Metadata,
		}
		if err := s.purchaseRepo.Record(ctx, p); err != nil {
			return err
		}
	}
	log.Info().Int64("user_id", userID).Str("session_id", sess.ID).Int("items", len(items)).Msg("Recorded one-time purchase")
	return nil
}

// subscriptionCreated writes the initial ledger row and activates the owning
// user. Events for customers with no local user are acknowledged.
func (s *WebhookProcessor) subscriptionCreated(ctx context.Context, ev *stripeclient.Event, log zerolog.Logger) error {
	st := ev.Subscription
	user, err := s.userRepo.GetByStripeCustomerID(ctx, st.CustomerID)
	if err != nil {
		return err
	}
	if user == nil {
		log.Warn().Str("customer_id", st.CustomerID).Msg("Subscription customer matches no user, skipping")
		return nil
	}
	sub, err := s.subSvc.RecordFromProvider(ctx, user.ID, st, ev.CreatedAt)
	if err != nil {
		return err
	}
	return s.applyUserStatus(ctx, user.ID, sub, log)
}

// subscriptionUpdated overwrites the existing ledger row. The user row is
// left alone; invoice events own the user-facing status transitions.
func (s *WebhookProcessor) subscriptionUpdated(ctx context.Context, ev *stripeclient.Event, log zerolog.Logger) error {
	_, err := s.subSvc.SyncFromProvider(ctx, ev.Subscription, ev.CreatedAt)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Warn().Str("subscription_id", ev.Subscription.ID).Msg("Update for unknown subscription, skipping")
		return nil
	}
	return err
}

// subscriptionDeleted marks the row canceled and downgrades the user.
func (s *WebhookProcessor) subscriptionDeleted(ctx context.Context, ev *stripeclient.Event, log zerolog.Logger) error {
	st := ev.Subscription
	canceledAt := ev.CreatedAt
	if st.CanceledAt != nil {
		canceledAt = *st.CanceledAt
	}
	sub, err := s.subSvc.MarkCanceled(ctx, st.ID, canceledAt, ev.CreatedAt)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Warn().Str("subscription_id", st.ID).Msg("Deletion for unknown subscription, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	return s.applyUserStatusForSubscription(ctx, sub, log)
}

// invoicePaid confirms a billing period: the subscription goes active with
// the invoice's period and the user follows.
func (s *WebhookProcessor) invoicePaid(ctx context.Context, ev *stripeclient.Event, log zerolog.Logger) error {
	inv := ev.Invoice
	if inv.SubscriptionID == "" {
		log.Info().Str("invoice_id", inv.ID).Msg("Invoice has no subscription, skipping")
		return nil
	}
	sub, err := s.subSvc.ApplyInvoice(ctx, inv.SubscriptionID, model.SubscriptionStatusActive, inv.PeriodStart, inv.PeriodEnd, ev.CreatedAt)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Warn().Str("subscription_id", inv.SubscriptionID).Msg("Invoice for unknown subscription, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	return s.applyUserStatusForSubscription(ctx, sub, log)
}

// invoicePaymentFailed moves the subscription and its user to past_due.
func (s *WebhookProcessor) invoicePaymentFailed(ctx context.Context, ev *stripeclient.Event, log zerolog.Logger) error {
	inv := ev.Invoice
	if inv.SubscriptionID == "" {
		log.Info().Str("invoice_id", inv.ID).Msg("Invoice has no subscription, skipping")
		return nil
	}
	sub, err := s.subSvc.ApplyInvoice(ctx, inv.SubscriptionID, model.SubscriptionStatusPastDue, inv.PeriodStart, inv.PeriodEnd, ev.CreatedAt)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Warn().Str("subscription_id", inv.SubscriptionID).Msg("Invoice for unknown subscription, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	return s.applyUserStatusForSubscription(ctx, sub, log)
}

// applyUserStatusForSubscription resolves the subscription's owner and syncs
// the user status from the canonical stored row. Using the stored row rather
// than the raw event means a stale delivery that lost the ledger write race
// cannot regress the user.
func (s *WebhookProcessor) applyUserStatusForSubscription(ctx context.Context, sub *model.Subscription, log zerolog.Logger) error {
	return s.applyUserStatus(ctx, sub.UserID, sub, log)
}

func (s *WebhookProcessor) applyUserStatus(ctx context.Context, userID int64, sub *model.Subscription, log zerolog.Logger) error {
	status := userStatusForSubscription(sub.Status)
	if err := s.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		return err
	}
	log.Info().Int64("user_id", userID).Str("subscription_status", sub.Status).Str("user_status", status).Msg("Synced user status from subscription")
	return nil
}

// userStatusForSubscription maps a processor subscription status onto the
// coarser user entitlement status.
func userStatusForSubscription(subStatus string) string {
	switch subStatus {
	case "active", "trialing":
		return model.UserStatusActive
	case "past_due", "unpaid":
		return model.UserStatusPastDue
	default:
		return model.UserStatusInactive
	}
}
