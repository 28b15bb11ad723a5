package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseRepository records completed one-time purchases. Record is
// idempotent on (payment_reference, product_id) so a redelivered checkout
// event never duplicates a row.
type PurchaseRepository interface {
	Record(ctx context.Context, p *model.OneTimePurchase) error
}

type purchaseRepo struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepo creates a new PurchaseRepository.
func NewPurchaseRepo(pool *pgxpool.Pool) PurchaseRepository {
	return &purchaseRepo{pool: pool}
}

func (r *purchaseRepo) Record(ctx context.Context, p *model.OneTimePurchase) error {
	const q = `
        INSERT INTO one_time_purchases (
            user_id, product_id, amount_cents, currency,
            payment_provider, payment_reference, purchased_at, metadata
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (payment_reference, product_id) DO NOTHING
    `
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal purchase metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, q,
		p.UserID,
		p.ProductID,
		p.AmountCents,
		p.Currency,
		p.PaymentProvider,
		p.PaymentReference,
		p.PurchasedAt,
		raw,
	)
	if err != nil {
		return fmt.Errorf("record purchase %s for user %d: %w", p.PaymentReference, p.UserID, err)
	}
	return nil
}
