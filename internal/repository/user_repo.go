package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository defines methods for accessing user accounts. Lookup methods
// return (nil, nil) when no row matches.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, id int64, customerID string) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, name, password_hash, stripe_customer_id, status, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
        INSERT INTO users (email, name, password_hash, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	status := u.Status
	if status == "" {
		status = model.UserStatusInactive
		u.Status = status
	}
	err := r.pool.QueryRow(ctx, q, u.Email, u.Name, u.PasswordHash, status).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(ctx, q, email)
}

func (r *userRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	return r.scanOne(ctx, q, customerID)
}

func (r *userRepo) scanOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.StripeCustomerID,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return &u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	const q = `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, customerID); err != nil {
		return fmt.Errorf("update stripe customer id for user %d: %w", id, err)
	}
	return nil
}

func (r *userRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	const q = `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("update status for user %d: %w", id, err)
	}
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, passwordHash); err != nil {
		return fmt.Errorf("update password for user %d: %w", id, err)
	}
	return nil
}
