package service

import (
	"context"
	"errors"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
)

const bcryptCost = 10

// UserService defines business logic for user accounts.
type UserService interface {
	Register(ctx context.Context, email, password, name string) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error
}

type userService struct {
	repo   repository.UserRepository
	logger zerolog.Logger
}

// NewUserService creates a new UserService with a scoped logger.
func NewUserService(repo repository.UserRepository, logger zerolog.Logger) UserService {
	return &userService{
		repo:   repo,
		logger: logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Status:       model.UserStatusInactive,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to create user")
		return nil, err
	}
	return u, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *userService) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, string(hash)); err != nil {
		s.logger.Error().Err(err).Int64("user_id", id).Msg("Failed to update password")
		return err
	}
	return nil
}
