package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"ledgersync/internal/shared/auth"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

const minPasswordLength = 8

// Service contains the business logic for user operations
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == nil || auth.VerifyPassword(*u.PasswordHash, password) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Create registers a user with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, email, name, password string, admin bool) (*User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return s.repo.Create(ctx, CreateUserParams{
		Email:        strings.ToLower(addr.Address),
		Name:         strings.TrimSpace(name),
		IsAdmin:      admin,
		PasswordHash: &hash,
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}
