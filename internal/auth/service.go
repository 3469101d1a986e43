package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"

	"catapis/internal/logging"
	"catapis/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 64 characters")
	ErrInvalidEmailFormat = errors.New("invalid email format")
)

const bcryptCost = 10

// Result is what both Register and Login resolve to
type Result struct {
	User        *user.User
	AccessToken string
}

// Service handles authentication business logic
type Service struct {
	users         UserStore
	tokens        TokenService
	logger        *logging.Logger
	tokenDuration time.Duration
}

func NewService(users UserStore, tokens TokenService, logger *logging.Logger, tokenDuration time.Duration) *Service {
	return &Service{
		users:         users,
		tokens:        tokens,
		logger:        logger,
		tokenDuration: tokenDuration,
	}
}

// Register creates a new user account and returns it with an access token.
// The uniqueness check runs before any hashing or insert happens.
func (s *Service) Register(ctx context.Context, email, password string) (*Result, error) {
	// Validate input
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}
	if len(password) > 64 {
		return nil, ErrPasswordTooLong
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	if exists {
		return nil, user.ErrDuplicateEmail
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, email, string(passwordHash))
	if err != nil {
		// The store uniqueness constraint can still fire on a racing insert
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	accessToken, err := s.tokens.CreateToken(newUser.ID, newUser.Email, s.tokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &Result{User: newUser, AccessToken: accessToken}, nil
}

// Login authenticates a user and returns it with an access token.
// A missing email and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(existingUser.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.CreateToken(existingUser.ID, existingUser.Email, s.tokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &Result{User: existingUser, AccessToken: accessToken}, nil
}
