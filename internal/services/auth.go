package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/ad/go-hooks-academy/internal/models"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

type AuthService struct {
	users  store.UserRepository
	logger zerolog.Logger
}

func NewAuthService(users store.UserRepository, logger zerolog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates an account. The username is stored exactly as given.
func (s *AuthService) Register(ctx context.Context, creds models.Credentials) (*models.User, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, creds)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			s.logger.Debug().Str("username", creds.Username).Msg("registration rejected, username taken")
		}
		return nil, err
	}

	s.logger.Info().Int64("user_id", user.ID).Str("user", user.DisplayName()).Msg("user registered")
	return user, nil
}

// Login returns ErrInvalidCredentials for both an unknown username and a
// wrong password.
func (s *AuthService) Login(ctx context.Context, creds models.Credentials) (*models.User, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, creds.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(creds.Password)) != 1 {
		s.logger.Debug().Int64("user_id", user.ID).Msg("login rejected, wrong password")
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns nil when no user has the id.
func (s *AuthService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, nil
	}
	return s.users.GetUser(ctx, id)
}

func validateCredentials(creds models.Credentials) error {
	if strings.TrimSpace(creds.Username) == "" {
		return invalid("username is required")
	}
	if creds.Password == "" {
		return invalid("password is required")
	}
	return nil
}
