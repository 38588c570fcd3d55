// Package auth owns user accounts, password hashing and access tokens.
package auth

import (
	"auction-live/internal/biddingerrors"
	"auction-live/internal/models"
	"auction-live/internal/repository"
	"auction-live/utils"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// UserService registers users and exchanges credentials for tokens
type UserService struct {
	repo     repository.AuctionDB
	tokens   *TokenMaker
	duration time.Duration
	cost     int
}

// NewUserService creates a UserService issuing tokens valid for duration
func NewUserService(repo repository.AuctionDB, tokens *TokenMaker, duration time.Duration) *UserService {
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		duration: duration,
		cost:     bcrypt.DefaultCost,
	}
}

// Register creates an active account with a hashed password
func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, fmt.Errorf("auth: %w - empty username", biddingerrors.ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, fmt.Errorf("auth: %w - invalid email", biddingerrors.ErrInvalidUser)
	}
	if len(password) < minPasswordLength {
		return models.User{}, fmt.Errorf("auth: %w - password must be at least %d characters", biddingerrors.ErrInvalidUser, minPasswordLength)
	}

	hashed, err := HashPassword(password, s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("auth: failed to hash password: %w", err)
	}

	user := models.User{
		UserID:         utils.GenerateID(),
		Username:       username,
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
	}
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("auth: failed to save user %s: %w", username, err)
	}

	utils.Info("user registered", map[string]any{"user_id": user.UserID, "username": username})
	return user, nil
}

// VerifyCredentials returns the active user matching username and password.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, biddingerrors.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("auth: %w", biddingerrors.ErrInvalidCredentials)
		}
		return models.User{}, fmt.Errorf("auth: failed to load user %s: %w", username, err)
	}
	if !user.IsActive || !VerifyPassword(user.HashedPassword, password) {
		return models.User{}, fmt.Errorf("auth: %w", biddingerrors.ErrInvalidCredentials)
	}
	return user, nil
}

// Login verifies credentials and issues an access token
func (s *UserService) Login(ctx context.Context, username, password string) (string, models.User, error) {
	user, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		utils.Warn("login rejected", map[string]any{"username": username})
		return "", models.User{}, err
	}

	token, _, err := s.tokens.CreateToken(user.UserID, s.duration)
	if err != nil {
		return "", models.User{}, err
	}
	return token, user, nil
}

// Authenticate resolves an access token to the user it was issued for
func (s *UserService) Authenticate(ctx context.Context, token string) (models.User, error) {
	payload, err := s.tokens.VerifyToken(token)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.repo.GetUser(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("auth: %w - unknown subject", biddingerrors.ErrInvalidToken)
		}
		return models.User{}, fmt.Errorf("auth: failed to load user %s: %w", payload.Subject, err)
	}
	if !user.IsActive {
		return models.User{}, fmt.Errorf("auth: %w - inactive user", biddingerrors.ErrInvalidToken)
	}
	return user, nil
}

// GetUser returns a user by id
func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("auth: failed to load user %s: %w", userID, err)
	}
	return user, nil
}
