package auth

import (
	"auction-live/internal/biddingerrors"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer          = "auction-live"
	minSecretLength = 16
)

// Payload is the claim set carried by an access token. Subject holds the
// user id.
type Payload struct {
	jwt.RegisteredClaims
}

// NewPayload builds the claims for userID valid for duration
func NewPayload(userID string, duration time.Duration) (*Payload, error) {
	tokenID, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokenID: %w", err)
	}

	now := time.Now()
	return &Payload{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}, nil
}

// TokenMaker signs and verifies HS256 access tokens
type TokenMaker struct {
	secret []byte
}

// NewTokenMaker creates a maker for the given signing secret
func NewTokenMaker(secret string) (*TokenMaker, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d characters", minSecretLength)
	}
	return &TokenMaker{secret: []byte(secret)}, nil
}

// CreateToken issues a signed token for userID
func (m *TokenMaker) CreateToken(userID string, duration time.Duration) (string, *Payload, error) {
	payload, err := NewPayload(userID, duration)
	if err != nil {
		return "", nil, err
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return token, payload, nil
}

// VerifyToken checks the signature and validity window of a token and
// returns its claims.
func (m *TokenMaker) VerifyToken(token string) (*Payload, error) {
	payload := &Payload{}
	_, err := jwt.ParseWithClaims(token, payload, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: %w - token expired", biddingerrors.ErrInvalidToken)
		}
		return nil, fmt.Errorf("auth: %w - %v", biddingerrors.ErrInvalidToken, err)
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("auth: %w - missing subject", biddingerrors.ErrInvalidToken)
	}
	return payload, nil
}
