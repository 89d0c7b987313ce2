// Package auth implements the OAuth grant flow used by tools that read a
// user's external accounts, and the signed state that ties a callback back
// to the user who started it.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuthDisabled is returned when no signing secret is configured.
	ErrAuthDisabled = errors.New("auth: oauth is not configured")
	// ErrInvalidState is returned for a state that fails verification.
	ErrInvalidState = errors.New("auth: invalid oauth state")
)

// StateSigner issues and verifies the OAuth state parameter as an HS256 JWT.
type StateSigner struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewStateSigner builds a signer with the given secret and expiry.
func NewStateSigner(secret string, expiry time.Duration) *StateSigner {
	return &StateSigner{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// StateClaims is the payload of a signed state.
type StateClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Sign issues a state for userID starting a grant with provider.
func (s *StateSigner) Sign(userID, provider string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("auth: user id required")
	}

	now := s.now()
	claims := StateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks state and returns the user and provider it was issued for.
func (s *StateSigner) Verify(state string) (userID, provider string, err error) {
	if s == nil || len(s.secret) == 0 {
		return "", "", ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(state, &StateClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", "", ErrInvalidState
	}

	claims, ok := parsed.Claims.(*StateClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", "", ErrInvalidState
	}
	return claims.Subject, claims.Provider, nil
}
