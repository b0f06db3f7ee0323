// Package auth issues and verifies the bearer tokens that identify
// task owners.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates the token failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoSecret indicates the service was built without a signing secret.
	ErrNoSecret = errors.New("auth secret not configured")
)

// Claims are the JWT claims carried by a Taskpilot token. The subject
// is the owner id.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies HS256 tokens.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates a token service. ttl applies to tokens minted by
// IssueToken.
func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), tokenTTL: ttl}
}

// IssueToken mints a token for an owner. Used by the dev token helper;
// production deployments typically mint tokens elsewhere with the
// shared secret.
func (s *Service) IssueToken(ownerID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "taskpilot",
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        fmt.Sprintf("%d-%s", now.UnixNano(), ownerID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken verifies a token and returns the owner id from its
// subject claim.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
