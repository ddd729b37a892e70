// Package auth implements the Admin API's authentication primitives:
// JWT bearer tokens, password hashing and per-IP rate limiting.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
)

// Claims is the JWT payload for an authenticated Admin API session.
type Claims struct {
	UserID   string          `json:"uid"`
	Email    string          `json:"email"`
	Role     entity.UserRole `json:"role"`
	TenantID string          `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies the platform's signed bearer tokens.
// Grounded on the Nexus/Agentium manifests' golang-jwt/v5 usage: HMAC
// signing with a single server-held secret, no refresh-token rotation.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a TokenManager. ttl defaults to 24h if zero.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a new bearer token for the given user.
func (m *TokenManager) Issue(u *entity.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   u.ID(),
		Email:    u.Email(),
		Role:     u.Role(),
		TenantID: u.TenantID(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Subject:   u.ID(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ErrInvalidToken is returned for any unparseable, unsigned or expired
// bearer token.
var ErrInvalidToken = errors.New("invalid or expired token")

// Verify parses and validates a bearer token, returning its claims.
func (m *TokenManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
