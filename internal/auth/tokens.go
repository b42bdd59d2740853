// Package auth implements the credential core: password hashing and the
// signed access/refresh token codec.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/streampulse/accounts/internal/domain/account"
)

var (
	// ErrNoSigningKey means a secret was absent at construction time. It is a
	// configuration fault, surfaced at startup, never per request.
	ErrNoSigningKey = errors.New("signing key is not configured")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims is the identity snapshot embedded in access tokens. Subject
// carries the account id.
type AccessClaims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// Keys holds the two independent signing secrets and their TTLs. Compromising
// one secret must not allow forging the other token kind, so they are
// configured separately and never derived from each other.
type Keys struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenManager issues and verifies HS256-signed tokens. The clock is
// injectable so expiry boundaries are testable.
type TokenManager struct {
	keys Keys
	now  func() time.Time
}

func NewTokenManager(keys Keys, now func() time.Time) (*TokenManager, error) {
	if len(keys.AccessSecret) == 0 || len(keys.RefreshSecret) == 0 {
		return nil, ErrNoSigningKey
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TokenManager{keys: keys, now: now}, nil
}

// IssueAccessToken signs a short-lived token carrying the full identity
// snapshot (id, email, username, full name).
func (m *TokenManager) IssueAccessToken(v *account.View) (string, error) {
	now := m.now()
	claims := AccessClaims{
		Email:    v.Email,
		Username: v.Username,
		FullName: v.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   v.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.keys.AccessTTL)),
		},
	}
	return m.sign(claims, m.keys.AccessSecret)
}

// IssueRefreshToken signs a long-lived token carrying the account id only.
// The jti makes every issued token distinct even within one clock second, so
// rotation always produces a new value.
func (m *TokenManager) IssueRefreshToken(accountID string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.keys.RefreshTTL)),
	}
	return m.sign(claims, m.keys.RefreshSecret)
}

func (m *TokenManager) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.keys.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) VerifyRefresh(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if err := m.parse(token, claims, m.keys.RefreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *TokenManager) sign(claims jwt.Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil && parsed.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
