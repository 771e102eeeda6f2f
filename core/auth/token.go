package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"musinotes/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMissing means no bearer token was presented.
	ErrTokenMissing = errors.New("access token required")
	// ErrTokenInvalid covers malformed, expired and wrongly signed tokens alike.
	ErrTokenInvalid = errors.New("invalid or expired token")
)

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

// Claims is the JWT payload.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenManager builds a TokenManager from the JWT settings.
func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	ttl := cfg.ExpiresIn
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{
		secret:   []byte(cfg.Secret),
		ttl:      ttl,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// TTL returns the lifetime of issued tokens.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for id and returns it with its expiry.
func (m *TokenManager) Issue(id Identity) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		ID:       id.UserID,
		Username: id.Username,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer and audience. Every failure is ErrTokenInvalid.
func (m *TokenManager) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.ID <= 0 {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{UserID: claims.ID, Username: claims.Username, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrTokenMissing
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}

// FormatTTL renders a lifetime the way clients configure it: "7d", "1h", "15m".
func FormatTTL(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return d.String()
}
