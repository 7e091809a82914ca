// Package auth verifies the HS256 access tokens issued by the expense
// backend and carries the resulting caller identity through a request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("auth: token is required")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Identity is the authenticated caller. Token is forwarded unchanged to
// the data service, which performs its own authorization.
type Identity struct {
	UserID string
	Email  string
	Token  string
	Claims jwt.MapClaims
}

// Verifier checks tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	leeway time.Duration
}

// NewVerifier creates a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), leeway: 30 * time.Second}
}

// Verify parses token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.leeway))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Identity{
		UserID: userID(claims),
		Email:  stringClaim(claims, "email"),
		Token:  token,
		Claims: claims,
	}, nil
}

// Sign issues a token for userID that expires after ttl; zero means no
// expiry. Used by the CLI and tests to produce tokens the backend accepts.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: secret is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": userID,
		"sub":    userID,
		"iat":    now.Unix(),
	}
	if ttl != 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromHeader extracts the token from an Authorization header value.
// Like the backend, it accepts both "Bearer <token>" and a bare token.
func TokenFromHeader(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// userID reads the caller ID from the claims the backend is known to use.
func userID(claims jwt.MapClaims) string {
	for _, key := range []string{"userId", "user_id", "_id", "id", "sub"} {
		if s := stringClaim(claims, key); s != "" {
			return s
		}
	}
	return ""
}

func stringClaim(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached to ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
