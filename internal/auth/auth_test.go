package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func TestVerifyRoundTrip(t *testing.T) {
	token, err := Sign(secret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	id, err := NewVerifier(secret).Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", id.UserID)
	}
	if id.Token != token {
		t.Error("identity should carry the raw token")
	}
}

func TestVerifyFailures(t *testing.T) {
	expired, _ := Sign(secret, "user-1", -time.Hour)
	forged, _ := Sign("other-secret", "user-1", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "  ", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
	}

	v := NewVerifier(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	token, _ := Sign(secret, "user-1", time.Hour)
	if _, err := NewVerifier("").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken without a secret, got %v", err)
	}
}

func TestUserIDClaims(t *testing.T) {
	tests := []struct {
		claims jwt.MapClaims
		want   string
	}{
		{jwt.MapClaims{"userId": "a"}, "a"},
		{jwt.MapClaims{"_id": "b", "sub": "c"}, "b"},
		{jwt.MapClaims{"id": float64(42)}, "42"},
		{jwt.MapClaims{}, ""},
	}
	for _, tt := range tests {
		if got := userID(tt.claims); got != tt.want {
			t.Errorf("userID(%v) = %q, want %q", tt.claims, got, tt.want)
		}
	}
}

func TestTokenFromHeader(t *testing.T) {
	cases := map[string]string{
		"Bearer abc.def.ghi": "abc.def.ghi",
		"abc.def.ghi":        "abc.def.ghi",
		"  ":                 "",
		"":                   "",
	}
	for in, want := range cases {
		if got := TokenFromHeader(in); got != want {
			t.Errorf("TokenFromHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: "u"})
	id, ok := FromContext(ctx)
	if !ok || id.UserID != "u" {
		t.Fatalf("FromContext = %+v, %v", id, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Error("empty context should carry no identity")
	}
}
