package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func sign(t *testing.T, key string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	v := NewVerifier("secret")
	good := sign(t, "secret", Claims{UserID: "u1", Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	claims, err := v.Verify(good)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}

	expired := sign(t, "secret", Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	for name, token := range map[string]string{
		"wrong key": sign(t, "other", Claims{UserID: "u1"}),
		"expired":   expired,
		"no user":   sign(t, "secret", Claims{Email: "x@example.com"}),
		"garbage":   "not.a.token",
	} {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
	if _, err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty: err = %v", err)
	}
}

func TestTokenFromRequestPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/socket?token=q", nil)
	if got := TokenFromRequest(r); got != "q" {
		t.Fatalf("query token = %q", got)
	}
	r.Header.Set("Authorization", "Bearer h")
	if got := TokenFromRequest(r); got != "h" {
		t.Fatalf("header token = %q", got)
	}
	r.AddCookie(&http.Cookie{Name: "token", Value: "c"})
	if got := TokenFromRequest(r); got != "c" {
		t.Fatalf("cookie token = %q", got)
	}
}

func TestSocketIdentity(t *testing.T) {
	v := NewVerifier("secret")
	token := sign(t, "secret", Claims{UserID: "u1"})

	withToken := httptest.NewRequest(http.MethodGet, "/socket?userId=u9&token="+token, nil)
	if got := SocketIdentity(v, true)(withToken); got != "u1" {
		t.Fatalf("token identity = %q, want u1", got)
	}

	queryOnly := httptest.NewRequest(http.MethodGet, "/socket?userId=u9", nil)
	if got := SocketIdentity(v, true)(queryOnly); got != "u9" {
		t.Fatalf("fallback identity = %q, want u9", got)
	}
	if got := SocketIdentity(v, false)(queryOnly); got != "" {
		t.Fatalf("strict identity = %q, want anonymous", got)
	}

	bad := httptest.NewRequest(http.MethodGet, "/socket?userId=u9&token=bad", nil)
	if got := SocketIdentity(v, true)(bad); got != "" {
		t.Fatalf("bad token identity = %q, want anonymous", got)
	}
}
