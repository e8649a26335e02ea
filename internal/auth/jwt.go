package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are issued by the login service alongside the standard registered claims.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared key.
type Verifier struct {
	key []byte
}

func NewVerifier(key string) *Verifier {
	return &Verifier{key: []byte(key)}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	return claims, nil
}

// TokenFromRequest looks for a token in the "token" cookie, then a Bearer
// Authorization header, then the "token" query parameter.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// SocketIdentity resolves a websocket user from a verified token. When allowQuery is
// set, requests without a token fall back to the userId query parameter.
func SocketIdentity(v *Verifier, allowQuery bool) func(r *http.Request) string {
	return func(r *http.Request) string {
		if v != nil {
			if token := TokenFromRequest(r); token != "" {
				claims, err := v.Verify(token)
				if err != nil {
					return ""
				}
				return claims.UserID
			}
		}
		if allowQuery {
			return r.URL.Query().Get("userId")
		}
		return ""
	}
}

type ctxKey struct{}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}
