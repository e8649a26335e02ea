package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/golang-jwt/jwt/v4"
)

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: userID}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(auth.NewVerifier("k"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := auth.ClaimsFrom(r.Context())
		w.Header().Set("X-User", claims.UserID)
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusForbidden},
		{"valid", "Bearer " + token(t, "u1"), http.StatusNoContent},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
		if tc.name == "valid" && w.Header().Get("X-User") != "u1" {
			t.Fatalf("claims not propagated")
		}
	}
}

func TestRequireAdminUsesStoredRole(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	store.SaveUser(ctx, models.User{ID: "admin", Email: "a@example.com", Role: models.RoleAdmin})
	store.SaveUser(ctx, models.User{ID: "user", Email: "u@example.com"})

	h := RequireAuth(auth.NewVerifier("k"))(RequireAdmin(store)(noContent))
	for id, want := range map[string]int{"admin": http.StatusNoContent, "user": http.StatusForbidden, "ghost": http.StatusNotFound} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "token", Value: token(t, id)})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != want {
			t.Fatalf("%s: status = %d, want %d", id, w.Code, want)
		}
	}
}

func TestProvisionUserCreatesOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	store.SaveUser(ctx, models.User{ID: "admin", Email: "a@example.com", Role: models.RoleAdmin})

	h := RequireAuth(auth.NewVerifier("k"))(ProvisionUser(store)(noContent))
	for _, id := range []string{"fresh", "fresh", "admin"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token(t, id))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusNoContent {
			t.Fatalf("%s: status = %d", id, w.Code)
		}
	}

	if n, _ := store.CountUsers(ctx); n != 2 {
		t.Fatalf("users = %d, want 2", n)
	}
	if u, _ := store.GetUser(ctx, "admin"); u.Role != models.RoleAdmin || u.Email != "a@example.com" {
		t.Fatalf("existing user changed: %+v", u)
	}
	if u, err := store.GetUser(ctx, "fresh"); err != nil || u.Role != models.RoleUser {
		t.Fatalf("fresh = %+v, %v", u, err)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(noContent)

	r := httptest.NewRequest(http.MethodOptions, "/api/x", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight = %d %v", w.Code, w.Header())
	}

	r = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	r.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for foreign origin")
	}
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRequestIDAndLog(t *testing.T) {
	var seen string
	h := RequestID(RequestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if seen != "req-1" || w.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("request id = %q, header %q", seen, w.Header().Get("X-Request-Id"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-Request-Id") == "" || w.Code != http.StatusTeapot {
		t.Fatalf("generated id missing or status lost: %d", w.Code)
	}
}
