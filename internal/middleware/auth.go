package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/logging"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
)

// RequireAuth rejects requests without a valid token and stores the claims in the context.
func RequireAuth(v *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.Verify(auth.TokenFromRequest(r))
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				deny(w, http.StatusUnauthorized, "You are not authenticated")
				return
			case err != nil:
				http.SetCookie(w, &http.Cookie{Name: "token", Value: "", Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})
				deny(w, http.StatusForbidden, "Token is not valid")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// UserGetter loads a user by id.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// RequireAdmin checks the caller's stored role, not the role in the token.
func RequireAdmin(users UserGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFrom(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "You are not authenticated")
				return
			}
			u, err := users.GetUser(r.Context(), claims.UserID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				deny(w, http.StatusNotFound, "User not found.")
				return
			case err != nil:
				deny(w, http.StatusInternalServerError, "Error verifying user")
				return
			case u.Role != models.RoleAdmin:
				deny(w, http.StatusForbidden, "Access denied. Admin privileges required.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserProvisioner creates a user record the first time an id is seen.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, u models.User) (models.User, error)
}

// ProvisionUser stores a minimal record for callers authenticated by RequireAuth.
// Existing records are left untouched.
func ProvisionUser(users UserProvisioner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := auth.ClaimsFrom(r.Context()); ok {
				_, err := users.EnsureUser(r.Context(), models.User{ID: claims.UserID, Email: claims.Email})
				if err != nil {
					logging.FromContext(r.Context()).Error("provision user", "user_id", claims.UserID, "err", err)
					deny(w, http.StatusInternalServerError, "Error verifying user")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
