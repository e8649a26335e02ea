package admin

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterAdminRoutes mounts the moderation routes under /api/admin behind mw.
func RegisterAdminRoutes(r *mux.Router, handler *AdminHandler, mw ...mux.MiddlewareFunc) {
	sub := r.PathPrefix("/api/admin").Subrouter()
	sub.Use(mw...)
	sub.HandleFunc("/dashboard-stats", handler.DashboardStats).Methods(http.MethodGet)
	sub.HandleFunc("/users", handler.ListUsers).Methods(http.MethodGet)
	sub.HandleFunc("/users/update-role", handler.UpdateUserRole).Methods(http.MethodPut)
	sub.HandleFunc("/users/{userId}", handler.DeleteUser).Methods(http.MethodDelete)
	sub.HandleFunc("/messages", handler.ListMessages).Methods(http.MethodGet)
	sub.HandleFunc("/messages/{messageId}", handler.DeleteMessage).Methods(http.MethodDelete)
}
