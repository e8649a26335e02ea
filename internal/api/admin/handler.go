package admin

import (
	"errors"
	"net/http"

	"github.com/Vasu1712/scenyx-chat/internal/api"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/logging"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/gorilla/mux"
)

const recentUserCount = 5

// SessionCloser ends a user's live session.
type SessionCloser interface {
	Disconnect(userID string) bool
}

// AdminHandler holds the dependencies for the moderation endpoints.
// Every route is expected to sit behind RequireAuth and RequireAdmin.
type AdminHandler struct {
	Store    storage.Store
	Chat     *chat.Service
	Presence *presence.Registry
	Sessions SessionCloser // optional
}

type roleCount struct {
	Role  models.Role `json:"_id"`
	Count int64       `json:"count"`
}

// DashboardStats handles GET /dashboard-stats.
// It returns user and message totals, the newest users, a per-role breakdown
// and the number of users currently connected.
func (h *AdminHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	totalUsers, err := h.Store.CountUsers(ctx)
	if err != nil {
		log.Error("count users", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving dashboard statistics")
		return
	}
	totalMessages, err := h.Store.CountMessages(ctx)
	if err != nil {
		log.Error("count messages", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving dashboard statistics")
		return
	}
	recent, _, err := h.Store.ListUsers(ctx, storage.Page{Number: 1, Limit: recentUserCount}, "")
	if err != nil {
		log.Error("recent users", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving dashboard statistics")
		return
	}
	byRole, err := h.Store.CountUsersByRole(ctx)
	if err != nil {
		log.Error("users by role", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving dashboard statistics")
		return
	}

	// Fixed role order keeps the response stable.
	roles := make([]roleCount, 0, len(byRole))
	for _, role := range []models.Role{models.RoleAdmin, models.RoleModerator, models.RoleUser} {
		if n, ok := byRole[role]; ok {
			roles = append(roles, roleCount{Role: role, Count: n})
		}
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]any{
			"totalUsers":    totalUsers,
			"totalMessages": totalMessages,
			"recentUsers":   recent,
			"usersByRole":   roles,
			"onlineUsers":   h.Presence.Len(),
		},
	})
}

// ListUsers handles GET /users?page=&limit=&search=.
// search matches email, first name and last name case-insensitively.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := api.QueryInt(r, "page", 1)
	limit := api.QueryInt(r, "limit", 10)
	search := r.URL.Query().Get("search")

	users, total, err := h.Store.ListUsers(r.Context(), storage.Page{Number: page, Limit: limit}, search)
	if err != nil {
		logging.FromContext(r.Context()).Error("list users", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving users")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"users":      users,
		"pagination": api.NewPagination(total, page, limit),
	})
}

// UpdateUserRole handles PUT /users/update-role with {"userId", "role"}.
// An admin cannot change their own role away from admin.
func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string      `json:"userId"`
		Role   models.Role `json:"role"`
	}
	if err := api.DecodeJSON(w, r, &req); err != nil || req.UserID == "" {
		api.WriteError(w, http.StatusBadRequest, "userId and role are required")
		return
	}
	if !req.Role.Valid() {
		api.WriteError(w, http.StatusBadRequest, "Invalid role specified")
		return
	}
	if req.UserID == api.CallerID(r) && req.Role != models.RoleAdmin {
		api.WriteError(w, http.StatusBadRequest, "You cannot demote yourself from admin role")
		return
	}

	updated, err := h.Store.UpdateUserRole(r.Context(), req.UserID, req.Role)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("update role", "user_id", req.UserID, "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error updating user role")
		return
	}
	logging.FromContext(r.Context()).Info("role updated", "user_id", updated.ID, "role", updated.Role, "by", api.CallerID(r))
	api.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": updated})
}

// DeleteUser handles DELETE /users/{userId}. Admins cannot delete themselves.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if userID == api.CallerID(r) {
		api.WriteError(w, http.StatusBadRequest, "You cannot delete your own admin account")
		return
	}

	err := h.Store.DeleteUser(r.Context(), userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "User not found")
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("delete user", "user_id", userID, "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error deleting user")
		return
	}
	online := false
	if h.Sessions != nil {
		online = h.Sessions.Disconnect(userID)
	}
	logging.FromContext(r.Context()).Info("user deleted", "user_id", userID, "was_online", online, "by", api.CallerID(r))
	api.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User deleted successfully"})
}

// ListMessages handles GET /messages?page=&limit=, newest first with both parties populated.
func (h *AdminHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	page := api.QueryInt(r, "page", 1)
	limit := api.QueryInt(r, "limit", 20)

	msgs, total, err := h.Store.ListRecentMessages(r.Context(), storage.Page{Number: page, Limit: limit})
	if err != nil {
		logging.FromContext(r.Context()).Error("list messages", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving messages")
		return
	}
	populated, err := h.Chat.PopulateAll(r.Context(), msgs)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving messages")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"messages":   populated,
		"pagination": api.NewPagination(total, page, limit),
	})
}

// DeleteMessage handles DELETE /messages/{messageId}.
// Both parties receive messageDeleted and a refreshed DM list if they are online.
func (h *AdminHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["messageId"]

	msg, err := h.Store.GetMessage(r.Context(), messageID)
	if errors.Is(err, storage.ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("load message", "message_id", messageID, "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error deleting message")
		return
	}

	found, err := h.Chat.DeleteMessage(r.Context(), chat.DeleteRequest{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
	})
	switch {
	case err != nil && !found:
		logging.FromContext(r.Context()).Error("delete message", "message_id", messageID, "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Error deleting message")
		return
	case !found:
		api.WriteError(w, http.StatusNotFound, "Message not found")
		return
	}
	logging.FromContext(r.Context()).Info("message deleted by admin", "message_id", messageID, "by", api.CallerID(r))
	api.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Message deleted successfully"})
}
