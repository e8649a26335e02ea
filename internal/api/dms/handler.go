package dms

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/api"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/logging"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/gorilla/mux"
)

const contactSearchLimit = 50

// LastSeenReader reports when a user was last connected.
type LastSeenReader interface {
	LastSeen(ctx context.Context, userID string) (time.Time, bool, error)
}

// DMHandler serves conversation history, contact lists and presence lookups.
type DMHandler struct {
	Chat     *chat.Service
	Store    storage.Archive
	Presence *presence.Registry
	LastSeen LastSeenReader // optional
}

// GetDMList returns the caller's contacts, most recent conversation first.
func (h *DMHandler) GetDMList(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.Chat.ContactList(r.Context(), api.CallerID(r))
	if err != nil {
		logging.FromContext(r.Context()).Error("dm list", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

// SearchContacts finds other users by name or email.
func (h *DMHandler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := api.DecodeJSON(w, r, &req); err != nil || req.SearchTerm == "" {
		api.WriteError(w, http.StatusBadRequest, "searchTerm is required")
		return
	}
	users, _, err := h.Store.ListUsers(r.Context(), storage.Page{Number: 1, Limit: contactSearchLimit + 1}, req.SearchTerm)
	if err != nil {
		logging.FromContext(r.Context()).Error("search contacts", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	caller := api.CallerID(r)
	contacts := make([]models.Participant, 0, len(users))
	for _, u := range users {
		if u.ID != caller && len(contacts) < contactSearchLimit {
			contacts = append(contacts, u.Participant())
		}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

// BlockUser toggles the target in the caller's block list.
func (h *DMHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["userId"]
	caller := api.CallerID(r)
	if target == "" || target == caller {
		api.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if _, err := h.Store.GetUser(r.Context(), target); errors.Is(err, storage.ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, "User to block not found")
		return
	}
	blocked, err := h.Store.ToggleBlock(r.Context(), caller, target)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "Current user not found")
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("toggle block", "target", target, "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	msg := "User unblocked successfully"
	if blocked {
		msg = "User blocked successfully"
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"message": msg, "blocked": blocked})
}

// GetPresence reports whether a user is online and when they were last seen.
func (h *DMHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	_, online := h.Presence.Lookup(userID)
	resp := map[string]any{"userId": userID, "online": online}
	if !online && h.LastSeen != nil {
		at, ok, err := h.LastSeen.LastSeen(r.Context(), userID)
		if err != nil {
			logging.FromContext(r.Context()).Warn("last seen lookup", "user_id", userID, "err", err)
		} else if ok {
			resp["lastSeen"] = at
		}
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// GetMessages returns the conversation between the caller and body.id, oldest first.
func (h *DMHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := api.DecodeJSON(w, r, &req); err != nil || req.ID == "" {
		api.WriteError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	msgs, err := h.Store.ListConversation(r.Context(), api.CallerID(r), req.ID)
	if err != nil {
		logging.FromContext(r.Context()).Error("list conversation", "with", req.ID, "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	populated, err := h.Chat.PopulateAll(r.Context(), msgs)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"chat": populated})
}

// SearchMessages matches content or message type within one conversation, newest first.
func (h *DMHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chatId"`
		Query  string `json:"query"`
	}
	if err := api.DecodeJSON(w, r, &req); err != nil || req.ChatID == "" || req.Query == "" {
		api.WriteError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	msgs, err := h.Store.SearchMessages(r.Context(), api.CallerID(r), req.ChatID, req.Query)
	if err != nil {
		logging.FromContext(r.Context()).Error("search messages", "err", err)
		api.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	populated, err := h.Chat.PopulateAll(r.Context(), msgs)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"messages": populated})
}
