package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/gorilla/websocket"
)

// IdentityFunc extracts the user id from a handshake request. An empty result makes
// the connection anonymous.
type IdentityFunc func(r *http.Request) string

// QueryIdentity reads the userId handshake query parameter.
func QueryIdentity(r *http.Request) string {
	return r.URL.Query().Get("userId")
}

// UserProvisioner creates a user record the first time an id is seen.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, u models.User) (models.User, error)
}

type Options struct {
	Identify     IdentityFunc
	EventTimeout time.Duration
	SendBuffer   int
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
	// Users, when set, provisions identified users on connect.
	Users UserProvisioner
}

// Handler upgrades requests to websocket connections and dispatches their events.
type Handler struct {
	hub      *Hub
	chat     *chat.Service
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, svc *chat.Service, opts Options) *Handler {
	if opts.Identify == nil {
		opts.Identify = QueryIdentity
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:  hub,
		chat: svc,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(h.opts.Identify(r))
	if userID != "" && h.opts.Users != nil {
		if _, err := h.opts.Users.EnsureUser(r.Context(), models.User{ID: userID}); err != nil {
			slog.Warn("provision user", "user_id", userID, "err", err)
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		slog.Debug("websocket upgrade failed", "err", err)
		return
	}

	client := NewClient(userID, conn, h.opts.SendBuffer)
	client.Start()
	h.hub.Register(client)
	slog.Info("client connected", "user_id", userID, "client_id", client.ID(), "anonymous", userID == "")
	defer func() {
		h.hub.Unregister(client)
		client.Close(websocket.CloseNormalClosure, "session closed")
		slog.Info("client disconnected", "user_id", userID, "client_id", client.ID())
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Debug("websocket read ended", "client_id", client.ID(), "err", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("malformed frame", "client_id", client.ID(), "err", err)
			continue
		}
		h.dispatch(r.Context(), client, frame)
	}
}

func (h *Handler) dispatch(parent context.Context, client *Client, frame Frame) {
	ctx, cancel := context.WithTimeout(parent, h.opts.EventTimeout)
	defer cancel()

	switch frame.Event {
	case chat.EventSendMessage:
		h.handleSend(ctx, client, frame.Data)
	case chat.EventDeleteMessage:
		h.handleDelete(ctx, client, frame.Data)
	default:
		slog.Debug("unknown event", "client_id", client.ID(), "event", frame.Event)
	}
}

func (h *Handler) handleSend(ctx context.Context, client *Client, data json.RawMessage) {
	var req chat.SendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Debug("drop sendMessage", "client_id", client.ID(), "err", err)
		return
	}
	if client.UserID == "" || req.SenderID != client.UserID {
		slog.Debug("drop sendMessage from non-owner", "client_id", client.ID(), "user_id", client.UserID, "sender", req.SenderID)
		return
	}

	msg, err := h.chat.Send(ctx, req)
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		slog.Debug("drop invalid message", "user_id", client.UserID, "err", err)
	case err != nil:
		slog.Error("send message", "user_id", client.UserID, "err", err)
	default:
		slog.Debug("message routed", "message_id", msg.ID, "sender", msg.Sender.ID, "recipient", msg.Recipient.ID)
	}
}

func (h *Handler) handleDelete(ctx context.Context, client *Client, data json.RawMessage) {
	var req chat.DeleteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Debug("drop deleteMessage", "client_id", client.ID(), "err", err)
		return
	}
	if client.UserID == "" {
		slog.Debug("drop deleteMessage from anonymous client", "client_id", client.ID())
		return
	}

	found, err := h.chat.DeleteAs(ctx, client.UserID, req.MessageID)
	switch {
	case errors.Is(err, chat.ErrNotParticipant), errors.Is(err, chat.ErrInvalidMessage):
		slog.Debug("drop deleteMessage", "user_id", client.UserID, "message_id", req.MessageID, "err", err)
	case err != nil:
		slog.Error("delete message", "user_id", client.UserID, "message_id", req.MessageID, "err", err)
	case !found:
		slog.Debug("delete of missing message", "user_id", client.UserID, "message_id", req.MessageID)
	}
}
