package dms

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/middleware"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
)

const jwtKey = "test-key"

type stubHandle struct{ id string }

func (s stubHandle) ID() string             { return s.id }
func (s stubHandle) Emit(string, any) error { return nil }

type stubLastSeen map[string]time.Time

func (s stubLastSeen) LastSeen(_ context.Context, userID string) (time.Time, bool, error) {
	at, ok := s[userID]
	return at, ok, nil
}

type env struct {
	srv   *httptest.Server
	svc   *chat.Service
	store *memory.Store
	reg   *presence.Registry
}

func newEnv(t *testing.T, lastSeen LastSeenReader) *env {
	t.Helper()
	store := memory.NewStore()
	for _, id := range []string{"u1", "u2", "u3"} {
		store.SaveUser(context.Background(), models.User{ID: id, Email: id + "@example.com", FirstName: "First" + id})
	}
	reg := presence.NewRegistry()
	svc := chat.NewService(store, reg)
	h := &DMHandler{Chat: svc, Store: store, Presence: reg, LastSeen: lastSeen}

	r := mux.NewRouter()
	RegisterDMRoutes(r, h, middleware.RequireAuth(auth.NewVerifier(jwtKey)))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, svc: svc, store: store, reg: reg}
}

func (e *env) do(t *testing.T, method, path, userID string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, &buf)
	if userID != "" {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: userID}).SignedString([]byte(jwtKey))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]json.RawMessage{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRoutesRequireAuth(t *testing.T) {
	e := newEnv(t, nil)
	resp, _ := e.do(t, http.MethodGet, "/api/contact/get-dm-list", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGetDMList(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.svc.Send(ctx, chat.SendRequest{SenderID: "u1", RecipientID: "u2", Content: "a"})
	time.Sleep(time.Millisecond)
	e.svc.Send(ctx, chat.SendRequest{SenderID: "u3", RecipientID: "u1", Content: "b"})

	resp, body := e.do(t, http.MethodGet, "/api/contact/get-dm-list", "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var contacts []models.ContactEntry
	json.Unmarshal(body["contacts"], &contacts)
	if len(contacts) != 2 || contacts[0].ID != "u3" || contacts[1].FirstName != "Firstu2" {
		t.Fatalf("contacts = %+v", contacts)
	}
}

func TestGetMessagesAndSearch(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.svc.Send(ctx, chat.SendRequest{SenderID: "u1", RecipientID: "u2", Content: "Lunch?"})
	time.Sleep(time.Millisecond)
	e.svc.Send(ctx, chat.SendRequest{SenderID: "u2", RecipientID: "u1", Content: "sure, lunch at noon"})
	e.svc.Send(ctx, chat.SendRequest{SenderID: "u1", RecipientID: "u3", Content: "lunch too?"})

	resp, body := e.do(t, http.MethodPost, "/api/message/get-messages", "u1", map[string]string{"id": "u2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var conv []models.PopulatedMessage
	json.Unmarshal(body["chat"], &conv)
	if len(conv) != 2 || conv[0].Content != "Lunch?" || conv[1].Sender.ID != "u2" {
		t.Fatalf("chat = %+v", conv)
	}

	_, body = e.do(t, http.MethodPost, "/api/message/search", "u1", map[string]string{"chatId": "u2", "query": "LUNCH"})
	var found []models.PopulatedMessage
	json.Unmarshal(body["messages"], &found)
	if len(found) != 2 || found[0].Content != "sure, lunch at noon" {
		t.Fatalf("search = %+v", found)
	}

	resp, _ = e.do(t, http.MethodPost, "/api/message/search", "u1", map[string]string{"chatId": "u2"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing query status = %d", resp.StatusCode)
	}
}

func TestSearchContactsExcludesCaller(t *testing.T) {
	e := newEnv(t, nil)
	_, body := e.do(t, http.MethodPost, "/api/contact/search", "u1", map[string]string{"searchTerm": "example.com"})
	var contacts []models.Participant
	json.Unmarshal(body["contacts"], &contacts)
	if len(contacts) != 2 {
		t.Fatalf("contacts = %+v", contacts)
	}
	for _, c := range contacts {
		if c.ID == "u1" {
			t.Fatalf("caller returned in search")
		}
	}
}

func TestBlockUserToggles(t *testing.T) {
	e := newEnv(t, nil)
	_, body := e.do(t, http.MethodPost, "/api/contact/block-user/u2", "u1", nil)
	if string(body["blocked"]) != "true" {
		t.Fatalf("first toggle = %s", body["blocked"])
	}
	_, body = e.do(t, http.MethodPost, "/api/contact/block-user/u2", "u1", nil)
	if string(body["blocked"]) != "false" {
		t.Fatalf("second toggle = %s", body["blocked"])
	}
	resp, _ := e.do(t, http.MethodPost, "/api/contact/block-user/nobody", "u1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing target status = %d", resp.StatusCode)
	}
}

func TestPresence(t *testing.T) {
	seen := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	e := newEnv(t, stubLastSeen{"u3": seen})
	e.reg.Register("u2", stubHandle{"c2"})

	_, body := e.do(t, http.MethodGet, "/api/contact/presence/u2", "u1", nil)
	if string(body["online"]) != "true" {
		t.Fatalf("u2 online = %s", body["online"])
	}
	_, body = e.do(t, http.MethodGet, "/api/contact/presence/u3", "u1", nil)
	var at time.Time
	json.Unmarshal(body["lastSeen"], &at)
	if string(body["online"]) != "false" || !at.Equal(seen) {
		t.Fatalf("u3 presence = %s", body)
	}
}
