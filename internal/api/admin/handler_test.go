package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/middleware"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
)

const jwtKey = "admin-test-key"

type captureHandle struct {
	id     string
	mu     sync.Mutex
	events []string
}

func (c *captureHandle) ID() string { return c.id }

func (c *captureHandle) Emit(event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

type env struct {
	srv   *httptest.Server
	store *memory.Store
	reg   *presence.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SaveUser(ctx, models.User{ID: "root", Email: "root@example.com", Role: models.RoleAdmin, CreatedAt: base})
	for i, id := range []string{"u1", "u2", "u3"} {
		store.SaveUser(ctx, models.User{ID: id, Email: id + "@example.com", FirstName: id, CreatedAt: base.Add(time.Duration(i+1) * time.Hour)})
	}
	reg := presence.NewRegistry()
	h := &AdminHandler{Store: store, Chat: chat.NewService(store, reg), Presence: reg, Sessions: ws.NewHub(reg, nil)}

	r := mux.NewRouter()
	RegisterAdminRoutes(r, h, middleware.RequireAuth(auth.NewVerifier(jwtKey)), middleware.RequireAdmin(store))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: store, reg: reg}
}

func (e *env) do(t *testing.T, method, path, userID string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, &buf)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: userID}).SignedString([]byte(jwtKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]json.RawMessage{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestNonAdminRejected(t *testing.T) {
	e := newEnv(t)
	if code, _ := e.do(t, http.MethodGet, "/api/admin/users", "u1", nil); code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}
}

func TestDashboardStats(t *testing.T) {
	e := newEnv(t)
	e.store.CreateMessage(context.Background(), models.Message{SenderID: "u1", RecipientID: "u2", Kind: models.KindText, Content: "x"})
	e.reg.Register("u1", &captureHandle{id: "c1"})

	code, body := e.do(t, http.MethodGet, "/api/admin/dashboard-stats", "root", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var stats struct {
		TotalUsers    int64         `json:"totalUsers"`
		TotalMessages int64         `json:"totalMessages"`
		RecentUsers   []models.User `json:"recentUsers"`
		UsersByRole   []struct {
			Role  string `json:"_id"`
			Count int64  `json:"count"`
		} `json:"usersByRole"`
		OnlineUsers int `json:"onlineUsers"`
	}
	if err := json.Unmarshal(body["stats"], &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalUsers != 4 || stats.TotalMessages != 1 || stats.OnlineUsers != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.RecentUsers) != 4 || stats.RecentUsers[0].ID != "u3" {
		t.Fatalf("recent users = %+v", stats.RecentUsers)
	}
	if len(stats.UsersByRole) != 2 || stats.UsersByRole[0].Role != "admin" || stats.UsersByRole[1].Count != 3 {
		t.Fatalf("users by role = %+v", stats.UsersByRole)
	}
}

func TestListUsersPaginates(t *testing.T) {
	e := newEnv(t)
	_, body := e.do(t, http.MethodGet, "/api/admin/users?page=2&limit=3", "root", nil)
	var users []models.User
	json.Unmarshal(body["users"], &users)
	var p struct {
		Total int64 `json:"total"`
		Pages int64 `json:"pages"`
	}
	json.Unmarshal(body["pagination"], &p)
	if len(users) != 1 || users[0].ID != "root" || p.Total != 4 || p.Pages != 2 {
		t.Fatalf("users = %+v pagination = %+v", users, p)
	}
}

func TestUpdateUserRole(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		body map[string]string
		want int
	}{
		{map[string]string{"userId": "u1", "role": "superuser"}, http.StatusBadRequest},
		{map[string]string{"userId": "root", "role": "user"}, http.StatusBadRequest},
		{map[string]string{"userId": "ghost", "role": "moderator"}, http.StatusNotFound},
		{map[string]string{"userId": "u1", "role": "moderator"}, http.StatusOK},
	}
	for _, tc := range cases {
		if code, _ := e.do(t, http.MethodPut, "/api/admin/users/update-role", "root", tc.body); code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.body, code, tc.want)
		}
	}
	u, _ := e.store.GetUser(context.Background(), "u1")
	if u.Role != models.RoleModerator {
		t.Fatalf("role = %s, want moderator", u.Role)
	}
}

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	if code, _ := e.do(t, http.MethodDelete, "/api/admin/users/root", "root", nil); code != http.StatusBadRequest {
		t.Fatalf("self delete status = %d", code)
	}
	e.reg.Register("u2", &captureHandle{id: "c2"})
	if code, _ := e.do(t, http.MethodDelete, "/api/admin/users/u2", "root", nil); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	if _, ok := e.reg.Lookup("u2"); ok {
		t.Fatalf("deleted user still online")
	}
	if code, _ := e.do(t, http.MethodDelete, "/api/admin/users/u2", "root", nil); code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d", code)
	}
}

func TestDeleteMessageNotifiesParties(t *testing.T) {
	e := newEnv(t)
	m, _ := e.store.CreateMessage(context.Background(), models.Message{
		SenderID: "u1", RecipientID: "u2", Kind: models.KindText, Content: "bad words", CreatedAt: time.Now().UTC(),
	})
	c2 := &captureHandle{id: "c2"}
	e.reg.Register("u2", c2)

	code, _ := e.do(t, http.MethodGet, "/api/admin/messages", "root", nil)
	if code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if code, _ := e.do(t, http.MethodDelete, "/api/admin/messages/"+m.ID, "root", nil); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	c2.mu.Lock()
	events := append([]string(nil), c2.events...)
	c2.mu.Unlock()
	if len(events) != 2 || events[0] != chat.EventMessageDeleted || events[1] != chat.EventDMListUpdate {
		t.Fatalf("u2 events = %v", events)
	}
	if code, _ := e.do(t, http.MethodDelete, "/api/admin/messages/"+m.ID, "root", nil); code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d", code)
	}
}
