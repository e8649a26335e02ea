package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

// Runs against a live database when POSTGRES_TEST_DSN is set.
func TestStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	suffix := time.Now().Format("150405.000000000")
	u1, u2 := "pg-u1-"+suffix, "pg-u2-"+suffix
	if _, err := s.SaveUser(ctx, models.User{ID: u2, Email: u2 + "@example.com", FirstName: "Two"}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	m, err := s.CreateMessage(ctx, models.Message{
		SenderID: u1, RecipientID: u2, Kind: models.KindText, Content: "hello", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cps, err := s.FindRecentCounterparts(ctx, u1)
	if err != nil || len(cps) != 1 || cps[0].UserID != u2 {
		t.Fatalf("counterparts = %+v, %v", cps, err)
	}
	people, err := s.GetParticipants(ctx, u1, u2)
	if err != nil || people[u2].FirstName != "Two" {
		t.Fatalf("participants = %+v, %v", people, err)
	}

	blocked, err := s.ToggleBlock(ctx, u2, u1)
	if err != nil || !blocked {
		t.Fatalf("block = %v, %v", blocked, err)
	}

	ok, err := s.DeleteMessageByID(ctx, m.ID)
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	ok, _ = s.DeleteMessageByID(ctx, m.ID)
	if ok {
		t.Fatalf("second delete reported found")
	}

	// Two provisioned users without emails must not collide.
	for _, id := range []string{u1, "pg-u3-" + suffix} {
		if _, err := s.EnsureUser(ctx, models.User{ID: id}); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
	}
	kept, err := s.EnsureUser(ctx, models.User{ID: u2, Email: "other@example.com"})
	if err != nil || kept.Email != u2+"@example.com" || len(kept.BlockedUsers) != 1 {
		t.Fatalf("ensure existing = %+v, %v", kept, err)
	}

	for _, id := range []string{u1, u2, "pg-u3-" + suffix} {
		if err := s.DeleteUser(ctx, id); err != nil {
			t.Fatalf("cleanup user %s: %v", id, err)
		}
	}
}
