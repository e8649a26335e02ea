package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/google/uuid"
)

// Store keeps users and messages in process memory. Messages are held in insertion order.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	byID     map[string]int // messageID -> index in messages
	users    map[string]models.User
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		byID:  make(map[string]int),
		users: make(map[string]models.User),
	}
}

func (s *Store) CreateMessage(_ context.Context, m models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.byID[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return models.Message{}, storage.ErrNotFound
	}
	return s.messages[i], nil
}

func (s *Store) DeleteMessageByID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	delete(s.byID, id)
	// Reindex the tail
	for j := i; j < len(s.messages); j++ {
		s.byID[s.messages[j].ID] = j
	}
	return true, nil
}

func (s *Store) FindRecentCounterparts(_ context.Context, userID string) ([]models.Counterpart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]time.Time)
	for _, m := range s.messages {
		var other string
		switch userID {
		case m.SenderID:
			other = m.RecipientID
		case m.RecipientID:
			other = m.SenderID
		default:
			continue
		}
		if t, ok := latest[other]; !ok || m.CreatedAt.After(t) {
			latest[other] = m.CreatedAt
		}
	}
	result := make([]models.Counterpart, 0, len(latest))
	for id, t := range latest {
		result = append(result, models.Counterpart{UserID: id, LastMessageTime: t})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastMessageTime.Equal(result[j].LastMessageTime) {
			return result[i].LastMessageTime.After(result[j].LastMessageTime)
		}
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

func (s *Store) GetParticipants(_ context.Context, ids ...string) (map[string]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Participant, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.Participant()
		}
	}
	return out, nil
}

func (s *Store) SaveUser(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.BlockedUsers = append([]string(nil), u.BlockedUsers...)
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) EnsureUser(_ context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, storage.ErrMissingUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.users[u.ID]; ok {
		cur.BlockedUsers = append([]string(nil), cur.BlockedUsers...)
		return cur, nil
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.BlockedUsers = append([]string(nil), u.BlockedUsers...)
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	u.BlockedUsers = append([]string(nil), u.BlockedUsers...)
	return u, nil
}

func (s *Store) ListConversation(_ context.Context, a, b string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Message
	for _, m := range s.messages {
		if between(m, a, b) {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) SearchMessages(_ context.Context, userID, counterpartID, query string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if between(m, userID, counterpartID) && storage.MatchesMessage(m, query) {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ToggleBlock(_ context.Context, userID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if u.HasBlocked(targetID) {
		kept := make([]string, 0, len(u.BlockedUsers))
		for _, id := range u.BlockedUsers {
			if id != targetID {
				kept = append(kept, id)
			}
		}
		u.BlockedUsers = kept
		s.users[userID] = u
		return false, nil
	}
	u.BlockedUsers = append(append([]string(nil), u.BlockedUsers...), targetID)
	s.users[userID] = u
	return true, nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) CountMessages(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages)), nil
}

func (s *Store) CountUsersByRole(_ context.Context) (map[models.Role]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Role]int64)
	for _, u := range s.users {
		out[u.Role]++
	}
	return out, nil
}

func (s *Store) ListUsers(_ context.Context, page storage.Page, search string) ([]models.User, int64, error) {
	s.mu.RLock()
	var matched []models.User
	for _, u := range s.users {
		if storage.MatchesUser(u, search) {
			matched = append(matched, u)
		}
	}
	s.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return paginate(matched, page), int64(len(matched)), nil
}

func (s *Store) UpdateUserRole(_ context.Context, id string, role models.Role) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	u.Role = role
	s.users[id] = u
	return u, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) ListRecentMessages(_ context.Context, page storage.Page) ([]models.Message, int64, error) {
	s.mu.RLock()
	recent := make([]models.Message, 0, len(s.messages))
	for i := len(s.messages) - 1; i >= 0; i-- {
		recent = append(recent, s.messages[i])
	}
	s.mu.RUnlock()
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	return paginate(recent, page), int64(len(recent)), nil
}

func (s *Store) Close() error { return nil }

func between(m models.Message, a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

func paginate[T any](items []T, page storage.Page) []T {
	if page.Limit <= 0 {
		return items
	}
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
