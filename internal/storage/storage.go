package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/Vasu1712/scenyx-chat/internal/models"
)

// ErrNotFound is returned when a message or user does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrMissingUserID is returned when a user is provisioned without an id.
var ErrMissingUserID = errors.New("storage: user id is required")

// Gateway is the persistence surface the realtime core depends on.
type Gateway interface {
	// CreateMessage stores m and returns it with its assigned id.
	CreateMessage(ctx context.Context, m models.Message) (models.Message, error)
	GetMessage(ctx context.Context, id string) (models.Message, error)
	// DeleteMessageByID reports false without error when nothing matched.
	DeleteMessageByID(ctx context.Context, id string) (bool, error)
	// FindRecentCounterparts returns every user that exchanged a message with userID,
	// most recent first.
	FindRecentCounterparts(ctx context.Context, userID string) ([]models.Counterpart, error)
	// GetParticipants returns display fields keyed by id. Unknown ids are omitted.
	GetParticipants(ctx context.Context, ids ...string) (map[string]models.Participant, error)
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// Archive covers history, search and moderation queries.
type Archive interface {
	SaveUser(ctx context.Context, u models.User) (models.User, error)
	// EnsureUser inserts u unless a user with its id exists and returns the stored user.
	// An existing record is never modified.
	EnsureUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	// ListConversation returns all messages between a and b, oldest first.
	ListConversation(ctx context.Context, a, b string) ([]models.Message, error)
	// SearchMessages matches query case-insensitively against content and message type
	// within the conversation of userID and counterpartID, newest first.
	SearchMessages(ctx context.Context, userID, counterpartID, query string) ([]models.Message, error)
	// ToggleBlock flips targetID in userID's block list and reports the resulting state.
	ToggleBlock(ctx context.Context, userID, targetID string) (bool, error)
	CountUsers(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
	CountUsersByRole(ctx context.Context) (map[models.Role]int64, error)
	// ListUsers returns users newest first, filtered by a case-insensitive search on
	// email, first and last name, together with the filtered total.
	ListUsers(ctx context.Context, page Page, search string) ([]models.User, int64, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) (models.User, error)
	DeleteUser(ctx context.Context, id string) error
	// ListRecentMessages returns messages newest first with the overall total.
	ListRecentMessages(ctx context.Context, page Page) ([]models.Message, int64, error)
}

// Store is a complete backend.
type Store interface {
	Gateway
	Archive
	Close() error
}

// MatchesMessage reports whether m matches a search query.
func MatchesMessage(m models.Message, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(m.Content), q) ||
		strings.Contains(strings.ToLower(string(m.Kind)), q)
}

// MatchesUser reports whether u matches an admin user search.
func MatchesUser(u models.User, search string) bool {
	if search == "" {
		return true
	}
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(u.Email), q) ||
		strings.Contains(strings.ToLower(u.FirstName), q) ||
		strings.Contains(strings.ToLower(u.LastName), q)
}
