package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Image        string    `json:"image,omitempty"`
	Color        int       `json:"color"`
	Role         Role      `json:"role"`
	BlockedUsers []string  `json:"blockedUsers"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Participant returns the display fields of u.
func (u User) Participant() Participant {
	return Participant{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Image:     u.Image,
	}
}

// HasBlocked reports whether u has blocked userID.
func (u User) HasBlocked(userID string) bool {
	for _, id := range u.BlockedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
