package models

import "time"

// MessageKind is the payload kind of a direct message.
type MessageKind string

const (
	KindText MessageKind = "text"
	KindCode MessageKind = "code"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	return k == KindText || k == KindCode
}

// Message is a stored direct message. Messages are immutable once created.
type Message struct {
	ID          string      `json:"_id"`
	SenderID    string      `json:"sender"`
	RecipientID string      `json:"recipient"`
	Kind        MessageKind `json:"messageType"`
	Content     string      `json:"content"`
	Language    string      `json:"language,omitempty"` // code only
	CreatedAt   time.Time   `json:"timeStamp"`
}

// Participant holds the display fields relayed with a message or contact entry.
type Participant struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Image     string `json:"image,omitempty"`
}

// PopulatedMessage is a message with both parties' display fields attached.
type PopulatedMessage struct {
	ID        string      `json:"_id"`
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Kind      MessageKind `json:"messageType"`
	Content   string      `json:"content"`
	Language  string      `json:"language,omitempty"`
	CreatedAt time.Time   `json:"timeStamp"`
}

// Populate attaches display fields to m. Missing entries fall back to a bare id.
func Populate(m Message, people map[string]Participant) PopulatedMessage {
	sender, ok := people[m.SenderID]
	if !ok {
		sender = Participant{ID: m.SenderID}
	}
	recipient, ok := people[m.RecipientID]
	if !ok {
		recipient = Participant{ID: m.RecipientID}
	}
	return PopulatedMessage{
		ID:        m.ID,
		Sender:    sender,
		Recipient: recipient,
		Kind:      m.Kind,
		Content:   m.Content,
		Language:  m.Language,
		CreatedAt: m.CreatedAt,
	}
}

// Counterpart ties the other party of a conversation to its most recent message time.
type Counterpart struct {
	UserID          string
	LastMessageTime time.Time
}

// ContactEntry is one row of a user's DM list.
type ContactEntry struct {
	ID              string    `json:"_id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Email           string    `json:"email"`
	Image           string    `json:"image,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}
