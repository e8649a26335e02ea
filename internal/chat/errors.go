package chat

import "errors"

var (
	// ErrInvalidMessage is returned for requests that fail validation. Socket callers drop them.
	ErrInvalidMessage = errors.New("chat: invalid message")
	// ErrPersistence indicates a storage failure inside a chat operation.
	ErrPersistence = errors.New("chat: persistence error")
	// ErrNotParticipant is returned when a user acts on a message they are not party to.
	ErrNotParticipant = errors.New("chat: not a participant")
)
