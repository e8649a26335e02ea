package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Locator resolves a user to their live connection.
type Locator interface {
	Lookup(userID string) (presence.Handle, bool)
}

// Service routes messages, keeps contact lists in sync and coordinates deletes.
// Every operation persists first, then pushes, then resyncs contact lists.
type Service struct {
	store    storage.Gateway
	presence Locator
	now      func() time.Time
	log      *slog.Logger
}

func NewService(store storage.Gateway, locator Locator) *Service {
	return &Service{
		store:    store,
		presence: locator,
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default().With("component", "chat"),
	}
}

// SendRequest is an inbound message. Any client timestamp is ignored.
type SendRequest struct {
	SenderID    string             `json:"sender"`
	RecipientID string             `json:"recipient"`
	Content     string             `json:"content"`
	Kind        models.MessageKind `json:"messageType"`
	Language    string             `json:"language,omitempty"`
}

func (r SendRequest) validate() error {
	switch {
	case r.SenderID == "" || r.RecipientID == "":
		return fmt.Errorf("%w: sender and recipient are required", ErrInvalidMessage)
	case r.SenderID == r.RecipientID:
		return fmt.Errorf("%w: sender and recipient must differ", ErrInvalidMessage)
	case !r.Kind.Valid():
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, r.Kind)
	case strings.TrimSpace(r.Content) == "":
		return fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	return nil
}

// Send stores a message, delivers it to both parties and refreshes their contact lists.
func (s *Service) Send(ctx context.Context, req SendRequest) (*models.PopulatedMessage, error) {
	if req.Kind == "" {
		req.Kind = models.KindText
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	msg := models.Message{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Kind:        req.Kind,
		Content:     req.Content,
		CreatedAt:   s.now(),
	}
	if req.Kind == models.KindCode {
		msg.Language = req.Language
	}

	created, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		s.log.Error("persist message", "sender", req.SenderID, "recipient", req.RecipientID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	people, err := s.store.GetParticipants(ctx, created.SenderID, created.RecipientID)
	if err != nil {
		s.log.Error("load participants", "message_id", created.ID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	populated := models.Populate(created, people)

	s.emit(created.SenderID, EventReceiveMessage, populated)
	s.emit(created.RecipientID, EventReceiveMessage, populated)

	if err := s.SyncContacts(ctx, created.SenderID, created.RecipientID); err != nil {
		return &populated, err
	}
	return &populated, nil
}

// ContactList computes userID's DM list, most recent counterpart first.
// Counterparts without a user record are omitted.
func (s *Service) ContactList(ctx context.Context, userID string) ([]models.ContactEntry, error) {
	cps, err := s.store.FindRecentCounterparts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	ids := make([]string, 0, len(cps))
	for _, c := range cps {
		ids = append(ids, c.UserID)
	}
	people, err := s.store.GetParticipants(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	entries := make([]models.ContactEntry, 0, len(cps))
	for _, c := range cps {
		p, ok := people[c.UserID]
		if !ok {
			continue
		}
		entries = append(entries, models.ContactEntry{
			ID:              p.ID,
			FirstName:       p.FirstName,
			LastName:        p.LastName,
			Email:           p.Email,
			Image:           p.Image,
			LastMessageTime: c.LastMessageTime,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].LastMessageTime.Equal(entries[j].LastMessageTime) {
			return entries[i].LastMessageTime.After(entries[j].LastMessageTime)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// SyncContacts recomputes and pushes dmListUpdate to each listed user that is online.
func (s *Service) SyncContacts(ctx context.Context, userIDs ...string) error {
	var online []string
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := s.presence.Lookup(id); ok {
			online = append(online, id)
		}
	}
	if len(online) == 0 {
		return nil
	}

	lists := make([][]models.ContactEntry, len(online))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range online {
		i, id := i, id
		g.Go(func() error {
			list, err := s.ContactList(gctx, id)
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("sync contact lists", "users", online, "err", err)
		return err
	}
	for i, id := range online {
		s.emit(id, EventDMListUpdate, lists[i])
	}
	return nil
}

// DeleteRequest identifies a message and the parties to notify.
type DeleteRequest struct {
	MessageID   string `json:"messageId"`
	SenderID    string `json:"sender"`
	RecipientID string `json:"recipient"`
}

// DeleteMessage removes a message and notifies both parties. Deleting a missing
// message reports false and emits nothing.
func (s *Service) DeleteMessage(ctx context.Context, req DeleteRequest) (bool, error) {
	if req.MessageID == "" {
		return false, fmt.Errorf("%w: message id is required", ErrInvalidMessage)
	}
	found, err := s.store.DeleteMessageByID(ctx, req.MessageID)
	if err != nil {
		s.log.Error("delete message", "message_id", req.MessageID, "err", err)
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !found {
		return false, nil
	}

	payload := MessageDeleted{MessageID: req.MessageID}
	s.emit(req.SenderID, EventMessageDeleted, payload)
	if req.RecipientID != req.SenderID {
		s.emit(req.RecipientID, EventMessageDeleted, payload)
	}

	if err := s.SyncContacts(ctx, req.SenderID, req.RecipientID); err != nil {
		return true, err
	}
	return true, nil
}

// DeleteAs deletes messageID on behalf of requesterID, who must be one of its parties.
// The parties notified are taken from the stored message.
func (s *Service) DeleteAs(ctx context.Context, requesterID, messageID string) (bool, error) {
	if requesterID == "" || messageID == "" {
		return false, fmt.Errorf("%w: requester and message id are required", ErrInvalidMessage)
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if requesterID != msg.SenderID && requesterID != msg.RecipientID {
		return false, ErrNotParticipant
	}
	return s.DeleteMessage(ctx, DeleteRequest{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
	})
}

// PopulateAll attaches display fields to each message.
func (s *Service) PopulateAll(ctx context.Context, msgs []models.Message) ([]models.PopulatedMessage, error) {
	ids := make([]string, 0, 2*len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.RecipientID)
	}
	people, err := s.store.GetParticipants(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	out := make([]models.PopulatedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.Populate(m, people))
	}
	return out, nil
}

func (s *Service) emit(userID, event string, data any) {
	h, ok := s.presence.Lookup(userID)
	if !ok {
		return
	}
	if err := h.Emit(event, data); err != nil {
		s.log.Warn("emit failed", "user_id", userID, "event", event, "err", err)
	}
}
