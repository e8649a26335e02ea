package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const keyPrefix = "lastseen:"

// LastSeenStore records when users last went offline.
type LastSeenStore struct {
	client valkey.Client
	ttl    time.Duration
}

// NewLastSeenStore connects to addr. A zero ttl keeps entries forever; a positive ttl
// is rounded up to whole seconds.
func NewLastSeenStore(addr string, ttl time.Duration) (*LastSeenStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect valkey %s: %w", addr, err)
	}
	if rem := ttl % time.Second; ttl > 0 && rem != 0 {
		ttl += time.Second - rem
	}
	return &LastSeenStore{client: client, ttl: ttl}, nil
}

// MarkOffline stores at as the last time userID was connected.
func (s *LastSeenStore) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	value := at.UTC().Format(time.RFC3339Nano)
	var cmd valkey.Completed
	if s.ttl > 0 {
		cmd = s.client.B().Set().Key(keyPrefix + userID).Value(value).ExSeconds(int64(s.ttl/time.Second)).Build()
	} else {
		cmd = s.client.B().Set().Key(keyPrefix + userID).Value(value).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("mark offline %s: %w", userID, err)
	}
	return nil
}

// LastSeen returns the recorded time and whether one exists.
func (s *LastSeenStore) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(keyPrefix+userID).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last seen %s: %w", userID, err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last seen %s: %w", userID, err)
	}
	return at, true, nil
}

func (s *LastSeenStore) Close() {
	s.client.Close()
}
