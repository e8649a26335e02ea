package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/lib/pq" // PostgreSQL driver
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	image         TEXT NOT NULL DEFAULT '',
	color         INTEGER NOT NULL DEFAULT 0,
	role          TEXT NOT NULL DEFAULT 'user',
	blocked_users TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (email) WHERE email <> '';
CREATE TABLE IF NOT EXISTS messages (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	sender_id    TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	message_type TEXT NOT NULL,
	content      TEXT NOT NULL,
	language     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	CHECK (sender_id <> recipient_id)
);
CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id, created_at DESC);
CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient_id, created_at DESC);
`

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore opens the database, verifies connectivity and applies the schema.
func NewStore(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("connected to postgres")
	return &Store{db: db}, nil
}

const messageColumns = `id, sender_id, recipient_id, message_type, content, language, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Kind, &m.Content, &m.Language, &m.CreatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, m models.Message) (models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, recipient_id, message_type, content, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + messageColumns
	row := s.db.QueryRowContext(ctx, query, m.SenderID, m.RecipientID, m.Kind, m.Content, m.Language, m.CreatedAt)
	created, err := scanMessage(row)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return created, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id::text = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

func (s *Store) DeleteMessageByID(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id::text = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) FindRecentCounterparts(ctx context.Context, userID string) ([]models.Counterpart, error) {
	query := `
		SELECT counterpart, MAX(created_at) AS last_message_time
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS counterpart, created_at
			FROM messages
			WHERE sender_id = $1 OR recipient_id = $1
		) t
		GROUP BY counterpart
		ORDER BY last_message_time DESC, counterpart ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("counterparts for %s: %w", userID, err)
	}
	defer rows.Close()

	var result []models.Counterpart
	for rows.Next() {
		var c models.Counterpart
		if err := rows.Scan(&c.UserID, &c.LastMessageTime); err != nil {
			return nil, err
		}
		c.LastMessageTime = c.LastMessageTime.UTC()
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) GetParticipants(ctx context.Context, ids ...string) (map[string]models.Participant, error) {
	out := make(map[string]models.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, image FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Image); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

const userColumns = `id, email, first_name, last_name, image, color, role, blocked_users, created_at`

func scanUser(row scanner) (models.User, error) {
	var u models.User
	var blocked pq.StringArray
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Image, &u.Color, &u.Role, &blocked, &u.CreatedAt)
	u.BlockedUsers = []string(blocked)
	return u, err
}

func (s *Store) SaveUser(ctx context.Context, u models.User) (models.User, error) {
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.BlockedUsers == nil {
		u.BlockedUsers = []string{}
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			image = EXCLUDED.image, color = EXCLUDED.color, role = EXCLUDED.role,
			blocked_users = EXCLUDED.blocked_users
		RETURNING ` + userColumns
	row := s.db.QueryRowContext(ctx, query, u.ID, u.Email, u.FirstName, u.LastName, u.Image, u.Color,
		u.Role, pq.Array(u.BlockedUsers), u.CreatedAt)
	saved, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return saved, nil
}

func (s *Store) EnsureUser(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, storage.ErrMissingUserID
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.BlockedUsers == nil {
		u.BlockedUsers = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Email, u.FirstName, u.LastName, u.Image, u.Color, u.Role, pq.Array(u.BlockedUsers), u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user %s: %w", u.ID, err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, storage.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) ListConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC`, a, b)
	if err != nil {
		return nil, fmt.Errorf("conversation %s/%s: %w", a, b, err)
	}
	return msgs, nil
}

func (s *Store) SearchMessages(ctx context.Context, userID, counterpartID, query string) ([]models.Message, error) {
	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
		  AND (content ILIKE '%' || $3 || '%' OR message_type ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC`, userID, counterpartID, query)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) ToggleBlock(ctx context.Context, userID, targetID string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET blocked_users = CASE
			WHEN $2 = ANY(blocked_users) THEN array_remove(blocked_users, $2)
			ELSE array_append(blocked_users, $2)
		END
		WHERE id = $1
		RETURNING $2 = ANY(blocked_users)`, userID, targetID).Scan(&blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle block: %w", err)
	}
	return blocked, nil
}

func (s *Store) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM messages`)
}

func (s *Store) CountUsersByRole(ctx context.Context) (map[models.Role]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.Role]int64)
	for rows.Next() {
		var role models.Role
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

const userFilter = `($1 = '' OR email ILIKE '%' || $1 || '%' OR first_name ILIKE '%' || $1 || '%' OR last_name ILIKE '%' || $1 || '%')`

func (s *Store) ListUsers(ctx context.Context, page storage.Page, search string) ([]models.User, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+userFilter, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE `+userFilter+`
		ORDER BY created_at DESC, id ASC
		LIMIT NULLIF($2, 0) OFFSET $3`, search, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role models.Role) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2 WHERE id = $1 RETURNING `+userColumns, id, role))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, storage.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("update role: %w", err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecentMessages(ctx context.Context, page storage.Page) ([]models.Message, int64, error) {
	total, err := s.CountMessages(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		ORDER BY created_at DESC
		LIMIT NULLIF($1, 0) OFFSET $2`, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("recent messages: %w", err)
	}
	return msgs, total, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
