package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// MessageModel is the persisted form of a message. SentAt is unix nanoseconds so
// ordering survives sqlite's text timestamps.
type MessageModel struct {
	ID          string `gorm:"primaryKey"`
	SenderID    string `gorm:"index;not null"`
	RecipientID string `gorm:"index;not null"`
	Kind        string `gorm:"not null"`
	Content     string `gorm:"not null"`
	Language    string
	SentAt      int64 `gorm:"index;not null"`
}

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"index;not null"`
	FirstName    string
	LastName     string
	Image        string
	Color        int
	Role         string   `gorm:"index;not null;default:user"`
	BlockedUsers []string `gorm:"serializer:json"`
	CreatedAt    time.Time
}

func (m MessageModel) toDomain() models.Message {
	return models.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Kind:        models.MessageKind(m.Kind),
		Content:     m.Content,
		Language:    m.Language,
		CreatedAt:   time.Unix(0, m.SentAt).UTC(),
	}
}

func (u UserModel) toDomain() models.User {
	return models.User{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Image:        u.Image,
		Color:        u.Color,
		Role:         models.Role(u.Role),
		BlockedUsers: append([]string(nil), u.BlockedUsers...),
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

// Store implements storage.Store using GORM over sqlite.
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore opens the sqlite file (":memory:" works) and runs auto-migrations.
func NewStore(path string) (*Store, error) {
	gormLog := gormlogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// An in-memory database exists per connection.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&UserModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	rec := MessageModel{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Kind:        string(m.Kind),
		Content:     m.Content,
		Language:    m.Language,
		SentAt:      m.CreatedAt.UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var rec MessageModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

func (s *Store) DeleteMessageByID(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&MessageModel{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("delete message %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) FindRecentCounterparts(ctx context.Context, userID string) ([]models.Counterpart, error) {
	var recs []MessageModel
	err := s.db.WithContext(ctx).
		Select("sender_id", "recipient_id", "sent_at").
		Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("sent_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("counterparts for %s: %w", userID, err)
	}
	seen := make(map[string]bool)
	var result []models.Counterpart
	for _, rec := range recs {
		other := rec.SenderID
		if other == userID {
			other = rec.RecipientID
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		result = append(result, models.Counterpart{UserID: other, LastMessageTime: time.Unix(0, rec.SentAt).UTC()})
	}
	return result, nil
}

func (s *Store) GetParticipants(ctx context.Context, ids ...string) (map[string]models.Participant, error) {
	out := make(map[string]models.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recs []UserModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("participants: %w", err)
	}
	for _, rec := range recs {
		out[rec.ID] = rec.toDomain().Participant()
	}
	return out, nil
}

func newUserModel(u models.User) UserModel {
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	rec := UserModel{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Image:        u.Image,
		Color:        u.Color,
		Role:         string(u.Role),
		BlockedUsers: u.BlockedUsers,
		CreatedAt:    u.CreatedAt,
	}
	if rec.BlockedUsers == nil {
		rec.BlockedUsers = []string{}
	}
	return rec
}

func (s *Store) SaveUser(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	rec := newUserModel(u)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return models.User{}, fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return rec.toDomain(), nil
}

func (s *Store) EnsureUser(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, storage.ErrMissingUserID
	}
	rec := newUserModel(u)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user %s: %w", u.ID, err)
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var rec UserModel
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, storage.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return rec.toDomain(), nil
}

func conversation(db *gorm.DB, a, b string) *gorm.DB {
	return db.Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a)
}

func toMessages(recs []MessageModel) []models.Message {
	out := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toDomain())
	}
	return out
}

func (s *Store) ListConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	var recs []MessageModel
	if err := conversation(s.db.WithContext(ctx), a, b).Order("sent_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("conversation %s/%s: %w", a, b, err)
	}
	return toMessages(recs), nil
}

func (s *Store) SearchMessages(ctx context.Context, userID, counterpartID, query string) ([]models.Message, error) {
	like := "%" + strings.ToLower(query) + "%"
	var recs []MessageModel
	err := conversation(s.db.WithContext(ctx), userID, counterpartID).
		Where("LOWER(content) LIKE ? OR LOWER(kind) LIKE ?", like, like).
		Order("sent_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return toMessages(recs), nil
}

func (s *Store) ToggleBlock(ctx context.Context, userID, targetID string) (bool, error) {
	var blocked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec UserModel
		if err := tx.First(&rec, "id = ?", userID).Error; err != nil {
			return err
		}
		u := rec.toDomain()
		if u.HasBlocked(targetID) {
			kept := make([]string, 0, len(u.BlockedUsers))
			for _, id := range u.BlockedUsers {
				if id != targetID {
					kept = append(kept, id)
				}
			}
			rec.BlockedUsers = kept
		} else {
			rec.BlockedUsers = append(u.BlockedUsers, targetID)
			blocked = true
		}
		return tx.Save(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle block: %w", err)
	}
	return blocked, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&n).Error
	return n, err
}

func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&MessageModel{}).Count(&n).Error
	return n, err
}

func (s *Store) CountUsersByRole(ctx context.Context) (map[models.Role]int64, error) {
	var rows []struct {
		Role  string
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&UserModel{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.Role]int64, len(rows))
	for _, r := range rows {
		out[models.Role(r.Role)] = r.Count
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context, page storage.Page, search string) ([]models.User, int64, error) {
	q := s.db.WithContext(ctx).Model(&UserModel{})
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset())
	}
	var recs []UserModel
	if err := q.Order("created_at DESC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.toDomain())
	}
	return users, total, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role models.Role) (models.User, error) {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Update("role", string(role))
	if res.Error != nil {
		return models.User{}, fmt.Errorf("update role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.User{}, storage.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecentMessages(ctx context.Context, page storage.Page) ([]models.Message, int64, error) {
	total, err := s.CountMessages(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	q := s.db.WithContext(ctx).Order("sent_at DESC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset())
	}
	var recs []MessageModel
	if err := q.Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("recent messages: %w", err)
	}
	return toMessages(recs), total, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
