package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	uniqueViolation = "23505"
	hashIndex       = "idx_messages_hash"
)

// messageRecord is the persisted shape of domain.Message.
type messageRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"type:varchar(10);not null;index:idx_messages_sync,priority:1"`
	Direction  string    `gorm:"type:varchar(10);not null"`
	FromNumber string    `gorm:"type:varchar(64)"`
	Recipients []string  `gorm:"type:jsonb;serializer:json;not null"`
	Subject    string    `gorm:"type:text"`
	Body       string    `gorm:"type:text"`
	Hash       *string   `gorm:"type:varchar(255);uniqueIndex:idx_messages_hash"`
	Transport  string    `gorm:"type:varchar(64);index:idx_messages_sync,priority:2"`
	QueueName  string    `gorm:"type:varchar(64)"`
	Priority   string    `gorm:"type:varchar(10)"`
	State      string    `gorm:"type:varchar(16);not null;index:idx_messages_sync,priority:3"`
	Mode       string    `gorm:"type:varchar(10)"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (messageRecord) TableName() string { return "messages" }

// Repository implements ports.MessageStore using PostgreSQL through gorm.
type Repository struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection and returns a Repository.
func New(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewWithDB wraps an already opened gorm handle.
func NewWithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the messages table and its indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&messageRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// FindByHash returns the message carrying the inbound hash.
func (r *Repository) FindByHash(ctx context.Context, hash string) (domain.Message, error) {
	if hash == "" {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	var rec messageRecord
	err := r.db.WithContext(ctx).Where("hash = ?", hash).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("find by hash: %w", err)
	}
	return rec.toDomain(), nil
}

// Find returns messages matching filter, oldest first.
func (r *Repository) Find(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return nil, nil
	}

	q := r.db.WithContext(ctx).Model(&messageRecord{})
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.Transport != "" {
		q = q.Where("transport = ?", filter.Transport)
	}
	if filter.Direction != "" {
		q = q.Where("direction = ?", string(filter.Direction))
	}
	if filter.Hash != "" {
		q = q.Where("hash = ?", filter.Hash)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		q = q.Where("state IN ?", states)
	}
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}

	var recs []messageRecord
	if err := q.Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(recs))
	for _, rec := range recs {
		msgs = append(msgs, rec.toDomain())
	}
	return msgs, nil
}

// Create inserts a new message row.
func (r *Repository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	rec := fromDomain(*msg)
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isHashConflict(err) {
			return domain.ErrDuplicateHash
		}
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}

	msg.CreatedAt, msg.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

// Save writes back the mutable fields of an existing message.
func (r *Repository) Save(ctx context.Context, msg *domain.Message) error {
	rec := fromDomain(*msg)
	rec.UpdatedAt = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&messageRecord{}).
		Where("id = ?", msg.ID).
		Select("from_number", "recipients", "subject", "body", "priority", "state", "updated_at").
		Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}

	msg.UpdatedAt = rec.UpdatedAt
	return nil
}

func isHashConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation && pgErr.ConstraintName == hashIndex
	}
	return false
}

func fromDomain(m domain.Message) messageRecord {
	rec := messageRecord{
		ID:         m.ID,
		Type:       string(m.Type),
		Direction:  string(m.Direction),
		FromNumber: m.From,
		Recipients: []string(m.To),
		Subject:    m.Subject,
		Body:       m.Body,
		Transport:  m.Transport,
		QueueName:  m.QueueName,
		Priority:   string(m.Priority),
		State:      string(m.State),
		Mode:       string(m.Mode),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if rec.Recipients == nil {
		rec.Recipients = []string{}
	}
	if m.Hash != "" {
		h := m.Hash
		rec.Hash = &h
	}
	return rec
}

func (rec messageRecord) toDomain() domain.Message {
	m := domain.Message{
		ID:        rec.ID,
		Type:      domain.Type(rec.Type),
		Direction: domain.Direction(rec.Direction),
		From:      rec.FromNumber,
		To:        domain.Recipients(rec.Recipients),
		Subject:   rec.Subject,
		Body:      rec.Body,
		Transport: rec.Transport,
		QueueName: rec.QueueName,
		Priority:  domain.Priority(rec.Priority),
		State:     domain.State(rec.State),
		Mode:      domain.Mode(rec.Mode),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Hash != nil {
		m.Hash = *rec.Hash
	}
	return m
}
