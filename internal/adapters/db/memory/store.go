// Package memory provides an in-process MessageStore used by tests and by
// the binaries when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
)

// Store implements ports.MessageStore on a map guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]domain.Message
	byHash   map[string]uuid.UUID
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		messages: make(map[uuid.UUID]domain.Message),
		byHash:   make(map[string]uuid.UUID),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FindByHash returns the message with the given inbound hash.
func (s *Store) FindByHash(_ context.Context, hash string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok || hash == "" {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	return clone(s.messages[id]), nil
}

// Find returns all messages matching filter ordered by creation time.
func (s *Store) Find(_ context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, m := range s.messages {
		if filter.Matches(m) {
			out = append(out, clone(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create inserts msg, assigning an ID when it has none.
func (s *Store) Create(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Hash != "" {
		if _, taken := s.byHash[msg.Hash]; taken {
			return domain.ErrDuplicateHash
		}
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	now := s.now()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	s.messages[msg.ID] = clone(*msg)
	if msg.Hash != "" {
		s.byHash[msg.Hash] = msg.ID
	}
	return nil
}

// Save overwrites an existing message.
func (s *Store) Save(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[msg.ID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	msg.CreatedAt = existing.CreatedAt
	msg.UpdatedAt = s.now()
	s.messages[msg.ID] = clone(*msg)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Get returns a message by id.
func (s *Store) Get(id uuid.UUID) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	return clone(m), ok
}

func clone(m domain.Message) domain.Message {
	if m.To != nil {
		m.To = append(domain.Recipients(nil), m.To...)
	}
	if m.Options != nil {
		o := *m.Options
		m.Options = &o
	}
	return m
}
