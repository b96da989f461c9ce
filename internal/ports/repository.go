package ports

import (
	"context"

	"golang-smssync-gateway/internal/domain"
)

// MessageStore defines persistence operations for messages.
type MessageStore interface {
	// FindByHash returns the message carrying the given inbound hash,
	// or domain.ErrMessageNotFound.
	FindByHash(ctx context.Context, hash string) (domain.Message, error)

	// Find returns every message matching the filter, oldest first.
	Find(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error)

	// Create persists a new message. The store assigns an ID when msg.ID is
	// zero and sets the timestamps. A hash already taken by another message
	// yields domain.ErrDuplicateHash.
	Create(ctx context.Context, msg *domain.Message) error

	// Save writes back all mutable fields of an existing message.
	Save(ctx context.Context, msg *domain.Message) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
