package ports

import (
	"context"

	"golang-smssync-gateway/internal/domain"
)

// SendResult is what an outbound transport reports after accepting a message.
type SendResult struct {
	State   domain.State `json:"state,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Transport is the generic outbound-transport contract consumers program against.
type Transport interface {
	// Queue normalizes msg for this transport and submits it for asynchronous sending.
	Queue(ctx context.Context, msg *domain.Message) error

	// Send reports the outcome of sending msg through this transport.
	Send(ctx context.Context, msg domain.Message) (SendResult, error)
}
