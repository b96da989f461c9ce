package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type identifies the channel a message travels on.
type Type string

const (
	TypeSMS   Type = "sms"
	TypeEmail Type = "email"
	TypePush  Type = "push"
)

// Direction tells whether a message left the system or arrived from a device.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// State represents the lifecycle state of a message.
type State string

const (
	StateUnknown   State = "unknown"   // Persisted, not yet picked up by the device
	StateQueued    State = "queued"    // Device acknowledged and queued it locally
	StateSent      State = "sent"      // Accepted by the transport
	StateReceived  State = "received"  // Inbound SMS received from the device
	StateDelivered State = "delivered" // Device reported delivery to the handset
)

// Mode is how delivery status is obtained for a transport.
type Mode string

const (
	ModePull Mode = "pull"
	ModePush Mode = "push"
)

// Priority is informational only.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// SendOptions carries per-message send flags. It is never persisted.
type SendOptions struct {
	Fake bool `json:"fake,omitempty"`
}

// Message is the core domain entity. One message may target many recipients.
type Message struct {
	ID        uuid.UUID    `json:"id"`
	Type      Type         `json:"type"`
	Direction Direction    `json:"direction"`
	From      string       `json:"from"`
	To        Recipients   `json:"to"`
	Subject   string       `json:"subject,omitempty"`
	Body      string       `json:"body"`
	Hash      string       `json:"hash,omitempty"`
	Transport string       `json:"transport"`
	QueueName string       `json:"queue_name"`
	Priority  Priority     `json:"priority"`
	State     State        `json:"state"`
	Mode      Mode         `json:"mode"`
	Options   *SendOptions `json:"options,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewOutboundMessage creates an outbound SMS waiting to be picked up by a device.
func NewOutboundMessage(from string, to []string, subject, body string) Message {
	return Message{
		Type:      TypeSMS,
		Direction: DirectionOutbound,
		From:      from,
		To:        NormalizeRecipients(to),
		Subject:   subject,
		Body:      body,
		Priority:  PriorityNormal,
		State:     StateUnknown,
		Mode:      ModePull,
	}
}

// NewInboundMessage creates a received SMS. The text is used as both subject and body.
func NewInboundMessage(from, to, text, hash string) Message {
	return Message{
		Type:      TypeSMS,
		Direction: DirectionInbound,
		From:      from,
		To:        NormalizeRecipients([]string{to}),
		Subject:   text,
		Body:      text,
		Hash:      hash,
		Priority:  PriorityLow,
		State:     StateReceived,
		Mode:      ModePull,
	}
}

// CorrelationUUIDs returns one correlation id per recipient, in recipient order.
func (m Message) CorrelationUUIDs() []string {
	out := make([]string, 0, len(m.To))
	for _, to := range m.To {
		out = append(out, EncodeUUID(m.ID, to))
	}
	return out
}

// Envelopes flattens the message into per-recipient send instructions.
func (m Message) Envelopes() []Envelope {
	out := make([]Envelope, 0, len(m.To))
	for _, to := range m.To {
		out = append(out, Envelope{
			To:      to,
			Message: m.Body,
			UUID:    EncodeUUID(m.ID, to),
		})
	}
	return out
}

// Envelope is a single per-recipient send instruction handed to the device.
type Envelope struct {
	To      string `json:"to"`
	Message string `json:"message"`
	UUID    string `json:"uuid"`
}

// Recipients is an ordered list of phone numbers. In JSON it accepts either
// a single string or an array of strings.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = NormalizeRecipients([]string{one})
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("recipients must be a string or an array of strings")
	}
	*r = NormalizeRecipients(many)
	return nil
}

// NormalizeRecipients drops empty entries and duplicates, keeping first-seen order.
func NormalizeRecipients(to []string) Recipients {
	out := make(Recipients, 0, len(to))
	seen := make(map[string]struct{}, len(to))
	for _, r := range to {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// MessageFilter selects messages from a store. Zero-valued fields are unconstrained.
type MessageFilter struct {
	Type      Type
	Transport string
	Direction Direction
	States    []State
	IDs       []uuid.UUID
	Hash      string
}

// Matches reports whether m satisfies the filter.
func (f MessageFilter) Matches(m Message) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Transport != "" && m.Transport != f.Transport {
		return false
	}
	if f.Direction != "" && m.Direction != f.Direction {
		return false
	}
	if f.Hash != "" && m.Hash != f.Hash {
		return false
	}
	if len(f.States) > 0 && !containsState(f.States, m.State) {
		return false
	}
	if f.IDs != nil && !containsID(f.IDs, m.ID) {
		return false
	}
	return true
}

func containsState(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Domain errors
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrDuplicateHash   = errors.New("message with this hash already exists")
	ErrQueueClosed     = errors.New("queue is shutting down")
	ErrQueueFull       = errors.New("queue is full")
)
