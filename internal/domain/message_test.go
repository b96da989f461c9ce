package domain_test

import (
	"encoding/json"
	"testing"

	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboundMessage(t *testing.T) {
	m := domain.NewOutboundMessage("open311", []string{"+255700", "", "+255701", "+255700"}, "s", "hi")
	assert.Equal(t, domain.TypeSMS, m.Type)
	assert.Equal(t, domain.DirectionOutbound, m.Direction)
	assert.Equal(t, domain.StateUnknown, m.State)
	assert.Equal(t, domain.ModePull, m.Mode)
	assert.Equal(t, domain.Recipients{"+255700", "+255701"}, m.To)
}

func TestNewInboundMessage(t *testing.T) {
	m := domain.NewInboundMessage("+255700", "open311", "help", "h1")
	assert.Equal(t, domain.DirectionInbound, m.Direction)
	assert.Equal(t, domain.StateReceived, m.State)
	assert.Equal(t, domain.PriorityLow, m.Priority)
	assert.Equal(t, "help", m.Subject)
	assert.Equal(t, "help", m.Body)
	assert.Equal(t, "h1", m.Hash)
	assert.Equal(t, domain.Recipients{"open311"}, m.To)
}

func TestEnvelopesOnePerRecipient(t *testing.T) {
	m := domain.NewOutboundMessage("open311", []string{"A", "B"}, "", "hi")
	m.ID = uuid.New()

	env := m.Envelopes()
	require.Len(t, env, 2)
	assert.Equal(t, domain.Envelope{To: "A", Message: "hi", UUID: m.ID.String() + ":A"}, env[0])
	assert.Equal(t, domain.Envelope{To: "B", Message: "hi", UUID: m.ID.String() + ":B"}, env[1])
	assert.Equal(t, []string{m.ID.String() + ":A", m.ID.String() + ":B"}, m.CorrelationUUIDs())
}

func TestRecipientsUnmarshalScalarOrArray(t *testing.T) {
	var single struct{ To domain.Recipients }
	require.NoError(t, json.Unmarshal([]byte(`{"To":"+255700"}`), &single))
	assert.Equal(t, domain.Recipients{"+255700"}, single.To)

	var many struct{ To domain.Recipients }
	require.NoError(t, json.Unmarshal([]byte(`{"To":["+255700","+255701"]}`), &many))
	assert.Equal(t, domain.Recipients{"+255700", "+255701"}, many.To)

	var bad struct{ To domain.Recipients }
	require.Error(t, json.Unmarshal([]byte(`{"To":42}`), &bad))
}

func TestMessageFilterMatches(t *testing.T) {
	m := domain.NewOutboundMessage("open311", []string{"A"}, "", "hi")
	m.ID = uuid.New()
	m.Transport = "open311-smssync"

	assert.True(t, domain.MessageFilter{}.Matches(m))
	assert.True(t, domain.MessageFilter{Type: domain.TypeSMS, Transport: "open311-smssync"}.Matches(m))
	assert.False(t, domain.MessageFilter{Transport: "other"}.Matches(m))
	assert.True(t, domain.MessageFilter{States: []domain.State{domain.StateQueued, domain.StateUnknown}}.Matches(m))
	assert.False(t, domain.MessageFilter{States: []domain.State{domain.StateQueued}}.Matches(m))
	assert.True(t, domain.MessageFilter{IDs: []uuid.UUID{m.ID}}.Matches(m))
	assert.False(t, domain.MessageFilter{IDs: []uuid.UUID{}}.Matches(m), "empty id set matches nothing")
}
