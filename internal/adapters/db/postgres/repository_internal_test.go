package postgres

import (
	"errors"
	"fmt"
	"testing"

	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsHashConflict(t *testing.T) {
	hashErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation, ConstraintName: hashIndex})
	pkErr := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "messages_pkey"}

	assert.True(t, isHashConflict(hashErr))
	assert.False(t, isHashConflict(pkErr))
	assert.False(t, isHashConflict(errors.New("boom")))
}

func TestRecordKeepsEmptyHashNull(t *testing.T) {
	m := domain.NewOutboundMessage("open311", nil, "", "hi")
	m.ID = uuid.New()

	rec := fromDomain(m)
	assert.Nil(t, rec.Hash, "outbound messages must not collide on an empty hash")
	assert.Equal(t, []string{}, rec.Recipients)

	in := domain.NewInboundMessage("+255700", "open311", "help", "h1")
	rec = fromDomain(in)
	if assert.NotNil(t, rec.Hash) {
		assert.Equal(t, "h1", *rec.Hash)
	}
	assert.Equal(t, "h1", rec.toDomain().Hash)
}
