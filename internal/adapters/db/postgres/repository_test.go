//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang-smssync-gateway/internal/adapters/db/postgres"
	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *postgres.Repository {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "sms", "POSTGRES_PASSWORD": "sms", "POSTGRES_DB": "sms"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(120 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://sms:sms@%s:%s/sms?sslmode=disable", host, port.Port())
	repo, err := postgres.New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestRepositoryLifecycle(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	out := domain.NewOutboundMessage("open311", []string{"+255700", "+255701"}, "", "hi")
	out.Transport = "open311-smssync"
	require.NoError(t, repo.Create(ctx, &out))

	pending, err := repo.Find(ctx, domain.MessageFilter{
		Type:      domain.TypeSMS,
		Transport: "open311-smssync",
		States:    []domain.State{domain.StateUnknown},
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.Recipients{"+255700", "+255701"}, pending[0].To)

	pending[0].State = domain.StateQueued
	require.NoError(t, repo.Save(ctx, &pending[0]))

	byID, err := repo.Find(ctx, domain.MessageFilter{IDs: []uuid.UUID{out.ID}})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, domain.StateQueued, byID[0].State)
}

func TestRepositoryHashIsUnique(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	a := domain.NewInboundMessage("+255700", "open311", "help", "h1")
	require.NoError(t, repo.Create(ctx, &a))

	b := domain.NewInboundMessage("+255700", "open311", "help", "h1")
	require.ErrorIs(t, repo.Create(ctx, &b), domain.ErrDuplicateHash)

	got, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.FindByHash(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)

	// outbound messages carry no hash and must not collide
	for i := 0; i < 2; i++ {
		m := domain.NewOutboundMessage("open311", []string{"+255700"}, "", "hi")
		require.NoError(t, repo.Create(ctx, &m))
	}
}
