package bootstrap_test

import (
	"context"
	"testing"

	dbmemory "golang-smssync-gateway/internal/adapters/db/memory"
	qmemory "golang-smssync-gateway/internal/adapters/queue/memory"
	"golang-smssync-gateway/internal/bootstrap"
	"golang-smssync-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryAdapters(t *testing.T) {
	log := bootstrap.Logger("test")
	conf := config.Config{DatabaseURL: bootstrap.InMemory, AMQPURL: bootstrap.InMemory, QueueBuffer: 4}

	store, closeStore, err := bootstrap.OpenStore(context.Background(), conf, log)
	require.NoError(t, err)
	assert.IsType(t, &dbmemory.Store{}, store)
	require.NoError(t, closeStore())

	queue, inProcess, err := bootstrap.OpenQueue(conf, log)
	require.NoError(t, err)
	assert.True(t, inProcess)
	assert.IsType(t, &qmemory.Queue{}, queue)
}
