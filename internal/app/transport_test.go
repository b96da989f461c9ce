package app_test

import (
	"context"
	"testing"
	"time"

	"golang-smssync-gateway/internal/adapters/db/memory"
	memqueue "golang-smssync-gateway/internal/adapters/queue/memory"
	"golang-smssync-gateway/internal/app"
	"golang-smssync-gateway/internal/config"
	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransportMergesDefaults(t *testing.T) {
	tr := app.NewTransport(config.Options{Reply: "ok", Concurrency: 3}, memory.New(), nil, discard())

	opts := tr.Options()
	assert.Equal(t, "ok", opts.Reply)
	assert.Equal(t, 3, opts.Concurrency)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, "open311", opts.From)
	assert.Equal(t, "open311-smssync", opts.Transport)
	assert.Equal(t, "smssync", opts.QueueName)
}

func TestQueueStampsAndEnqueuesWithoutStoring(t *testing.T) {
	store := memory.New()
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(config.Options{}, store, queue, discard())
	ctx := context.Background()

	msg := domain.Message{To: domain.Recipients{"A", "", "A", "B"}, Body: "water outage"}
	require.NoError(t, tr.Queue(ctx, &msg))

	assert.Equal(t, domain.TypeSMS, msg.Type)
	assert.Equal(t, domain.ModePull, msg.Mode)
	assert.Equal(t, domain.DirectionOutbound, msg.Direction)
	assert.Equal(t, domain.StateUnknown, msg.State)
	assert.Equal(t, "open311", msg.From)
	assert.Equal(t, "open311-smssync", msg.Transport)
	assert.Equal(t, "smssync", msg.QueueName)
	assert.Equal(t, domain.Recipients{"A", "B"}, msg.To)

	assert.Equal(t, 0, store.Len())
	require.Equal(t, 1, queue.Pending("smssync"))
	job, err := queue.Next(ctx, "smssync")
	require.NoError(t, err)
	assert.Equal(t, "water outage", job.Body)
}

func TestQueueWithoutJobQueueFails(t *testing.T) {
	tr := app.NewTransport(config.Options{}, memory.New(), nil, discard())

	var qerr *app.QueueError
	require.ErrorAs(t, tr.Queue(context.Background(), &domain.Message{}), &qerr)
	assert.Equal(t, "enqueue", qerr.Op)
}

func TestProcessPersistsUnacknowledged(t *testing.T) {
	store := memory.New()
	tr := app.NewTransport(config.Options{}, store, nil, discard())
	ctx := context.Background()

	id := uuid.New()
	job := domain.Message{ID: id, To: domain.Recipients{"A"}, Body: "hi", State: domain.StateDelivered}
	require.NoError(t, tr.Process(ctx, job))
	// Redelivery of the same job does not create a second row.
	require.NoError(t, tr.Process(ctx, job))

	assert.Equal(t, 1, store.Len())
	stored, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.StateUnknown, stored.State)
	assert.Equal(t, domain.DirectionOutbound, stored.Direction)
	assert.Equal(t, "open311-smssync", stored.Transport)
}

func TestQueuedJobRedeliveryStoresOnce(t *testing.T) {
	store := memory.New()
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(config.Options{}, store, queue, discard())
	ctx := context.Background()

	msg := domain.NewOutboundMessage("", []string{"A"}, "", "boil water notice")
	require.NoError(t, tr.Queue(ctx, &msg))
	require.NotEqual(t, uuid.Nil, msg.ID)

	job, err := queue.Next(ctx, "smssync")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, job.ID)

	require.NoError(t, tr.Process(ctx, job))
	require.NoError(t, tr.Process(ctx, job))

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get(msg.ID)
	assert.True(t, ok)
}

func TestSendReportsAcceptance(t *testing.T) {
	tr := app.NewTransport(config.Options{}, memory.New(), nil, discard())
	ctx := context.Background()

	res, err := tr.Send(ctx, domain.Message{Options: &domain.SendOptions{Fake: true}})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Message)
	assert.Empty(t, res.State)

	res, err = tr.Send(ctx, domain.Message{})
	require.NoError(t, err)
	assert.Equal(t, domain.StateSent, res.State)
}

func TestStopWithoutQueue(t *testing.T) {
	tr := app.NewTransport(config.Options{}, memory.New(), nil, discard())
	require.NoError(t, tr.Stop(context.Background()))
}

func TestStopTwice(t *testing.T) {
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(config.Options{}, memory.New(), queue, discard())
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Stop(ctx))
	require.NoError(t, tr.Stop(ctx))
	assert.True(t, queue.ShuttingDown())
}

func TestStartIsIdempotent(t *testing.T) {
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(config.Options{Concurrency: 1}, memory.New(), queue, discard())
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Stop(ctx))
}

func TestStartWithoutQueueFails(t *testing.T) {
	tr := app.NewTransport(config.Options{}, memory.New(), nil, discard())

	var qerr *app.QueueError
	require.ErrorAs(t, tr.Start(context.Background()), &qerr)
}

func TestStartStopsWhenContextEnds(t *testing.T) {
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(config.Options{}, memory.New(), queue, discard())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Start(ctx))
	cancel()

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop")
	}
	assert.True(t, queue.ShuttingDown())
}

func TestOutboundLifecycle(t *testing.T) {
	store := memory.New()
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(config.Options{Concurrency: 2}, store, queue, discard())
	sync := tr.Sync()
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))
	t.Cleanup(func() { _ = tr.Stop(ctx) })

	msg := domain.NewOutboundMessage("", []string{"A", "B"}, "", "road closed")
	require.NoError(t, tr.Queue(ctx, &msg))

	var envelopes []domain.Envelope
	require.Eventually(t, func() bool {
		var err error
		envelopes, err = sync.OnSend(ctx)
		return err == nil && len(envelopes) == 2
	}, 2*time.Second, 10*time.Millisecond)

	uuids := []string{envelopes[0].UUID, envelopes[1].UUID}
	acked, err := sync.OnSent(ctx, uuids)
	require.NoError(t, err)
	assert.ElementsMatch(t, uuids, acked)

	pending, err := sync.OnSend(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	waiting, err := sync.OnQueued(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, uuids, waiting)

	delivered, err := sync.OnDelivered(ctx, []app.DeliveryReport{{UUID: uuids[0]}})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, domain.StateDelivered, delivered[0].State)

	waiting, err = sync.OnQueued(ctx)
	require.NoError(t, err)
	assert.Empty(t, waiting)
}

func TestConsumeInboundDrainsReceiveQueue(t *testing.T) {
	queue := memqueue.New(1, discard())
	tr := app.NewTransport(testOptions(), memory.New(), queue, discard())
	ctx := context.Background()
	t.Cleanup(func() { _ = tr.Stop(ctx) })

	got := make(chan domain.Message, 4)
	require.NoError(t, tr.ConsumeInbound(ctx, func(_ context.Context, msg domain.Message) error {
		got <- msg
		return nil
	}))

	// A one-slot buffer only keeps accepting receives while it is drained.
	for i, hash := range []string{"c-1", "c-2", "c-3"} {
		_, _, err := tr.Sync().OnReceive(ctx, app.InboundSMS{From: "255700", Message: hash, Hash: hash})
		require.NoError(t, err, "receive %d", i)
		select {
		case msg := <-got:
			assert.Equal(t, hash, msg.Hash)
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %s not consumed", hash)
		}
	}
}

func TestConsumeInboundWithoutReceiveQueueIsNoop(t *testing.T) {
	tr := app.NewTransport(config.Options{}, memory.New(), nil, discard())
	require.NoError(t, tr.ConsumeInbound(context.Background(), func(context.Context, domain.Message) error { return nil }))
}

func TestInboundLifecycle(t *testing.T) {
	store := memory.New()
	queue := memqueue.New(8, discard())
	tr := app.NewTransport(testOptions(), store, queue, discard())
	ctx := context.Background()

	reply, msg, err := tr.Sync().OnReceive(ctx, app.InboundSMS{From: "255700", SentTo: "15555", Message: "broken pipe", Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "thanks", reply.Message)

	id, ok := domain.DecodeUUID(reply.UUID)
	require.True(t, ok)
	assert.Equal(t, msg.ID, id)

	// Inbound messages never appear as outbound work.
	envelopes, err := tr.Sync().OnSend(ctx)
	require.NoError(t, err)
	assert.Empty(t, envelopes)
	assert.Equal(t, 1, queue.Pending("smssync:receive"))
}
