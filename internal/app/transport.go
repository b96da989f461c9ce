package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang-smssync-gateway/internal/config"
	"golang-smssync-gateway/internal/domain"
	"golang-smssync-gateway/internal/metrics"
	"golang-smssync-gateway/internal/ports"

	"github.com/google/uuid"
)

var errNoQueue = errors.New("no job queue configured")

var _ ports.Transport = (*Transport)(nil)

// Transport is the SMSSync transport: it queues outbound messages, persists
// them from the worker side, and answers device polls through its SyncService.
type Transport struct {
	opts  config.Options
	store ports.MessageStore
	queue ports.JobQueue
	sync  *SyncService
	log   *slog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewTransport builds a transport from options merged over the defaults.
// queue may be nil for a process that only answers device polls.
func NewTransport(opts config.Options, store ports.MessageStore, queue ports.JobQueue, log *slog.Logger) *Transport {
	opts = opts.WithDefaults()
	return &Transport{
		opts:  opts,
		store: store,
		queue: queue,
		sync:  NewSyncService(store, queue, opts, log),
		log:   log,
		done:  make(chan struct{}),
	}
}

// Options returns the effective options.
func (t *Transport) Options() config.Options { return t.opts }

// Sync returns the device protocol handler.
func (t *Transport) Sync() *SyncService { return t.sync }

// Ping checks the backing store.
func (t *Transport) Ping(ctx context.Context) error {
	if err := t.store.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Queue stamps msg with this transport's routing fields and publishes it on
// the outbound queue. A worker persists it later through Process.
// The message gets its ID here so a redelivered job maps to the same row.
func (t *Transport) Queue(ctx context.Context, msg *domain.Message) error {
	t.stamp(msg)
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	if t.queue == nil {
		return queueErr("enqueue", t.opts.QueueName, errNoQueue)
	}
	if err := t.queue.Enqueue(ctx, t.opts.QueueName, *msg); err != nil {
		metrics.Enqueued.WithLabelValues(t.opts.QueueName, "error").Inc()
		return queueErr("enqueue", t.opts.QueueName, err)
	}
	metrics.Enqueued.WithLabelValues(t.opts.QueueName, "ok").Inc()

	t.log.Info("message queued", "queue", t.opts.QueueName, "recipients", len(msg.To))
	return nil
}

// Send does no network I/O. The device pulls the message on its next poll.
func (t *Transport) Send(_ context.Context, msg domain.Message) (ports.SendResult, error) {
	if msg.Options != nil && msg.Options.Fake {
		return ports.SendResult{Message: "success"}, nil
	}
	return ports.SendResult{State: domain.StateSent}, nil
}

// Process is the outbound job handler. It stores the message unacknowledged so
// the next device poll offers it. A redelivered job whose message already
// exists is a no-op.
func (t *Transport) Process(ctx context.Context, msg domain.Message) error {
	t.stamp(&msg)

	if msg.ID != uuid.Nil {
		existing, err := t.store.Find(ctx, domain.MessageFilter{IDs: []uuid.UUID{msg.ID}})
		if err != nil {
			metrics.Processed.WithLabelValues("error").Inc()
			return storeErr("find by id", err)
		}
		if len(existing) > 0 {
			t.log.Debug("job already persisted", "msg_id", msg.ID)
			return nil
		}
	}

	if err := t.store.Create(ctx, &msg); err != nil {
		metrics.Processed.WithLabelValues("error").Inc()
		return storeErr("create", err)
	}
	metrics.Processed.WithLabelValues("ok").Inc()

	t.log.Info("outbound sms stored", "msg_id", msg.ID, "recipients", len(msg.To))
	return nil
}

// Start begins consuming the outbound queue. It is safe to call more than
// once. When ctx is done the transport stops itself.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}
	if t.queue == nil {
		return queueErr("process", t.opts.QueueName, errNoQueue)
	}

	if err := t.queue.Process(ctx, t.opts.QueueName, t.opts.Concurrency, t.Process); err != nil {
		return queueErr("process", t.opts.QueueName, err)
	}
	t.started = true

	go func() {
		defer close(t.done)
		<-ctx.Done()
		if err := t.Stop(context.Background()); err != nil {
			t.log.Error("stop transport", "err", err)
		}
	}()

	t.log.Info("transport started", "transport", t.opts.Transport, "queue", t.opts.QueueName, "concurrency", t.opts.Concurrency)
	return nil
}

// ConsumeInbound hands inbound notifications from the receive queue to
// handler. It is a no-op when no receive queue is configured. Stop ends it
// together with the outbound consumer.
func (t *Transport) ConsumeInbound(ctx context.Context, handler ports.JobHandler) error {
	if t.opts.ReceiveQueue == "" {
		return nil
	}
	if t.queue == nil {
		return queueErr("process", t.opts.ReceiveQueue, errNoQueue)
	}
	if err := t.queue.Process(ctx, t.opts.ReceiveQueue, 1, handler); err != nil {
		return queueErr("process", t.opts.ReceiveQueue, err)
	}
	t.log.Info("inbound consumer started", "queue", t.opts.ReceiveQueue)
	return nil
}

// Done is closed once a started transport has stopped after its Start
// context ended.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Stop shuts the job queue down, waiting up to the configured timeout for
// in-flight jobs. It succeeds immediately when there is no queue or the
// queue is already shutting down.
func (t *Transport) Stop(ctx context.Context) error {
	if t.queue == nil || t.queue.ShuttingDown() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	if err := t.queue.Shutdown(ctx); err != nil {
		return queueErr("shutdown", t.opts.QueueName, err)
	}
	t.log.Info("transport stopped", "queue", t.opts.QueueName)
	return nil
}

func (t *Transport) stamp(msg *domain.Message) {
	msg.Type = domain.TypeSMS
	msg.Mode = domain.ModePull
	msg.Transport = t.opts.Transport
	msg.QueueName = t.opts.QueueName
	msg.To = domain.NormalizeRecipients(msg.To)
	if msg.From == "" {
		msg.From = t.opts.From
	}
	msg.Direction = domain.DirectionOutbound
	msg.State = domain.StateUnknown
	if msg.Priority == "" {
		msg.Priority = domain.PriorityNormal
	}
}
