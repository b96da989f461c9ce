package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang-smssync-gateway/internal/domain"
	"golang-smssync-gateway/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

type consumer struct {
	ch  *amqp.Channel
	tag string
}

// Process opens a dedicated channel, limits unacknowledged deliveries to
// concurrency and starts that many workers. Workers exit once Shutdown
// cancels the consumer.
func (q *Queue) Process(ctx context.Context, name string, concurrency int, handler ports.JobHandler) error {
	if q.shuttingDown.Load() {
		return domain.ErrQueueClosed
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(concurrency, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	if err := declare(ch, name); err != nil {
		ch.Close()
		return err
	}

	tag := fmt.Sprintf("%s-%d", name, q.tagSeq.Add(1))

	deliveries, err := ch.Consume(
		name,
		tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", name, err)
	}

	q.consMu.Lock()
	q.consumers = append(q.consumers, consumer{ch: ch, tag: tag})
	q.consMu.Unlock()

	// Jobs already delivered are finished even after ctx is cancelled.
	jobCtx := context.WithoutCancel(ctx)

	q.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer q.wg.Done()
			for d := range deliveries {
				q.handle(jobCtx, name, d, handler)
			}
		}()
	}

	q.log.Info("queue consumer started", "queue", name, "concurrency", concurrency)
	return nil
}

// handle acknowledges a delivery only if the handler returns nil. A failed
// job is requeued once; a second failure drops it.
func (q *Queue) handle(ctx context.Context, name string, d amqp.Delivery, handler ports.JobHandler) {
	var msg domain.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		q.log.Error("unmarshal job", "queue", name, "err", err)
		_ = d.Nack(false, false) // don't requeue malformed payloads
		return
	}

	if err := handler(ctx, msg); err != nil {
		requeue := !d.Redelivered
		q.log.Error("job handler error", "queue", name, "msg_id", msg.ID, "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
}

// Shutdown cancels every consumer, waits for in-flight jobs until ctx is done
// and closes the connection. Calling it more than once is a no-op.
func (q *Queue) Shutdown(ctx context.Context) error {
	if !q.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	q.consMu.Lock()
	consumers := q.consumers
	q.consMu.Unlock()

	var errs []error
	for _, c := range consumers {
		if err := c.ch.Cancel(c.tag, false); err != nil {
			errs = append(errs, fmt.Errorf("cancel consumer %s: %w", c.tag, err))
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for workers: %w", ctx.Err()))
	}

	for _, c := range consumers {
		_ = c.ch.Close()
	}
	q.pubMu.Lock()
	_ = q.pubCh.Close()
	q.pubMu.Unlock()
	if err := q.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	return errors.Join(errs...)
}

// ShuttingDown reports whether Shutdown was called.
func (q *Queue) ShuttingDown() bool {
	return q.shuttingDown.Load()
}
