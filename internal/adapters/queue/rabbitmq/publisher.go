package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang-smssync-gateway/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "smssync"

// Queue implements ports.JobQueue on RabbitMQ. Each named job queue is a
// durable queue bound to the direct exchange with its own name as routing key.
type Queue struct {
	conn *amqp.Connection
	log  *slog.Logger

	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool

	consMu    sync.Mutex
	consumers []consumer
	tagSeq    atomic.Int64
	wg        sync.WaitGroup

	shuttingDown atomic.Bool
}

// Dial connects to RabbitMQ and opens the publishing channel.
func Dial(amqpURL string, log *slog.Logger) (*Queue, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Queue{
		conn:     conn,
		log:      log,
		pubCh:    ch,
		declared: make(map[string]bool),
	}, nil
}

// Enqueue serialises msg and publishes it as a persistent job on the named queue.
func (q *Queue) Enqueue(ctx context.Context, name string, msg domain.Message) error {
	if q.shuttingDown.Load() {
		return domain.ErrQueueClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if !q.declared[name] {
		if err := declare(q.pubCh, name); err != nil {
			return err
		}
		q.declared[name] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(msg.Direction),
		Body:         body,
	}
	if msg.ID != uuid.Nil {
		pub.MessageId = msg.ID.String()
	}

	if err := q.pubCh.PublishWithContext(
		ctx,
		exchangeName,
		name,  // routing key
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		return fmt.Errorf("publish to %s: %w", name, err)
	}
	return nil
}

// declare idempotently sets up a durable queue and binds it to the exchange.
func declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	if err := ch.QueueBind(name, name, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", name, err)
	}

	return nil
}
