package ports

import (
	"context"

	"golang-smssync-gateway/internal/domain"
)

// JobHandler processes a single job. A returned error asks the queue to
// redeliver the job.
type JobHandler func(ctx context.Context, msg domain.Message) error

// JobQueue is a durable asynchronous job queue keyed by queue name.
type JobQueue interface {
	// Enqueue publishes msg as a job on the named queue.
	Enqueue(ctx context.Context, queue string, msg domain.Message) error

	// Process registers a consumer with the given number of workers on the
	// named queue. It returns once the consumer is registered.
	Process(ctx context.Context, queue string, concurrency int, handler JobHandler) error

	// Shutdown stops consumers, waits for in-flight jobs until ctx is done
	// and releases the connection.
	Shutdown(ctx context.Context) error

	// ShuttingDown reports whether Shutdown has been called.
	ShuttingDown() bool
}
