// Package memory provides an in-process JobQueue backed by buffered channels.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang-smssync-gateway/internal/domain"
	"golang-smssync-gateway/internal/ports"
)

const maxAttempts = 3

type job struct {
	msg      domain.Message
	attempts int
}

// Queue implements ports.JobQueue in memory. Jobs do not survive a restart.
type Queue struct {
	mu     sync.Mutex
	queues map[string]chan job
	buffer int

	stop         chan struct{}
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
	log          *slog.Logger
}

// New returns a Queue whose named queues hold up to buffer pending jobs each.
func New(buffer int, log *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Queue{
		queues: make(map[string]chan job),
		buffer: buffer,
		stop:   make(chan struct{}),
		log:    log,
	}
}

func (q *Queue) channel(name string) chan job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan job, q.buffer)
		q.queues[name] = ch
	}
	return ch
}

// Enqueue adds a job. It fails with domain.ErrQueueFull instead of waiting
// when the queue already holds buffer jobs.
func (q *Queue) Enqueue(ctx context.Context, name string, msg domain.Message) error {
	if q.shuttingDown.Load() {
		return domain.ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	select {
	case q.channel(name) <- job{msg: msg}:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", name, domain.ErrQueueFull)
	}
}

// Process starts concurrency workers draining the named queue.
func (q *Queue) Process(ctx context.Context, name string, concurrency int, handler ports.JobHandler) error {
	if q.shuttingDown.Load() {
		return domain.ErrQueueClosed
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	// In-flight jobs finish even when the caller's context is cancelled;
	// Shutdown bounds how long we wait for them.
	jobCtx := context.WithoutCancel(ctx)
	ch := q.channel(name)

	q.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-q.stop:
					return
				case j := <-ch:
					q.handle(jobCtx, name, ch, j, handler)
				}
			}
		}()
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, name string, ch chan job, j job, handler ports.JobHandler) {
	err := handler(ctx, j.msg)
	if err == nil {
		return
	}

	j.attempts++
	if j.attempts >= maxAttempts || q.shuttingDown.Load() {
		q.log.Error("job failed, dropping", "queue", name, "msg_id", j.msg.ID, "attempts", j.attempts, "err", err)
		return
	}

	q.log.Warn("job failed, requeueing", "queue", name, "msg_id", j.msg.ID, "attempts", j.attempts, "err", err)
	select {
	case ch <- j:
	default:
		q.log.Error("queue full, dropping failed job", "queue", name, "msg_id", j.msg.ID)
	}
}

// Next removes and returns the oldest pending job of a queue that has no
// consumer, waiting until one is available or ctx is done. It is meant for
// tests that inspect what was published.
func (q *Queue) Next(ctx context.Context, name string) (domain.Message, error) {
	select {
	case j := <-q.channel(name):
		return j.msg, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

// Pending returns the number of jobs waiting on a queue. Like Next it exists
// for tests.
func (q *Queue) Pending(name string) int {
	return len(q.channel(name))
}

// Shutdown stops all workers and waits for in-flight jobs until ctx is done.
// Calling it more than once is a no-op.
func (q *Queue) Shutdown(ctx context.Context) error {
	if !q.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	close(q.stop)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}

// ShuttingDown reports whether Shutdown was called.
func (q *Queue) ShuttingDown() bool {
	return q.shuttingDown.Load()
}
