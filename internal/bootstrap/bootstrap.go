// Package bootstrap opens the store and job queue the binaries run on.
// DATABASE_URL=memory and AMQP_URL=memory select the in-process adapters.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	dbmemory "golang-smssync-gateway/internal/adapters/db/memory"
	"golang-smssync-gateway/internal/adapters/db/postgres"
	qmemory "golang-smssync-gateway/internal/adapters/queue/memory"
	"golang-smssync-gateway/internal/adapters/queue/rabbitmq"
	"golang-smssync-gateway/internal/config"
	"golang-smssync-gateway/internal/ports"
)

const InMemory = "memory"

// OpenStore returns the configured message store and a close function.
func OpenStore(ctx context.Context, conf config.Config, log *slog.Logger) (ports.MessageStore, func() error, error) {
	if conf.DatabaseURL == InMemory {
		log.Warn("using in-memory message store, data is lost on exit")
		return dbmemory.New(), func() error { return nil }, nil
	}

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return repo, repo.Close, nil
}

// OpenQueue returns the configured job queue. inProcess reports whether the
// queue lives in this process, in which case the caller must also consume it.
func OpenQueue(conf config.Config, log *slog.Logger) (queue ports.JobQueue, inProcess bool, err error) {
	if conf.AMQPURL == InMemory {
		log.Warn("using in-memory job queue, jobs are lost on exit")
		return qmemory.New(conf.QueueBuffer, log), true, nil
	}

	q, err := rabbitmq.Dial(conf.AMQPURL, log)
	if err != nil {
		return nil, false, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return q, false, nil
}

// Logger is the JSON logger every binary writes to stdout.
func Logger(name string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})).With("service", name)
}
