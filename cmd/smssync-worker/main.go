package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang-smssync-gateway/internal/app"
	"golang-smssync-gateway/internal/bootstrap"
	"golang-smssync-gateway/internal/config"
	"golang-smssync-gateway/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := bootstrap.Logger("smssync-worker")
	if err := run(log); err != nil {
		log.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf, err := config.FromEnv()
	if err != nil {
		return err
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Adapters ─────────────────────────────────────────────────────────────
	store, closeStore, err := bootstrap.OpenStore(ctx, conf, log)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, _, err := bootstrap.OpenQueue(conf, log)
	if err != nil {
		return err
	}

	// ── Transport ────────────────────────────────────────────────────────────
	tr := app.NewTransport(conf.SMSSync, store, queue, log)
	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	probes := fiber.New(fiber.Config{AppName: "smssync-worker", DisableStartupMessage: true})
	probes.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	probes.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	go func() {
		if err := probes.Listen(conf.MetricsAddr); err != nil {
			log.Error("metrics listener", "err", err)
		}
	}()

	log.Info("smssync-worker started", "queue", tr.Options().QueueName, "concurrency", tr.Options().Concurrency)
	<-ctx.Done()
	log.Info("shutting down smssync-worker")

	// The transport stops itself once ctx is done.
	<-tr.Done()
	_ = probes.Shutdown()
	log.Info("smssync-worker stopped")
	return nil
}
