package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-smssync-gateway/internal/app"
	"golang-smssync-gateway/internal/bootstrap"
	"golang-smssync-gateway/internal/config"
	"golang-smssync-gateway/internal/domain"
	"golang-smssync-gateway/internal/metrics"
	"golang-smssync-gateway/internal/middleware"
	"golang-smssync-gateway/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	log := bootstrap.Logger("smssync-api")
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
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

	store, closeStore, err := bootstrap.OpenStore(ctx, conf, log)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, inProcess, err := bootstrap.OpenQueue(conf, log)
	if err != nil {
		return err
	}

	tr := app.NewTransport(conf.SMSSync, store, queue, log)
	defer func() {
		if err := tr.Stop(context.Background()); err != nil {
			log.Error("stop transport", "err", err)
		}
	}()

	// Nobody else can drain an in-process queue.
	if inProcess {
		if err := tr.Start(ctx); err != nil {
			return fmt.Errorf("start transport: %w", err)
		}
		err := tr.ConsumeInbound(ctx, func(_ context.Context, msg domain.Message) error {
			log.Info("inbound sms notification", "msg_id", msg.ID, "from", msg.From, "hash", msg.Hash)
			return nil
		})
		if err != nil {
			return fmt.Errorf("consume inbound: %w", err)
		}
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:               "smssync-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             1 * 1024 * 1024,
		ErrorHandler:          transport.ErrorHandler(log),
	})

	fiberApp.Use(recover.New(recover.Config{EnableStackTrace: true}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.Metrics())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORS(conf.CORSOrigins))
	fiberApp.Use(middleware.NewRateLimiter(ctx, conf.RateLimitPerMin).Middleware())

	handler := transport.NewHandler(tr, log)
	handler.RegisterProbes(fiberApp)
	fiberApp.Use("/api", middleware.SubmitLimiter(conf.RateLimitPerMin, time.Minute))
	handler.Register(fiberApp, conf.SyncPath, middleware.Secret(conf.SMSSync.Secret))

	errChan := make(chan error, 1)
	go func() {
		log.Info("smssync-api started", "addr", conf.HTTPAddr, "path", conf.SyncPath, "transport", conf.SMSSync.Transport)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}

	log.Info("smssync-api stopped gracefully")
	return nil
}
