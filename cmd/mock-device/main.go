package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang-smssync-gateway/internal/adapters/device/smssync"
	"golang-smssync-gateway/internal/bootstrap"

	"github.com/google/uuid"
)

// mock-device behaves like an SMSSync phone: it polls for outbound work,
// acknowledges it, reports delivery after a delay, and every few polls
// forwards a fake inbound SMS.
func main() {
	log := bootstrap.Logger("mock-device")

	endpoint := getenv("SMSSYNC_ENDPOINT", "http://localhost:8080/smssync")
	secret := os.Getenv("SMSSYNC_SECRET")
	deviceID := getenv("DEVICE_ID", "mock-"+uuid.NewString()[:8])
	interval := time.Duration(atoi("POLL_INTERVAL_MS", 2000)) * time.Millisecond
	inboundEvery := atoi("INBOUND_EVERY", 5)

	client := smssync.New(endpoint, secret, deviceID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("mock-device polling", "endpoint", endpoint, "device_id", deviceID, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			log.Info("shutting down mock-device")
			return
		case <-ticker.C:
		}

		poll(ctx, client, log)

		if inboundEvery > 0 && tick%inboundEvery == 0 {
			hash := uuid.NewString()
			replies, err := client.Receive(ctx, "+255700000001", "", fmt.Sprintf("report #%d", tick), hash)
			if err != nil {
				log.Error("forward inbound sms", "err", err)
				continue
			}
			log.Info("inbound sms forwarded", "hash", hash, "replies", len(replies))
		}
	}
}

func poll(ctx context.Context, client *smssync.Client, log *slog.Logger) {
	pending, err := client.Pending(ctx)
	if err != nil {
		log.Error("fetch pending", "err", err)
		return
	}

	if len(pending) > 0 {
		uuids := make([]string, 0, len(pending))
		for _, env := range pending {
			log.Info("sending sms", "to", env.To, "uuid", env.UUID)
			uuids = append(uuids, env.UUID)
		}
		acked, err := client.Acknowledge(ctx, uuids)
		if err != nil {
			log.Error("acknowledge", "err", err)
			return
		}
		log.Info("acknowledged", "count", len(acked))
	}

	awaiting, err := client.AwaitingReports(ctx)
	if err != nil {
		log.Error("fetch awaiting reports", "err", err)
		return
	}
	if len(awaiting) == 0 {
		return
	}

	// Handsets confirm delivery a little after sending.
	time.Sleep(500 * time.Millisecond)
	n, err := client.ReportDelivered(ctx, awaiting)
	if err != nil {
		log.Error("report delivered", "err", err)
		return
	}
	log.Info("delivery reported", "messages", n)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
