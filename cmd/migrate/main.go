package main

import (
	"context"
	"os"
	"time"

	"golang-smssync-gateway/internal/adapters/db/postgres"
	"golang-smssync-gateway/internal/bootstrap"
	"golang-smssync-gateway/internal/config"
)

func main() {
	log := bootstrap.Logger("migrate")

	conf, err := config.FromEnv()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		log.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	log.Info("running migrations")
	if err := repo.Migrate(ctx); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}
	log.Info("migration complete", "table", "messages")
}
