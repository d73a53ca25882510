package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lobby-service/internal/api"
	"lobby-service/internal/config"
	"lobby-service/internal/repository"
	"lobby-service/internal/worker"
)

func main() {
	config.LoadDotEnv()

	api.SetupGlobalHandler("notification-worker")

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sqlx.Connect("pgx", cfg.Database.URL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	slog.Info("Notification worker connected to the database.")

	apnsClient, err := worker.NewAPNsClient(cfg.APNs)
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	var pusher worker.Pusher
	if apnsClient != nil {
		pusher = apnsClient
	}

	nc, err := nats.Connect(cfg.NatsURL, nats.Name("notification-worker"))
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Drain()

	w := worker.New(repository.NewPostgresDeviceTokenRepository(db), pusher, cfg.APNs.Topic)
	if _, err := w.Subscribe(nc); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	slog.Info("Notification worker started, waiting for events...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down notification worker...")
}
