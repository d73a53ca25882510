package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lobby-service/internal/api"
	"lobby-service/internal/config"
	"lobby-service/internal/events"
	"lobby-service/internal/jwt"
	"lobby-service/internal/notify"
	"lobby-service/internal/repository"
	"lobby-service/internal/scheduler"
	"lobby-service/internal/service"
	"lobby-service/internal/tracing"
	_ "lobby-service/migrations"
)

const serviceName = "lobby-service"

func main() {
	config.LoadDotEnv()

	api.SetupGlobalHandler(serviceName)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		cfg, err := config.LoadWorker()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		handleMigrations(cfg)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		handleToken(cfg, os.Args[2:])
		return
	}

	shutdownTracer, err := tracing.InitTracerProvider(serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("Error shutting down tracer provider", slog.String("error", err.Error()))
		}
	}()

	db := connectDB(cfg)
	defer db.Close()

	var publisher events.EventPublisher = events.NopPublisher{}
	natsPublisher, err := events.NewNatsPublisher(cfg.NatsURL)
	if err != nil {
		slog.Warn("Failed to connect to NATS, domain events are disabled", slog.String("error", err.Error()))
	} else {
		slog.Info("Successfully connected to NATS.")
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	sessionRepo := repository.NewPostgresSessionRepository(db)
	guildRepo := repository.NewPostgresGuildRepository(db)
	tokenRepo := repository.NewPostgresDeviceTokenRepository(db)

	sender := notify.NewWebhookSender(cfg.WebhookTimeout)
	startScheduler := scheduler.New(sender,
		scheduler.WithSendTimeout(cfg.WebhookTimeout),
		scheduler.WithSessionCheck(func(ctx context.Context, id uuid.UUID) (bool, error) {
			session, err := sessionRepo.GetSession(ctx, id)
			return session != nil, err
		}),
	)
	defer startScheduler.Stop()

	sessionService := service.NewSessionService(sessionRepo, guildRepo, startScheduler, sender, publisher, service.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		SendTimeout:   cfg.WebhookTimeout,
	})

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := sessionService.RestoreSchedules(restoreCtx)
	cancelRestore()
	if err != nil {
		slog.Error("Failed to restore start notifications", slog.String("error", err.Error()))
	} else {
		slog.Info("Restored start notifications", slog.Int("sessions", restored), slog.Int("armed", startScheduler.Len()))
	}

	app := fiber.New()
	app.Use(otelfiber.Middleware())
	app.Use(api.PrometheusMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": serviceName})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.SetupRoutes(app, api.NewSessionHandler(sessionService), api.NewDeviceTokenHandler(tokenRepo), api.RouterConfig{
		JWTSecret:           []byte(cfg.JWTSecret),
		RateLimitMax:        cfg.RateLimitMax,
		RateLimitExpiration: cfg.RateLimitExpiration,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("Shutting down lobby-service...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Listening lobby-service", slog.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("HTTP server stopped", slog.String("error", err.Error()))
	}
}

func connectDB(cfg *config.Config) *sqlx.DB {
	db, err := sqlx.Connect("pgx", cfg.Database.URL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	slog.Info("Successfully connected to the database.")
	return db
}

func handleMigrations(cfg *config.Config) {
	fmt.Println("Running database migrations...")

	db, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		log.Fatalf("failed to connect to database for migration: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		log.Fatalf("goose: failed to run migrations: %v", err)
	}

	fmt.Println("Migrations applied successfully!")
}

// handleToken prints a development access token: token <user-id> <name>.
func handleToken(cfg *config.Config, args []string) {
	if len(args) < 2 {
		log.Fatal("usage: server token <user-id> <display-name>")
	}

	userID, err := uuid.Parse(args[0])
	if err != nil {
		log.Fatalf("invalid user id: %v", err)
	}

	token, err := jwt.IssueAccessToken(userID, args[1], nil, []byte(cfg.JWTSecret), 24*time.Hour)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Println(token)
}
