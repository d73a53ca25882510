package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type RouterConfig struct {
	JWTSecret           []byte
	RateLimitMax        int
	RateLimitExpiration time.Duration
}

// SetupRoutes mounts the /v1 API. Guild routes and the legacy ungrouped
// routes share one handler; the absent :slug param selects legacy scope.
func SetupRoutes(app *fiber.App, sessions *SessionHandler, tokens *DeviceTokenHandler, cfg RouterConfig) {
	v1 := app.Group("/v1")
	v1.Use(RateLimiter(cfg.RateLimitMax, cfg.RateLimitExpiration))
	v1.Use(AuthMiddleware(cfg.JWTSecret))

	guildSessions := v1.Group("/guilds/:slug/sessions")
	guildSessions.Get("/", sessions.ListSessions)
	guildSessions.Post("/", sessions.CreateSession)
	guildSessions.Get("/:id", sessions.GetSession)
	guildSessions.Patch("/:id", sessions.UpdateSession)
	guildSessions.Delete("/:id", sessions.DeleteSession)
	guildSessions.Post("/:id/join", sessions.JoinSession)
	guildSessions.Post("/:id/leave", sessions.LeaveSession)

	legacySessions := v1.Group("/sessions")
	legacySessions.Get("/", sessions.ListSessions)
	legacySessions.Post("/", sessions.CreateSession)
	legacySessions.Get("/:id", sessions.GetSession)
	legacySessions.Post("/:id/join", sessions.JoinSession)
	legacySessions.Post("/:id/leave", sessions.LeaveSession)

	v1.Post("/me/device-token", tokens.RegisterDeviceToken)
}
