package api

import (
	"log/slog"

	"lobby-service/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type DeviceTokenHandler struct {
	tokenRepo repository.DeviceTokenRepository
	validate  *validator.Validate
}

func NewDeviceTokenHandler(tokenRepo repository.DeviceTokenRepository) *DeviceTokenHandler {
	return &DeviceTokenHandler{
		tokenRepo: tokenRepo,
		validate:  validator.New(),
	}
}

type RegisterTokenRequest struct {
	DeviceToken string `json:"device_token" validate:"required"`
}

func (h *DeviceTokenHandler) RegisterDeviceToken(c *fiber.Ctx) error {
	actor, err := ActorFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var req RegisterTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	if err := h.tokenRepo.Register(c.UserContext(), actor.UserID, req.DeviceToken); err != nil {
		slog.ErrorContext(c.UserContext(), "Error registering device token", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not register device token"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Device token registered successfully"})
}
