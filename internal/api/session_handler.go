package api

import (
	"errors"
	"log/slog"
	"time"

	"lobby-service/internal/model"
	"lobby-service/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type SessionHandler struct {
	sessionService service.SessionService
	validate       *validator.Validate
}

func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		validate:       validator.New(),
	}
}

type CreateSessionRequest struct {
	Title      string         `json:"title" validate:"required"`
	MaxPlayers int            `json:"maxPlayers" validate:"required,min=1,max=100"`
	Schedule   map[string]any `json:"schedule,omitempty"`
}

type UpdateSessionRequest struct {
	Title      *string        `json:"title,omitempty"`
	MaxPlayers *int           `json:"maxPlayers,omitempty" validate:"omitempty,min=1,max=100"`
	Status     *string        `json:"status,omitempty" validate:"omitempty,oneof=open active"`
	Schedule   map[string]any `json:"schedule,omitempty"`
}

type JoinSessionRequest struct {
	Confidence  string     `json:"confidence,omitempty" validate:"omitempty,oneof=definite maybe undecided"`
	JoinStartAt *time.Time `json:"joinStartAt,omitempty"`
	JoinEndAt   *time.Time `json:"joinEndAt,omitempty"`
}

type MutationResponse struct {
	Session   *model.Session `json:"session"`
	Activated bool           `json:"activated"`
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	actor, err := ActorFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	sessions, err := h.sessionService.ListSessions(c.UserContext(), c.Params("slug"), actor)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(sessions)
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actor, sessionID, ok := h.target(c)
	if !ok {
		return nil
	}

	session, err := h.sessionService.GetSession(c.UserContext(), c.Params("slug"), actor, sessionID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(session)
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	actor, err := ActorFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request CreateSessionRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	schedule, err := model.ParseSchedule(request.Schedule)
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.sessionService.CreateSession(c.UserContext(), c.Params("slug"), actor, model.SessionDraft{
		Title:      request.Title,
		MaxPlayers: request.MaxPlayers,
		Schedule:   schedule,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result.Session)
}

func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	actor, sessionID, ok := h.target(c)
	if !ok {
		return nil
	}

	var request UpdateSessionRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	patch := model.SessionPatch{
		Title:      request.Title,
		MaxPlayers: request.MaxPlayers,
	}
	if request.Status != nil {
		status := model.SessionStatus(*request.Status)
		patch.Status = &status
	}
	if request.Schedule != nil {
		schedule, err := model.ParseSchedule(request.Schedule)
		if err != nil {
			return respondError(c, err)
		}
		patch.Schedule = &schedule
	}

	result, err := h.sessionService.UpdateSession(c.UserContext(), c.Params("slug"), actor, sessionID, patch)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(MutationResponse{Session: result.Session, Activated: result.Activated})
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	actor, sessionID, ok := h.target(c)
	if !ok {
		return nil
	}

	deleted, err := h.sessionService.DeleteSession(c.UserContext(), c.Params("slug"), actor, sessionID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Session deleted", "session": deleted})
}

func (h *SessionHandler) JoinSession(c *fiber.Ctx) error {
	actor, sessionID, ok := h.target(c)
	if !ok {
		return nil
	}

	var request JoinSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
		}
		if err := h.validate.Struct(&request); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
		}
	}

	result, err := h.sessionService.JoinSession(c.UserContext(), c.Params("slug"), actor, sessionID, service.JoinOptions{
		Confidence:  model.Confidence(request.Confidence),
		JoinStartAt: request.JoinStartAt,
		JoinEndAt:   request.JoinEndAt,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(MutationResponse{Session: result.Session, Activated: result.Activated})
}

func (h *SessionHandler) LeaveSession(c *fiber.Ctx) error {
	actor, sessionID, ok := h.target(c)
	if !ok {
		return nil
	}

	result, err := h.sessionService.LeaveSession(c.UserContext(), c.Params("slug"), actor, sessionID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(MutationResponse{Session: result.Session, Activated: result.Activated})
}

// target resolves the caller and the :id param. When it reports false the
// error response has already been written.
func (h *SessionHandler) target(c *fiber.Ctx) (service.Actor, uuid.UUID, bool) {
	actor, err := ActorFromClaims(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
		return service.Actor{}, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID format"})
		return service.Actor{}, uuid.Nil, false
	}

	return actor, sessionID, true
}

func respondError(c *fiber.Ctx, err error) error {
	var modelErr *model.Error
	if !errors.As(err, &modelErr) {
		slog.ErrorContext(c.UserContext(), "Unhandled session error", slog.String("path", c.Path()), slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	switch modelErr.Kind {
	case model.KindValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": modelErr.Message, "field": modelErr.Field})
	case model.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": modelErr.Message})
	case model.KindForbidden:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": modelErr.Message})
	case model.KindConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": modelErr.Message})
	case model.KindTransport:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": modelErr.Message})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": modelErr.Message})
	}
}
