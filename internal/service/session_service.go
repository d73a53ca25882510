package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lobby-service/internal/events"
	"lobby-service/internal/model"
	"lobby-service/internal/notify"
	"lobby-service/internal/repository"

	"github.com/google/uuid"
)

// StartScheduler keeps the deferred "session starting" notification in step
// with a session.
type StartScheduler interface {
	Schedule(guild *model.Guild, session *model.Session, sessionURL string)
	Cancel(guildID, sessionID uuid.UUID)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID      uuid.UUID
	DisplayName string
	AvatarURL   *string
}

type JoinOptions struct {
	Confidence  model.Confidence
	JoinStartAt *time.Time
	JoinEndAt   *time.Time
}

// An empty guildSlug addresses legacy sessions that belong to no guild.
type SessionService interface {
	ListSessions(ctx context.Context, guildSlug string, actor Actor) ([]model.Session, error)
	GetSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID) (*model.Session, error)
	CreateSession(ctx context.Context, guildSlug string, actor Actor, draft model.SessionDraft) (model.MutationResult, error)
	UpdateSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID, patch model.SessionPatch) (model.MutationResult, error)
	DeleteSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID) (*model.Session, error)
	JoinSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID, opts JoinOptions) (model.MutationResult, error)
	LeaveSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID) (model.MutationResult, error)
	RestoreSchedules(ctx context.Context) (int, error)
}

type Options struct {
	PublicBaseURL string
	SendTimeout   time.Duration
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	guildRepo   repository.GuildRepository
	scheduler   StartScheduler
	sender      notify.Sender
	publisher   events.EventPublisher
	opts        Options
	now         func() time.Time
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	guildRepo repository.GuildRepository,
	scheduler StartScheduler,
	sender notify.Sender,
	publisher events.EventPublisher,
	opts Options,
) SessionService {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &sessionService{
		sessionRepo: sessionRepo,
		guildRepo:   guildRepo,
		scheduler:   scheduler,
		sender:      sender,
		publisher:   publisher,
		opts:        opts,
		now:         time.Now,
	}
}

func (s *sessionService) ListSessions(ctx context.Context, guildSlug string, actor Actor) ([]model.Session, error) {
	guild, _, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return nil, err
	}
	return s.sessionRepo.ListSessions(ctx, guildID(guild))
}

func (s *sessionService) GetSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID) (*model.Session, error) {
	guild, _, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return nil, err
	}
	return s.loadScoped(ctx, guild, sessionID)
}

func (s *sessionService) CreateSession(ctx context.Context, guildSlug string, actor Actor, draft model.SessionDraft) (model.MutationResult, error) {
	guild, _, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return model.MutationResult{}, err
	}

	result, err := s.sessionRepo.CreateSession(ctx, draft, actor.UserID, guildID(guild))
	if err != nil {
		s.logFailure(ctx, "create", err)
		return model.MutationResult{}, err
	}
	created := result.Session

	slog.InfoContext(ctx, "Session created", slog.String("session_id", created.ID.String()), slog.String("guild", guildSlug))

	if guild != nil && guild.OnSessionCreate {
		s.announce(guild, notify.EventCreated, created, actor.DisplayName)
	}
	go s.publisher.PublishSessionCreated(created)
	s.reschedule(guild, created)

	return result, nil
}

func (s *sessionService) UpdateSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID, patch model.SessionPatch) (model.MutationResult, error) {
	guild, role, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return model.MutationResult{}, err
	}
	if err := s.authorizeManage(ctx, guild, role, actor, sessionID); err != nil {
		return model.MutationResult{}, err
	}

	result, err := s.sessionRepo.UpdateSession(ctx, sessionID, patch, guildID(guild))
	if err != nil {
		s.logFailure(ctx, "update", err)
		return model.MutationResult{}, err
	}

	if result.Activated {
		s.onActivated(guild, result.Session)
	}
	s.reschedule(guild, result.Session)

	return result, nil
}

func (s *sessionService) DeleteSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID) (*model.Session, error) {
	guild, role, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeManage(ctx, guild, role, actor, sessionID); err != nil {
		return nil, err
	}

	deleted, err := s.sessionRepo.DeleteSession(ctx, sessionID, guildID(guild))
	if err != nil {
		s.logFailure(ctx, "delete", err)
		return nil, err
	}
	if deleted == nil {
		return nil, model.ErrSessionNotFound
	}

	if guild != nil {
		s.scheduler.Cancel(guild.ID, deleted.ID)
	}

	slog.InfoContext(ctx, "Session deleted", slog.String("session_id", deleted.ID.String()))

	return deleted, nil
}

func (s *sessionService) JoinSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID, opts JoinOptions) (model.MutationResult, error) {
	guild, _, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return model.MutationResult{}, err
	}

	participant := model.Participant{
		UserID:      actor.UserID,
		DisplayName: displayName(actor),
		AvatarURL:   actor.AvatarURL,
		Confidence:  opts.Confidence,
		JoinStartAt: opts.JoinStartAt,
		JoinEndAt:   opts.JoinEndAt,
	}

	result, err := s.sessionRepo.JoinSession(ctx, sessionID, participant, guildID(guild))
	if err != nil {
		s.logFailure(ctx, "join", err)
		return model.MutationResult{}, err
	}

	if guild != nil && guild.OnSessionJoin {
		s.announce(guild, notify.EventJoined, result.Session, participant.DisplayName)
	}
	go s.publisher.PublishSessionJoined(result.Session, actor.UserID)
	if result.Activated {
		s.onActivated(guild, result.Session)
	}
	s.reschedule(guild, result.Session)

	return result, nil
}

func (s *sessionService) LeaveSession(ctx context.Context, guildSlug string, actor Actor, sessionID uuid.UUID) (model.MutationResult, error) {
	guild, _, err := s.resolveGuild(ctx, guildSlug, actor)
	if err != nil {
		return model.MutationResult{}, err
	}

	result, err := s.sessionRepo.LeaveSession(ctx, sessionID, actor.UserID, guildID(guild))
	if err != nil {
		s.logFailure(ctx, "leave", err)
		return model.MutationResult{}, err
	}
	if !result.Removed {
		return result, nil
	}

	if guild != nil && guild.OnSessionJoin {
		s.announce(guild, notify.EventLeft, result.Session, displayName(actor))
	}
	s.reschedule(guild, result.Session)

	return result, nil
}

// RestoreSchedules re-arms start notifications for every guild session that
// has not started yet. Timers live in memory only, so this runs at boot.
func (s *sessionService) RestoreSchedules(ctx context.Context) (int, error) {
	sessions, err := s.sessionRepo.ListScheduledAfter(ctx, s.now())
	if err != nil {
		return 0, err
	}

	guilds := make(map[uuid.UUID]*model.Guild)
	restored := 0
	for i := range sessions {
		session := &sessions[i]
		if session.GuildID == nil {
			continue
		}

		guild, ok := guilds[*session.GuildID]
		if !ok {
			guild, err = s.guildRepo.FindByID(ctx, *session.GuildID)
			if err != nil {
				return restored, fmt.Errorf("load guild %s: %w", session.GuildID, err)
			}
			guilds[*session.GuildID] = guild
		}
		if guild == nil {
			continue
		}

		s.reschedule(guild, session)
		restored++
	}

	return restored, nil
}

func (s *sessionService) resolveGuild(ctx context.Context, slug string, actor Actor) (*model.Guild, model.GuildRole, error) {
	if slug == "" {
		return nil, "", nil
	}

	guild, err := s.guildRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, "", err
	}
	if guild == nil {
		return nil, "", model.ErrGuildNotFound
	}

	role, err := s.guildRepo.MemberRole(ctx, guild.ID, actor.UserID)
	if err != nil {
		return nil, "", err
	}
	if role == "" {
		return nil, "", model.ErrNotGuildMember
	}

	return guild, role, nil
}

func (s *sessionService) loadScoped(ctx context.Context, guild *model.Guild, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessionRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.ErrSessionNotFound
	}
	if !session.BelongsTo(guildID(guild)) {
		return nil, model.ErrGuildMismatch
	}
	return session, nil
}

func (s *sessionService) authorizeManage(ctx context.Context, guild *model.Guild, role model.GuildRole, actor Actor, sessionID uuid.UUID) error {
	session, err := s.loadScoped(ctx, guild, sessionID)
	if err != nil {
		return err
	}
	if session.CreatorID == actor.UserID || role.CanManage() {
		return nil
	}
	return model.ErrInsufficientRole
}

func (s *sessionService) onActivated(guild *model.Guild, session *model.Session) {
	if guild != nil && guild.OnSessionActivate {
		s.announce(guild, notify.EventActivated, session, "")
	}
	go s.publisher.PublishSessionActivated(session)
}

func (s *sessionService) reschedule(guild *model.Guild, session *model.Session) {
	if guild == nil {
		return
	}
	s.scheduler.Schedule(guild, session, s.sessionURL(guild, session))
}

// announce posts a webhook message without waiting for delivery.
func (s *sessionService) announce(guild *model.Guild, event notify.Event, session *model.Session, actorName string) {
	if guild.WebhookURL == nil || *guild.WebhookURL == "" {
		return
	}
	payload := notify.BuildMessage(event, session, guild.Name, s.sessionURL(guild, session), actorName)
	notify.SendDetached(s.sender, payload, *guild.WebhookURL, s.opts.SendTimeout)
}

func (s *sessionService) sessionURL(guild *model.Guild, session *model.Session) string {
	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	if base == "" || guild == nil {
		return ""
	}
	return fmt.Sprintf("%s/guilds/%s/sessions/%s", base, guild.Slug, session.ID)
}

func (s *sessionService) logFailure(ctx context.Context, operation string, err error) {
	kind := model.KindOf(err)
	if kind == model.KindUnexpected {
		slog.ErrorContext(ctx, "Session operation failed", slog.String("operation", operation), slog.String("error", err.Error()))
		return
	}
	slog.InfoContext(ctx, "Session operation rejected",
		slog.String("operation", operation),
		slog.String("error_kind", string(kind)),
		slog.String("error", err.Error()),
	)
}

func guildID(guild *model.Guild) *uuid.UUID {
	if guild == nil {
		return nil
	}
	id := guild.ID
	return &id
}

func displayName(actor Actor) string {
	if name := strings.TrimSpace(actor.DisplayName); name != "" {
		return name
	}
	return "Player"
}
