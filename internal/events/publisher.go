package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"lobby-service/internal/model"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	SubjectSessionCreated   = "session.created"
	SubjectSessionJoined    = "session.joined"
	SubjectSessionActivated = "session.activated"
)

type EventPublisher interface {
	PublishSessionCreated(session *model.Session) error
	PublishSessionJoined(session *model.Session, userID uuid.UUID) error
	PublishSessionActivated(session *model.Session) error
}

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(natsURL string) (*NatsPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("lobby-service"))

	if err != nil {
		return nil, err
	}

	return &NatsPublisher{conn: nc}, nil
}

func (p *NatsPublisher) Close() {
	p.conn.Drain()
}

type SessionCreatedEvent struct {
	EventType  string         `json:"event_type"`
	SessionID  uuid.UUID      `json:"session_id"`
	GuildID    *uuid.UUID     `json:"guild_id,omitempty"`
	CreatorID  uuid.UUID      `json:"creator_id"`
	Title      string         `json:"title"`
	MaxPlayers int            `json:"max_players"`
	Schedule   model.Schedule `json:"schedule"`
}

type SessionJoinedEvent struct {
	EventType string     `json:"event_type"`
	SessionID uuid.UUID  `json:"session_id"`
	GuildID   *uuid.UUID `json:"guild_id,omitempty"`
	UserID    uuid.UUID  `json:"user_id"`
	JoinedAt  time.Time  `json:"joined_at"`
}

type SessionActivatedEvent struct {
	EventType      string      `json:"event_type"`
	SessionID      uuid.UUID   `json:"session_id"`
	GuildID        *uuid.UUID  `json:"guild_id,omitempty"`
	Title          string      `json:"title"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	ActivatedAt    time.Time   `json:"activated_at"`
}

func NewSessionCreatedEvent(session *model.Session) SessionCreatedEvent {
	return SessionCreatedEvent{
		EventType:  SubjectSessionCreated,
		SessionID:  session.ID,
		GuildID:    session.GuildID,
		CreatorID:  session.CreatorID,
		Title:      session.Title,
		MaxPlayers: session.MaxPlayers,
		Schedule:   session.Schedule,
	}
}

func NewSessionActivatedEvent(session *model.Session, at time.Time) SessionActivatedEvent {
	ids := make([]uuid.UUID, 0, len(session.Participants))
	for _, p := range session.Participants {
		ids = append(ids, p.UserID)
	}
	return SessionActivatedEvent{
		EventType:      SubjectSessionActivated,
		SessionID:      session.ID,
		GuildID:        session.GuildID,
		Title:          session.Title,
		ParticipantIDs: ids,
		ActivatedAt:    at,
	}
}

func (p *NatsPublisher) PublishSessionCreated(session *model.Session) error {
	return p.publish(SubjectSessionCreated, NewSessionCreatedEvent(session))
}

func (p *NatsPublisher) PublishSessionJoined(session *model.Session, userID uuid.UUID) error {
	return p.publish(SubjectSessionJoined, SessionJoinedEvent{
		EventType: SubjectSessionJoined,
		SessionID: session.ID,
		GuildID:   session.GuildID,
		UserID:    userID,
		JoinedAt:  time.Now(),
	})
}

func (p *NatsPublisher) PublishSessionActivated(session *model.Session) error {
	return p.publish(SubjectSessionActivated, NewSessionActivatedEvent(session, time.Now()))
}

func (p *NatsPublisher) publish(subject string, event any) error {
	eventJSON, err := json.Marshal(event)

	if err != nil {
		slog.Error("Error marshalling event JSON", slog.String("subject", subject), slog.String("error", err.Error()))
		return err
	}

	err = p.conn.Publish(subject, eventJSON)

	if err != nil {
		slog.Error("Error publishing to NATS", slog.String("subject", subject), slog.String("error", err.Error()))
		return err
	}

	slog.Debug("Published event to NATS", slog.String("subject", subject))

	return nil
}

// NopPublisher drops every event. It stands in when NATS is unreachable.
type NopPublisher struct{}

func (NopPublisher) PublishSessionCreated(*model.Session) error           { return nil }
func (NopPublisher) PublishSessionJoined(*model.Session, uuid.UUID) error { return nil }
func (NopPublisher) PublishSessionActivated(*model.Session) error         { return nil }
