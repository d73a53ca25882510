package notify

import (
	"fmt"
	"strings"

	"lobby-service/internal/model"
)

type Event string

const (
	EventCreated   Event = "created"
	EventJoined    Event = "joined"
	EventLeft      Event = "left"
	EventActivated Event = "activated"
	EventStarting  Event = "starting"
)

// WebhookPayload is the Discord execute-webhook body.
type WebhookPayload struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type eventStyle struct {
	emoji string
	label string
	color int
}

var styles = map[Event]eventStyle{
	EventCreated:   {"🎮", "New session", 0x5865F2},
	EventJoined:    {"➕", "Player joined", 0x3BA55C},
	EventLeft:      {"➖", "Player left", 0xFAA61A},
	EventActivated: {"✅", "Lobby ready", 0x57F287},
	EventStarting:  {"⏰", "Session starting", 0xED4245},
}

// BuildMessage renders the webhook payload for a session event. sessionURL and
// actorName are optional.
func BuildMessage(event Event, session *model.Session, guildName, sessionURL, actorName string) WebhookPayload {
	style, ok := styles[event]
	if !ok {
		style = eventStyle{"🔔", "Session update", 0x99AAB5}
	}

	content := fmt.Sprintf("%s %s in %s: **%s**", style.emoji, style.label, guildName, session.Title)
	if sessionURL != "" {
		content += "\n" + sessionURL
	}

	fields := []EmbedField{
		{Name: "When", Value: FormatSchedule(session.Schedule)},
		{Name: "Players", Value: fmt.Sprintf("%d/%d • %s", len(session.Participants), session.MaxPlayers, seatSummary(session.RemainingSeats())), Inline: true},
		{Name: "Status", Value: statusLabel(session.Status), Inline: true},
	}
	if sessionURL != "" {
		fields = append(fields, EmbedField{Name: "Session", Value: fmt.Sprintf("[Open session](%s)", sessionURL)})
	}

	return WebhookPayload{
		Content: content,
		Embeds: []Embed{{
			Title:       session.Title,
			Description: reason(event, actorName) + " " + capacityClause(event, session),
			URL:         sessionURL,
			Color:       style.color,
			Fields:      fields,
		}},
	}
}

func reason(event Event, actorName string) string {
	actor := strings.TrimSpace(actorName)
	switch event {
	case EventCreated:
		if actor != "" {
			return actor + " opened a new session."
		}
		return "A new session was opened."
	case EventJoined:
		if actor != "" {
			return actor + " joined the session."
		}
		return "A player joined the session."
	case EventLeft:
		if actor != "" {
			return actor + " left the session."
		}
		return "A player left the session."
	case EventActivated:
		return "Every seat is taken."
	case EventStarting:
		return "The session is starting now."
	default:
		return "The session was updated."
	}
}

func capacityClause(event Event, session *model.Session) string {
	if event == EventActivated {
		return "Lobby is ready."
	}
	remaining := session.RemainingSeats()
	if remaining == 0 {
		return "Lobby is full."
	}
	return seatSummary(remaining) + "."
}

func seatSummary(remaining int) string {
	switch remaining {
	case 0:
		return "Full"
	case 1:
		return "1 seat left"
	default:
		return fmt.Sprintf("%d seats left", remaining)
	}
}

func statusLabel(status model.SessionStatus) string {
	if status == model.StatusActive {
		return "Active • ready to play"
	}
	return "Open • filling seats"
}

// FormatSchedule renders a schedule with Discord timestamp markers, which
// clients show in the reader's own timezone.
func FormatSchedule(s model.Schedule) string {
	switch s.Kind {
	case model.ScheduleAllDay:
		return fmt.Sprintf("<t:%d:D> (all day, <t:%d:R>)", s.Date.Unix(), s.Date.Unix())
	case model.ScheduleTimed:
		start := s.StartAt.Unix()
		if s.EndAt != nil {
			return fmt.Sprintf("<t:%d:F> → <t:%d:t> (<t:%d:R>)", start, s.EndAt.Unix(), start)
		}
		return fmt.Sprintf("<t:%d:F> (<t:%d:R>)", start, start)
	case model.ScheduleNone:
		return "Whenever the lobby fills"
	default:
		return "Not scheduled"
	}
}
