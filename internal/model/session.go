package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusOpen   SessionStatus = "open"
	StatusActive SessionStatus = "active"
)

func (s SessionStatus) Valid() bool {
	return s == StatusOpen || s == StatusActive
}

type Confidence string

const (
	ConfidenceDefinite  Confidence = "definite"
	ConfidenceMaybe     Confidence = "maybe"
	ConfidenceUndecided Confidence = "undecided"
)

func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceDefinite, ConfidenceMaybe, ConfidenceUndecided:
		return true
	}
	return false
}

const (
	MinTitleLength = 3
	MaxTitleLength = 100
	MaxPlayersCap  = 100
)

type Participant struct {
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	DisplayName string     `db:"display_name" json:"display_name"`
	AvatarURL   *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	JoinedAt    time.Time  `db:"joined_at" json:"joined_at"`
	Confidence  Confidence `db:"confidence" json:"confidence"`
	JoinStartAt *time.Time `db:"join_start_at" json:"join_start_at,omitempty"`
	JoinEndAt   *time.Time `db:"join_end_at" json:"join_end_at,omitempty"`
}

// Session is a lobby owned by at most one guild. A nil GuildID marks a legacy
// ungrouped session.
type Session struct {
	ID           uuid.UUID     `json:"id"`
	GuildID      *uuid.UUID    `json:"guild_id,omitempty"`
	CreatorID    uuid.UUID     `json:"creator_id"`
	Title        string        `json:"title"`
	MaxPlayers   int           `json:"max_players"`
	Status       SessionStatus `json:"status"`
	Participants []Participant `json:"participants"`
	Schedule     Schedule      `json:"schedule"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (s *Session) HasParticipant(userID uuid.UUID) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (s *Session) RemainingSeats() int {
	return max(s.MaxPlayers-len(s.Participants), 0)
}

// BelongsTo reports whether the session may be addressed through guildID. A
// nil guildID addresses legacy sessions only.
func (s *Session) BelongsTo(guildID *uuid.UUID) bool {
	if guildID == nil || s.GuildID == nil {
		return guildID == nil && s.GuildID == nil
	}
	return *s.GuildID == *guildID
}

// MutationResult is returned by every mutating session operation. Activated is
// true only when this exact mutation moved the session from open to active.
// Removed is set by a leave that actually dropped a participant.
type MutationResult struct {
	Session   *Session
	Activated bool
	Removed   bool
}

// DeriveStatus is the capacity rule.
func DeriveStatus(participants, maxPlayers int) SessionStatus {
	if participants >= maxPlayers {
		return StatusActive
	}
	return StatusOpen
}

type SessionDraft struct {
	Title      string
	MaxPlayers int
	Schedule   Schedule
}

// NewSession validates a draft and returns a fresh open session with no
// participants.
func NewSession(draft SessionDraft, creatorID uuid.UUID, guildID *uuid.UUID, now time.Time) (*Session, error) {
	title, err := normalizeTitle(draft.Title)
	if err != nil {
		return nil, err
	}
	if err := validateMaxPlayers(draft.MaxPlayers); err != nil {
		return nil, err
	}
	return &Session{
		ID:           uuid.New(),
		GuildID:      guildID,
		CreatorID:    creatorID,
		Title:        title,
		MaxPlayers:   draft.MaxPlayers,
		Status:       StatusOpen,
		Participants: []Participant{},
		Schedule:     draft.Schedule,
		CreatedAt:    now.UTC(),
	}, nil
}

// ApplyJoin appends p and recomputes the status. A second join by the same
// user is a conflict, never a silent no-op.
func ApplyJoin(session *Session, p Participant) (MutationResult, error) {
	if session.HasParticipant(p.UserID) {
		return MutationResult{}, ErrAlreadyJoined
	}
	if len(session.Participants) >= session.MaxPlayers {
		return MutationResult{}, ErrSessionFull
	}
	if p.Confidence == "" {
		p.Confidence = ConfidenceDefinite
	}
	if !p.Confidence.Valid() {
		return MutationResult{}, NewValidationError("confidence", "confidence must be one of definite, maybe, undecided")
	}
	if err := ValidateJoinWindow(session.Schedule, p.JoinStartAt, p.JoinEndAt); err != nil {
		return MutationResult{}, err
	}

	wasActive := session.Status == StatusActive
	next := session.clone()
	next.Participants = append(next.Participants, p)
	next.Status = DeriveStatus(len(next.Participants), next.MaxPlayers)

	return MutationResult{
		Session:   next,
		Activated: !wasActive && next.Status == StatusActive,
	}, nil
}

// ApplyLeave removes userID if present. Leaving never activates a session.
func ApplyLeave(session *Session, userID uuid.UUID) MutationResult {
	next := session.clone()
	kept := next.Participants[:0]
	for _, p := range next.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	removed := len(kept) < len(session.Participants)
	next.Participants = kept
	next.Status = DeriveStatus(len(next.Participants), next.MaxPlayers)
	return MutationResult{Session: next, Removed: removed}
}

type SessionPatch struct {
	Title      *string
	MaxPlayers *int
	Status     *SessionStatus
	Schedule   *Schedule
}

// ApplyUpdate applies each present patch field. An explicit Status overrides
// the capacity rule. Lowering MaxPlayers below the current headcount is
// rejected.
func ApplyUpdate(session *Session, patch SessionPatch) (MutationResult, error) {
	next := session.clone()

	if patch.Title != nil {
		title, err := normalizeTitle(*patch.Title)
		if err != nil {
			return MutationResult{}, err
		}
		next.Title = title
	}
	if patch.MaxPlayers != nil {
		if err := validateMaxPlayers(*patch.MaxPlayers); err != nil {
			return MutationResult{}, err
		}
		if *patch.MaxPlayers < len(next.Participants) {
			return MutationResult{}, NewValidationError("maxPlayers", "maxPlayers cannot be lower than the current participant count")
		}
		next.MaxPlayers = *patch.MaxPlayers
	}
	if patch.Schedule != nil {
		next.Schedule = *patch.Schedule
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return MutationResult{}, NewValidationError("status", "status must be open or active")
		}
		next.Status = *patch.Status
	} else if patch.MaxPlayers != nil {
		next.Status = DeriveStatus(len(next.Participants), next.MaxPlayers)
	}

	return MutationResult{
		Session:   next,
		Activated: session.Status != StatusActive && next.Status == StatusActive,
	}, nil
}

// ValidateJoinWindow checks a participant's personal window against the
// session schedule.
func ValidateJoinWindow(schedule Schedule, start, end *time.Time) error {
	if start != nil && end != nil && !end.After(*start) {
		return NewValidationError("joinEndAt", "joinEndAt must be after joinStartAt")
	}

	var lower, upper *time.Time
	switch schedule.Kind {
	case ScheduleTimed:
		lower, upper = &schedule.StartAt, schedule.EndAt
	case ScheduleAllDay:
		dayEnd := schedule.Date.Add(24 * time.Hour)
		lower, upper = &schedule.Date, &dayEnd
	case ScheduleNone:
		return nil
	}

	for _, bound := range []struct {
		field string
		value *time.Time
	}{{"joinStartAt", start}, {"joinEndAt", end}} {
		if bound.value == nil {
			continue
		}
		if lower != nil && bound.value.Before(*lower) {
			return NewValidationError(bound.field, bound.field+" must fall within the session schedule")
		}
		if upper != nil && bound.value.After(*upper) {
			return NewValidationError(bound.field, bound.field+" must fall within the session schedule")
		}
	}
	return nil
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if len([]rune(title)) < MinTitleLength {
		return "", NewValidationError("title", "title must be at least 3 characters")
	}
	if len([]rune(title)) > MaxTitleLength {
		return "", NewValidationError("title", "title must be at most 100 characters")
	}
	return title, nil
}

func validateMaxPlayers(n int) error {
	if n < 1 || n > MaxPlayersCap {
		return NewValidationError("maxPlayers", "maxPlayers must be between 1 and 100")
	}
	return nil
}

func (s *Session) clone() *Session {
	next := *s
	next.Participants = append([]Participant(nil), s.Participants...)
	if next.Participants == nil {
		next.Participants = []Participant{}
	}
	return &next
}
