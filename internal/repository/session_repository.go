package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lobby-service/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const uniqueViolation = "23505"

type SessionRepository interface {
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	ListSessions(ctx context.Context, guildID *uuid.UUID) ([]model.Session, error)
	ListScheduledAfter(ctx context.Context, after time.Time) ([]model.Session, error)
	CreateSession(ctx context.Context, draft model.SessionDraft, creatorID uuid.UUID, guildID *uuid.UUID) (model.MutationResult, error)
	UpdateSession(ctx context.Context, id uuid.UUID, patch model.SessionPatch, guildID *uuid.UUID) (model.MutationResult, error)
	DeleteSession(ctx context.Context, id uuid.UUID, guildID *uuid.UUID) (*model.Session, error)
	JoinSession(ctx context.Context, id uuid.UUID, participant model.Participant, guildID *uuid.UUID) (model.MutationResult, error)
	LeaveSession(ctx context.Context, id uuid.UUID, userID uuid.UUID, guildID *uuid.UUID) (model.MutationResult, error)
}

type sessionRow struct {
	ID              uuid.UUID  `db:"id"`
	GuildID         *uuid.UUID `db:"guild_id"`
	CreatorID       uuid.UUID  `db:"creator_id"`
	Title           string     `db:"title"`
	MaxPlayers      int        `db:"max_players"`
	Status          string     `db:"status"`
	ScheduleKind    string     `db:"schedule_kind"`
	ScheduleDate    *time.Time `db:"schedule_date"`
	ScheduleStartAt *time.Time `db:"schedule_start_at"`
	ScheduleEndAt   *time.Time `db:"schedule_end_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

type participantRow struct {
	SessionID uuid.UUID `db:"session_id"`
	model.Participant
}

const sessionColumns = `id, guild_id, creator_id, title, max_players, status, schedule_kind, schedule_date, schedule_start_at, schedule_end_at, created_at`

const participantColumns = `session_id, user_id, display_name, avatar_url, confidence, join_start_at, join_end_at, joined_at`

type postgresSessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresSessionRepository(db *sqlx.DB) SessionRepository {
	return &postgresSessionRepository{db: db, now: time.Now}
}

func (r *postgresSessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	sessions, err := r.withParticipants(ctx, r.db, []sessionRow{row})
	if err != nil {
		return nil, err
	}

	return &sessions[0], nil
}

func (r *postgresSessionRepository) ListSessions(ctx context.Context, guildID *uuid.UUID) ([]model.Session, error) {
	var rows []sessionRow
	var err error

	if guildID != nil {
		query := `SELECT ` + sessionColumns + ` FROM sessions WHERE guild_id = $1 ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &rows, query, *guildID)
	} else {
		query := `SELECT ` + sessionColumns + ` FROM sessions WHERE guild_id IS NULL ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &rows, query)
	}

	if err != nil {
		return nil, err
	}

	return r.withParticipants(ctx, r.db, rows)
}

// ListScheduledAfter returns guild sessions whose start instant lies after
// the given time.
func (r *postgresSessionRepository) ListScheduledAfter(ctx context.Context, after time.Time) ([]model.Session, error) {
	var rows []sessionRow
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE guild_id IS NOT NULL
		  AND ((schedule_kind = 'timed' AND schedule_start_at > $1)
		    OR (schedule_kind = 'all-day' AND schedule_date > $1))
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &rows, query, after); err != nil {
		return nil, err
	}

	return r.withParticipants(ctx, r.db, rows)
}

func (r *postgresSessionRepository) CreateSession(ctx context.Context, draft model.SessionDraft, creatorID uuid.UUID, guildID *uuid.UUID) (model.MutationResult, error) {
	session, err := model.NewSession(draft, creatorID, guildID, r.now())
	if err != nil {
		return model.MutationResult{}, err
	}

	kind, date, startAt, endAt := scheduleColumns(session.Schedule)
	query := `
		INSERT INTO sessions (id, guild_id, creator_id, title, max_players, status, schedule_kind, schedule_date, schedule_start_at, schedule_end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID, session.GuildID, session.CreatorID, session.Title, session.MaxPlayers, string(session.Status),
		kind, date, startAt, endAt, session.CreatedAt,
	)

	if err != nil {
		return model.MutationResult{}, err
	}

	return model.MutationResult{Session: session}, nil
}

func (r *postgresSessionRepository) UpdateSession(ctx context.Context, id uuid.UUID, patch model.SessionPatch, guildID *uuid.UUID) (model.MutationResult, error) {
	return r.mutate(ctx, id, guildID, func(tx *sqlx.Tx, current *model.Session) (model.MutationResult, error) {
		result, err := model.ApplyUpdate(current, patch)
		if err != nil {
			return model.MutationResult{}, err
		}

		s := result.Session
		kind, date, startAt, endAt := scheduleColumns(s.Schedule)
		query := `
			UPDATE sessions
			SET title = $2, max_players = $3, status = $4, schedule_kind = $5, schedule_date = $6, schedule_start_at = $7, schedule_end_at = $8
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, query, s.ID, s.Title, s.MaxPlayers, string(s.Status), kind, date, startAt, endAt); err != nil {
			return model.MutationResult{}, err
		}

		return result, nil
	})
}

func (r *postgresSessionRepository) DeleteSession(ctx context.Context, id uuid.UUID, guildID *uuid.UUID) (*model.Session, error) {
	result, err := r.mutate(ctx, id, guildID, func(tx *sqlx.Tx, current *model.Session) (model.MutationResult, error) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, current.ID); err != nil {
			return model.MutationResult{}, err
		}
		return model.MutationResult{Session: current}, nil
	})

	if errors.Is(err, model.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return result.Session, nil
}

// JoinSession adds a participant while holding the session row lock, so two
// concurrent joins cannot both take the last seat.
func (r *postgresSessionRepository) JoinSession(ctx context.Context, id uuid.UUID, participant model.Participant, guildID *uuid.UUID) (model.MutationResult, error) {
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = r.now().UTC()
	}

	return r.mutate(ctx, id, guildID, func(tx *sqlx.Tx, current *model.Session) (model.MutationResult, error) {
		result, err := model.ApplyJoin(current, participant)
		if err != nil {
			return model.MutationResult{}, err
		}

		joined := result.Session.Participants[len(result.Session.Participants)-1]
		insert := `
			INSERT INTO session_participants (session_id, user_id, display_name, avatar_url, confidence, join_start_at, join_end_at, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err = tx.ExecContext(ctx, insert,
			current.ID, joined.UserID, joined.DisplayName, joined.AvatarURL, string(joined.Confidence),
			joined.JoinStartAt, joined.JoinEndAt, joined.JoinedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return model.MutationResult{}, model.ErrAlreadyJoined
			}
			return model.MutationResult{}, err
		}

		if err := updateStatus(ctx, tx, result.Session); err != nil {
			return model.MutationResult{}, err
		}

		return result, nil
	})
}

func (r *postgresSessionRepository) LeaveSession(ctx context.Context, id uuid.UUID, userID uuid.UUID, guildID *uuid.UUID) (model.MutationResult, error) {
	return r.mutate(ctx, id, guildID, func(tx *sqlx.Tx, current *model.Session) (model.MutationResult, error) {
		if !current.HasParticipant(userID) {
			return model.MutationResult{Session: current}, nil
		}

		result := model.ApplyLeave(current, userID)

		query := `DELETE FROM session_participants WHERE session_id = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, query, current.ID, userID); err != nil {
			return model.MutationResult{}, err
		}

		if err := updateStatus(ctx, tx, result.Session); err != nil {
			return model.MutationResult{}, err
		}

		return result, nil
	})
}

// mutate loads the session under a row lock, checks the guild scope and runs
// fn inside the same transaction.
func (r *postgresSessionRepository) mutate(ctx context.Context, id uuid.UUID, guildID *uuid.UUID, fn func(tx *sqlx.Tx, current *model.Session) (model.MutationResult, error)) (model.MutationResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.MutationResult{}, err
	}
	defer tx.Rollback()

	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MutationResult{}, model.ErrSessionNotFound
		}
		return model.MutationResult{}, err
	}

	sessions, err := r.withParticipants(ctx, tx, []sessionRow{row})
	if err != nil {
		return model.MutationResult{}, err
	}
	current := &sessions[0]

	if !current.BelongsTo(guildID) {
		return model.MutationResult{}, model.ErrGuildMismatch
	}

	result, err := fn(tx, current)
	if err != nil {
		return model.MutationResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.MutationResult{}, fmt.Errorf("commit session %s: %w", id, err)
	}

	return result, nil
}

func (r *postgresSessionRepository) withParticipants(ctx context.Context, q sqlx.QueryerContext, rows []sessionRow) ([]model.Session, error) {
	sessions := make([]model.Session, 0, len(rows))
	if len(rows) == 0 {
		return sessions, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID.String()
	}

	query, args, err := sqlx.In(`SELECT `+participantColumns+` FROM session_participants WHERE session_id IN (?) ORDER BY joined_at ASC`, ids)
	if err != nil {
		return nil, err
	}

	var participants []participantRow
	if err := sqlx.SelectContext(ctx, q, &participants, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, err
	}

	bySession := make(map[uuid.UUID][]model.Participant, len(rows))
	for _, p := range participants {
		bySession[p.SessionID] = append(bySession[p.SessionID], p.Participant)
	}

	for _, row := range rows {
		s := row.toModel()
		if ps, ok := bySession[row.ID]; ok {
			s.Participants = ps
		}
		sessions = append(sessions, s)
	}

	return sessions, nil
}

func updateStatus(ctx context.Context, tx *sqlx.Tx, s *model.Session) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET status = $2 WHERE id = $1`, s.ID, string(s.Status))
	return err
}

func (row sessionRow) toModel() model.Session {
	s := model.Session{
		ID:           row.ID,
		GuildID:      row.GuildID,
		CreatorID:    row.CreatorID,
		Title:        row.Title,
		MaxPlayers:   row.MaxPlayers,
		Status:       model.SessionStatus(row.Status),
		Participants: []model.Participant{},
		Schedule:     model.NoSchedule(),
		CreatedAt:    row.CreatedAt,
	}

	switch model.ScheduleKind(row.ScheduleKind) {
	case model.ScheduleAllDay:
		if row.ScheduleDate != nil {
			s.Schedule = model.AllDay(*row.ScheduleDate)
		}
	case model.ScheduleTimed:
		if row.ScheduleStartAt != nil {
			s.Schedule = model.Timed(*row.ScheduleStartAt, row.ScheduleEndAt)
		}
	}

	return s
}

func scheduleColumns(s model.Schedule) (kind string, date, startAt, endAt *time.Time) {
	switch s.Kind {
	case model.ScheduleAllDay:
		d := s.Date
		return string(model.ScheduleAllDay), &d, nil, nil
	case model.ScheduleTimed:
		start := s.StartAt
		return string(model.ScheduleTimed), nil, &start, s.EndAt
	default:
		return string(model.ScheduleNone), nil, nil, nil
	}
}
