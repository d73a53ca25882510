package repository_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"lobby-service/internal/model"
	repo "lobby-service/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

var sessionCols = []string{"id", "guild_id", "creator_id", "title", "max_players", "status", "schedule_kind", "schedule_date", "schedule_start_at", "schedule_end_at", "created_at"}

var participantCols = []string{"session_id", "user_id", "display_name", "avatar_url", "confidence", "join_start_at", "join_end_at", "joined_at"}

const (
	lockQuery         = `SELECT .+ FROM sessions WHERE id = \$1 FOR UPDATE`
	participantsQuery = `FROM session_participants WHERE session_id IN \(\$1\)`
)

func newMock(t *testing.T) (repo.SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repo.NewPostgresSessionRepository(sqlx.NewDb(db, "pgx")), mock
}

func sessionRow(id uuid.UUID, guildID *uuid.UUID, maxPlayers int, status string) *sqlmock.Rows {
	var guild driver.Value
	if guildID != nil {
		guild = guildID.String()
	}
	start := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(sessionCols).AddRow(
		id.String(), guild, uuid.NewString(), "Raid night", maxPlayers, status,
		"timed", nil, start, nil, time.Now(),
	)
}

func participantRows(sessionID uuid.UUID, userIDs ...uuid.UUID) *sqlmock.Rows {
	rows := sqlmock.NewRows(participantCols)
	for _, uid := range userIDs {
		rows.AddRow(sessionID.String(), uid.String(), "player", nil, "definite", nil, nil, time.Now())
	}
	return rows
}

func TestPostgresSessionRepository_GetSession_NoRows(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(sessionCols))

	s, err := r.GetSession(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, s)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_GetSession_WithParticipants(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sessionRow(id, &guildID, 4, "open"))
	mock.ExpectQuery(participantsQuery).
		WithArgs(id.String()).
		WillReturnRows(participantRows(id, a, b))

	s, err := r.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, id, s.ID)
	require.Equal(t, guildID, *s.GuildID)
	require.Equal(t, model.ScheduleTimed, s.Schedule.Kind)
	require.Len(t, s.Participants, 2)
	require.Equal(t, a, s.Participants[0].UserID)
	require.Equal(t, model.ConfidenceDefinite, s.Participants[0].Confidence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_ListSessions_Empty(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery(`FROM sessions WHERE guild_id IS NULL ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows(sessionCols))

	sessions, err := r.ListSessions(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_CreateSession(t *testing.T) {
	r, mock := newMock(t)
	guildID := uuid.New()

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(sqlmock.AnyArg(), guildID.String(), sqlmock.AnyArg(), "Raid night", 4, "open", "all-day",
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	draft := model.SessionDraft{Title: " Raid night ", MaxPlayers: 4, Schedule: model.AllDay(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))}
	res, err := r.CreateSession(context.Background(), draft, uuid.New(), &guildID)
	require.NoError(t, err)
	require.False(t, res.Activated)
	require.Equal(t, model.StatusOpen, res.Session.Status)
	require.Equal(t, "Raid night", res.Session.Title)
	require.Empty(t, res.Session.Participants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_CreateSession_InvalidDraft(t *testing.T) {
	r, mock := newMock(t)

	_, err := r.CreateSession(context.Background(), model.SessionDraft{Title: "x", MaxPlayers: 2}, uuid.New(), nil)
	require.Equal(t, model.KindValidation, model.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_JoinSession_Activates(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()
	existing, joiner := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 2, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id, existing))
	mock.ExpectExec(`INSERT INTO session_participants`).
		WithArgs(id.String(), joiner.String(), "Mika", nil, "definite", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE sessions SET status = \$2 WHERE id = \$1`).
		WithArgs(id.String(), "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := r.JoinSession(context.Background(), id, model.Participant{UserID: joiner, DisplayName: "Mika"}, &guildID)
	require.NoError(t, err)
	require.True(t, res.Activated)
	require.Equal(t, model.StatusActive, res.Session.Status)
	require.Len(t, res.Session.Participants, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_JoinSession_Full(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 1, "active"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id, uuid.New()))
	mock.ExpectRollback()

	_, err := r.JoinSession(context.Background(), id, model.Participant{UserID: uuid.New()}, &guildID)
	require.ErrorIs(t, err, model.ErrSessionFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_JoinSession_UniqueViolation(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 3, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id))
	mock.ExpectExec(`INSERT INTO session_participants`).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := r.JoinSession(context.Background(), id, model.Participant{UserID: uuid.New()}, &guildID)
	require.ErrorIs(t, err, model.ErrAlreadyJoined)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_JoinSession_GuildMismatch(t *testing.T) {
	r, mock := newMock(t)
	id, owner, other := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &owner, 3, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id))
	mock.ExpectRollback()

	_, err := r.JoinSession(context.Background(), id, model.Participant{UserID: uuid.New()}, &other)
	require.ErrorIs(t, err, model.ErrGuildMismatch)
	require.Equal(t, model.KindForbidden, model.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_JoinSession_NotFound(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	_, err := r.JoinSession(context.Background(), uuid.New(), model.Participant{UserID: uuid.New()}, nil)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_LeaveSession(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 2, "active"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id, a, b))
	mock.ExpectExec(`DELETE FROM session_participants WHERE session_id = \$1 AND user_id = \$2`).
		WithArgs(id.String(), a.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET status = \$2 WHERE id = \$1`).
		WithArgs(id.String(), "open").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := r.LeaveSession(context.Background(), id, a, &guildID)
	require.NoError(t, err)
	require.False(t, res.Activated)
	require.True(t, res.Removed)
	require.Equal(t, model.StatusOpen, res.Session.Status)
	require.Len(t, res.Session.Participants, 1)
	require.Equal(t, b, res.Session.Participants[0].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_LeaveSession_NotParticipant(t *testing.T) {
	r, mock := newMock(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, nil, 2, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id, uuid.New()))
	mock.ExpectCommit()

	res, err := r.LeaveSession(context.Background(), id, uuid.New(), nil)
	require.NoError(t, err)
	require.False(t, res.Removed)
	require.Len(t, res.Session.Participants, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_UpdateSession_RejectsShrinkBelowHeadcount(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 4, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id, uuid.New(), uuid.New()))
	mock.ExpectRollback()

	one := 1
	_, err := r.UpdateSession(context.Background(), id, model.SessionPatch{MaxPlayers: &one}, &guildID)
	require.Equal(t, model.KindValidation, model.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_UpdateSession_ForceActive(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 4, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id, uuid.New()))
	mock.ExpectExec(`UPDATE sessions\s+SET title = \$2`).
		WithArgs(id.String(), "Raid night", 4, "active", "timed", nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	active := model.StatusActive
	res, err := r.UpdateSession(context.Background(), id, model.SessionPatch{Status: &active}, &guildID)
	require.NoError(t, err)
	require.True(t, res.Activated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_DeleteSession(t *testing.T) {
	r, mock := newMock(t)
	id, guildID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sessionRow(id, &guildID, 4, "open"))
	mock.ExpectQuery(participantsQuery).WithArgs(id.String()).WillReturnRows(participantRows(id))
	mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1`).WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := r.DeleteSession(context.Background(), id, &guildID)
	require.NoError(t, err)
	require.Equal(t, id, s.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepository_DeleteSession_Missing(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	s, err := r.DeleteSession(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	require.Nil(t, s)
	require.NoError(t, mock.ExpectationsWereMet())
}
