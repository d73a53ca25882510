package model_test

import (
	"testing"
	"time"

	"lobby-service/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, maxPlayers int, schedule model.Schedule) *model.Session {
	t.Helper()
	guildID := uuid.New()
	s, err := model.NewSession(model.SessionDraft{Title: "  Friday raid  ", MaxPlayers: maxPlayers, Schedule: schedule}, uuid.New(), &guildID, time.Now())
	require.NoError(t, err)
	return s
}

func player(id uuid.UUID) model.Participant {
	return model.Participant{UserID: id, DisplayName: "player", JoinedAt: time.Now()}
}

func TestNewSession(t *testing.T) {
	s := newSession(t, 4, model.NoSchedule())
	require.Equal(t, "Friday raid", s.Title)
	require.Equal(t, model.StatusOpen, s.Status)
	require.Empty(t, s.Participants)
	require.NotEqual(t, uuid.Nil, s.ID)

	_, err := model.NewSession(model.SessionDraft{Title: " ab ", MaxPlayers: 2}, uuid.New(), nil, time.Now())
	require.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = model.NewSession(model.SessionDraft{Title: "valid", MaxPlayers: 0}, uuid.New(), nil, time.Now())
	require.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestLifecycle_JoinJoinLeave(t *testing.T) {
	s := newSession(t, 2, model.NoSchedule())
	a, b := uuid.New(), uuid.New()

	res, err := model.ApplyJoin(s, player(a))
	require.NoError(t, err)
	require.False(t, res.Activated)
	require.Equal(t, model.StatusOpen, res.Session.Status)

	res, err = model.ApplyJoin(res.Session, player(b))
	require.NoError(t, err)
	require.True(t, res.Activated)
	require.Equal(t, model.StatusActive, res.Session.Status)

	res = model.ApplyLeave(res.Session, a)
	require.False(t, res.Activated)
	require.True(t, res.Removed)
	require.Equal(t, model.StatusOpen, res.Session.Status)
	require.Len(t, res.Session.Participants, 1)
	require.Equal(t, b, res.Session.Participants[0].UserID)
}

func TestApplyJoin_DoesNotMutateInput(t *testing.T) {
	s := newSession(t, 3, model.NoSchedule())
	_, err := model.ApplyJoin(s, player(uuid.New()))
	require.NoError(t, err)
	require.Empty(t, s.Participants)
}

func TestApplyJoin_FullSessionIsConflict(t *testing.T) {
	s := newSession(t, 1, model.NoSchedule())
	res, err := model.ApplyJoin(s, player(uuid.New()))
	require.NoError(t, err)
	require.True(t, res.Activated)

	_, err = model.ApplyJoin(res.Session, player(uuid.New()))
	require.ErrorIs(t, err, model.ErrSessionFull)
	require.Equal(t, model.KindConflict, model.KindOf(err))
	require.Len(t, res.Session.Participants, 1)
}

func TestApplyJoin_DuplicateIsConflict(t *testing.T) {
	s := newSession(t, 3, model.NoSchedule())
	id := uuid.New()
	res, err := model.ApplyJoin(s, player(id))
	require.NoError(t, err)

	_, err = model.ApplyJoin(res.Session, player(id))
	require.ErrorIs(t, err, model.ErrAlreadyJoined)
	require.Equal(t, model.KindConflict, model.KindOf(err))
}

func TestApplyJoin_NotActivatedWhenAlreadyActive(t *testing.T) {
	s := newSession(t, 3, model.NoSchedule())
	s.Status = model.StatusActive
	res, err := model.ApplyJoin(s, player(uuid.New()))
	require.NoError(t, err)
	require.False(t, res.Activated)
	require.Equal(t, model.StatusOpen, res.Session.Status)
}

func TestApplyJoin_DefaultsAndValidatesConfidence(t *testing.T) {
	s := newSession(t, 3, model.NoSchedule())
	res, err := model.ApplyJoin(s, player(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, model.ConfidenceDefinite, res.Session.Participants[0].Confidence)

	p := player(uuid.New())
	p.Confidence = "perhaps"
	_, err = model.ApplyJoin(s, p)
	require.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestApplyLeave_AbsentUserIsTolerated(t *testing.T) {
	s := newSession(t, 2, model.NoSchedule())
	res, err := model.ApplyJoin(s, player(uuid.New()))
	require.NoError(t, err)

	out := model.ApplyLeave(res.Session, uuid.New())
	require.False(t, out.Activated)
	require.False(t, out.Removed)
	require.Len(t, out.Session.Participants, 1)
	require.Equal(t, model.StatusOpen, out.Session.Status)
}

func TestApplyLeave_NeverActivates(t *testing.T) {
	s := newSession(t, 2, model.NoSchedule())
	a := uuid.New()
	res, _ := model.ApplyJoin(s, player(a))
	res, _ = model.ApplyJoin(res.Session, player(uuid.New()))
	require.True(t, res.Activated)

	out := model.ApplyLeave(res.Session, a)
	require.False(t, out.Activated)
}

func TestApplyUpdate_StatusOverride(t *testing.T) {
	s := newSession(t, 4, model.NoSchedule())
	res, err := model.ApplyJoin(s, player(uuid.New()))
	require.NoError(t, err)

	active := model.StatusActive
	out, err := model.ApplyUpdate(res.Session, model.SessionPatch{Status: &active})
	require.NoError(t, err)
	require.True(t, out.Activated)
	require.Equal(t, model.StatusActive, out.Session.Status)

	again, err := model.ApplyUpdate(out.Session, model.SessionPatch{Status: &active})
	require.NoError(t, err)
	require.False(t, again.Activated)

	open := model.StatusOpen
	reopened, err := model.ApplyUpdate(again.Session, model.SessionPatch{Status: &open})
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, reopened.Session.Status)
	require.False(t, reopened.Activated)

	bogus := model.SessionStatus("closed")
	_, err = model.ApplyUpdate(s, model.SessionPatch{Status: &bogus})
	require.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestApplyUpdate_LoweringMaxPlayersToHeadcountActivates(t *testing.T) {
	s := newSession(t, 4, model.NoSchedule())
	res, _ := model.ApplyJoin(s, player(uuid.New()))
	res, _ = model.ApplyJoin(res.Session, player(uuid.New()))

	two := 2
	out, err := model.ApplyUpdate(res.Session, model.SessionPatch{MaxPlayers: &two})
	require.NoError(t, err)
	require.True(t, out.Activated)
	require.Equal(t, model.StatusActive, out.Session.Status)

	five := 5
	out, err = model.ApplyUpdate(out.Session, model.SessionPatch{MaxPlayers: &five})
	require.NoError(t, err)
	require.False(t, out.Activated)
	require.Equal(t, model.StatusOpen, out.Session.Status)
}

func TestApplyUpdate_LoweringMaxPlayersBelowHeadcountIsRejected(t *testing.T) {
	s := newSession(t, 4, model.NoSchedule())
	res, _ := model.ApplyJoin(s, player(uuid.New()))
	res, _ = model.ApplyJoin(res.Session, player(uuid.New()))

	one := 1
	_, err := model.ApplyUpdate(res.Session, model.SessionPatch{MaxPlayers: &one})
	var e *model.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, model.KindValidation, e.Kind)
	require.Equal(t, "maxPlayers", e.Field)
}

func TestApplyUpdate_TitleAndSchedule(t *testing.T) {
	s := newSession(t, 4, model.NoSchedule())
	title := "  New title "
	schedule := model.AllDay(time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC))
	out, err := model.ApplyUpdate(s, model.SessionPatch{Title: &title, Schedule: &schedule})
	require.NoError(t, err)
	require.Equal(t, "New title", out.Session.Title)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), out.Session.Schedule.Date)
	require.Equal(t, model.StatusOpen, out.Session.Status)

	short := "no"
	_, err = model.ApplyUpdate(s, model.SessionPatch{Title: &short})
	require.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestValidateJoinWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	timed := model.Timed(start, &end)
	at := func(h int) *time.Time { v := start.Add(time.Duration(h) * time.Hour); return &v }

	require.NoError(t, model.ValidateJoinWindow(timed, at(1), at(2)))
	require.NoError(t, model.ValidateJoinWindow(timed, nil, nil))
	require.Error(t, model.ValidateJoinWindow(timed, at(-1), at(2)))
	require.Error(t, model.ValidateJoinWindow(timed, at(1), at(5)))
	require.Error(t, model.ValidateJoinWindow(timed, at(2), at(1)))

	openEnded := model.Timed(start, nil)
	require.NoError(t, model.ValidateJoinWindow(openEnded, at(1), at(48)))

	day := model.AllDay(start)
	require.NoError(t, model.ValidateJoinWindow(day, at(-17), at(5)))
	require.Error(t, model.ValidateJoinWindow(day, at(-19), nil))

	require.NoError(t, model.ValidateJoinWindow(model.NoSchedule(), at(-100), at(100)))
}

func TestBelongsTo(t *testing.T) {
	g := uuid.New()
	other := uuid.New()
	s := &model.Session{GuildID: &g}
	require.True(t, s.BelongsTo(&g))
	require.False(t, s.BelongsTo(&other))
	require.False(t, s.BelongsTo(nil))

	legacy := &model.Session{}
	require.True(t, legacy.BelongsTo(nil))
	require.False(t, legacy.BelongsTo(&g))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, model.ErrorKind(""), model.KindOf(nil))
	require.Equal(t, model.KindForbidden, model.KindOf(model.ErrGuildMismatch))
	require.Equal(t, model.KindNotFound, model.KindOf(model.ErrSessionNotFound))
	require.Equal(t, model.KindUnexpected, model.KindOf(errSentinel{}))
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }
