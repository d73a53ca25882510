package scheduler

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"lobby-service/internal/model"
	"lobby-service/internal/notify"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxTimerDelay is the longest delay a start notification is armed for,
// 2^31-1 milliseconds (about 24.8 days). Sessions further out are skipped
// until a later mutation re-schedules them.
const MaxTimerDelay = time.Duration(math.MaxInt32) * time.Millisecond

const defaultSendTimeout = 10 * time.Second

var pendingTimers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "lobby_pending_start_timers",
	Help: "Number of armed session start notifications",
})

// Timer is the handle returned by an AfterFunc implementation.
type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

// SessionCheck reports whether the session still exists when its timer fires.
type SessionCheck func(ctx context.Context, sessionID uuid.UUID) (bool, error)

type entry struct {
	timer  Timer
	gen    uint64
	fireAt time.Time
}

// Scheduler keeps at most one pending "session starting" notification per
// guild and session. It is safe for concurrent use.
type Scheduler struct {
	sender      notify.Sender
	now         func() time.Time
	afterFunc   AfterFunc
	maxDelay    time.Duration
	sendTimeout time.Duration
	exists      SessionCheck

	mu      sync.Mutex
	timers  map[string]entry
	nextGen uint64
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

func WithMaxDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.maxDelay = d }
}

func WithSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.sendTimeout = d }
}

// WithSessionCheck makes a firing timer skip sessions that were removed
// without a Cancel, such as rows dropped by a guild cascade delete.
func WithSessionCheck(check SessionCheck) Option {
	return func(s *Scheduler) { s.exists = check }
}

func New(sender notify.Sender, opts ...Option) *Scheduler {
	s := &Scheduler{
		sender:      sender,
		now:         time.Now,
		afterFunc:   func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		maxDelay:    MaxTimerDelay,
		sendTimeout: defaultSendTimeout,
		timers:      make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func Key(guildID, sessionID uuid.UUID) string {
	return guildID.String() + ":" + sessionID.String()
}

// Schedule replaces whatever notification is pending for the session with
// one matching its current schedule and the guild's settings. It never
// blocks on delivery.
func (s *Scheduler) Schedule(guild *model.Guild, session *model.Session, sessionURL string) {
	key := Key(guild.ID, session.ID)
	logger := slog.Default().With(slog.String("guild_id", guild.ID.String()), slog.String("session_id", session.ID.String()))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)

	if !guild.OnSessionStart || guild.WebhookURL == nil || *guild.WebhookURL == "" {
		return
	}

	startAt, ok := session.Schedule.StartInstant()
	if !ok {
		return
	}

	webhookURL := *guild.WebhookURL
	payload := notify.BuildMessage(notify.EventStarting, session, guild.Name, sessionURL, "")
	delay := startAt.Sub(s.now())

	if delay <= 0 {
		logger.Info("Session start already reached, sending notification now")
		notify.SendDetached(s.sender, payload, webhookURL, s.sendTimeout)
		return
	}

	if delay > s.maxDelay {
		logger.Debug("Session start too far ahead, notification not armed", slog.Duration("delay", delay))
		return
	}

	s.nextGen++
	gen := s.nextGen
	sessionID := session.ID
	timer := s.afterFunc(delay, func() {
		s.fire(key, gen, sessionID, payload, webhookURL)
	})
	s.timers[key] = entry{timer: timer, gen: gen, fireAt: startAt}
	pendingTimers.Set(float64(len(s.timers)))

	logger.Info("Session start notification armed", slog.Time("fire_at", startAt))
}

// Cancel drops the pending notification for the session, if any.
func (s *Scheduler) Cancel(guildID, sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(Key(guildID, sessionID))
}

// Pending reports when the session's notification will fire.
func (s *Scheduler) Pending(guildID, sessionID uuid.UUID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[Key(guildID, sessionID)]
	return e.fireAt, ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending notification.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, key)
	}
	pendingTimers.Set(0)
}

func (s *Scheduler) cancelLocked(key string) {
	e, ok := s.timers[key]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(s.timers, key)
	pendingTimers.Set(float64(len(s.timers)))
}

// fire runs on the timer goroutine. The registry entry is released after the
// send, whatever its outcome, unless a newer Schedule already replaced it.
func (s *Scheduler) fire(key string, gen uint64, sessionID uuid.UUID, payload notify.WebhookPayload, webhookURL string) {
	defer func() {
		s.mu.Lock()
		if e, ok := s.timers[key]; ok && e.gen == gen {
			delete(s.timers, key)
			pendingTimers.Set(float64(len(s.timers)))
		}
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic in start notification", slog.String("key", key), slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if s.exists != nil {
		ok, err := s.exists(ctx, sessionID)
		if err != nil {
			slog.Warn("Could not confirm session before start notification", slog.String("key", key), slog.String("error", err.Error()))
		} else if !ok {
			slog.Info("Session removed before its start, notification dropped", slog.String("key", key))
			return
		}
	}

	s.sender.Send(ctx, payload, webhookURL)
}
