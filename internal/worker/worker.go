package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lobby-service/internal/config"
	"lobby-service/internal/events"
	"lobby-service/internal/repository"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const (
	DeadLetterSubject = "session.activated.failed"
	maxRetries        = 3
)

var pushTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lobby_push_notifications_total",
		Help: "Push notifications attempted for activated lobbies, by outcome",
	},
	[]string{"outcome"},
)

// Pusher is satisfied by *apns2.Client.
type Pusher interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Worker struct {
	tokens     repository.DeviceTokenRepository
	pusher     Pusher
	topic      string
	timeout    time.Duration
	retryDelay time.Duration
	deadLetter func(data []byte) error
}

type Option func(*Worker)

func WithRetryDelay(d time.Duration) Option {
	return func(w *Worker) { w.retryDelay = d }
}

// WithDeadLetter receives the raw event once token lookup has failed
// maxRetries times.
func WithDeadLetter(f func(data []byte) error) Option {
	return func(w *Worker) { w.deadLetter = f }
}

// New returns a worker. A nil pusher runs the worker in mock mode, logging
// each push instead of sending it.
func New(tokens repository.DeviceTokenRepository, pusher Pusher, topic string, opts ...Option) *Worker {
	w := &Worker{
		tokens:     tokens,
		pusher:     pusher,
		topic:      topic,
		timeout:    10 * time.Second,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewAPNsClient returns nil when credentials are not configured.
func NewAPNsClient(cfg config.APNs) (*apns2.Client, error) {
	if !cfg.Enabled() {
		slog.Info("APNs credentials not found or invalid. Worker will run in MOCK mode.")
		return nil, nil
	}

	slog.Info("APNs credentials found, initializing APNs client...")
	authKey, err := token.AuthKeyFromFile(cfg.AuthKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs auth key: %w", err)
	}

	authToken := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	if cfg.Production {
		return apns2.NewTokenClient(authToken).Production(), nil
	}
	return apns2.NewTokenClient(authToken).Development(), nil
}

// Subscribe listens for activations on nc. Events that exhaust their retries
// are republished to DeadLetterSubject unless a dead-letter sink was set.
func (w *Worker) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	if w.deadLetter == nil {
		w.deadLetter = func(data []byte) error { return nc.Publish(DeadLetterSubject, data) }
	}
	return nc.Subscribe(events.SubjectSessionActivated, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		w.HandleSessionActivated(ctx, msg.Data)
	})
}

// HandleSessionActivated tells every participant of a freshly filled lobby
// that it is ready. The device token lookup is retried and then dead-lettered;
// APNs push failures are logged per device and never retried.
func (w *Worker) HandleSessionActivated(ctx context.Context, data []byte) int {
	var event events.SessionActivatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.ErrorContext(ctx, "Error unmarshalling event", slog.String("error", err.Error()))
		return 0
	}

	slog.InfoContext(ctx, "Event received: session activated",
		slog.String("session_id", event.SessionID.String()),
		slog.Int("participants", len(event.ParticipantIDs)),
	)

	deviceTokens, err := w.lookupTokens(ctx, event)
	if err != nil {
		slog.ErrorContext(ctx, "FAILED COMPLETELY to retrieve device tokens",
			slog.String("session_id", event.SessionID.String()),
			slog.Int("attempts", maxRetries),
			slog.String("error", err.Error()),
		)
		w.sendToDeadLetter(ctx, data)
		return 0
	}

	if len(deviceTokens) == 0 {
		slog.InfoContext(ctx, "No device tokens found. No notifications sent.", slog.String("session_id", event.SessionID.String()))
		return 0
	}

	body := payload.NewPayload().
		AlertTitle("Your lobby is ready").
		AlertBody(fmt.Sprintf("%s has every seat filled.", event.Title)).
		Sound("default").
		Custom("session_id", event.SessionID.String())

	sent := 0
	for _, deviceToken := range deviceTokens {
		notification := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       w.topic,
			Payload:     body,
		}

		if w.pusher == nil {
			slog.InfoContext(ctx, "SUCCESS (mock): push notification sent", slog.String("device_token", deviceToken))
			pushTotal.WithLabelValues("mock").Inc()
			sent++
			continue
		}

		res, err := w.pusher.Push(notification)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "FAILED to send notification", slog.String("error", err.Error()))
			pushTotal.WithLabelValues("error").Inc()
		case res.Sent():
			slog.InfoContext(ctx, "SUCCESS: notification sent", slog.String("apns_id", res.ApnsID))
			pushTotal.WithLabelValues("sent").Inc()
			sent++
		default:
			slog.WarnContext(ctx, "FAILED: notification not sent", slog.String("reason", res.Reason))
			pushTotal.WithLabelValues("rejected").Inc()
		}
	}

	return sent
}

func (w *Worker) lookupTokens(ctx context.Context, event events.SessionActivatedEvent) ([]string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		tokens, err := w.tokens.ListForUsers(ctx, event.ParticipantIDs)
		if err == nil {
			return tokens, nil
		}
		lastErr = err

		slog.WarnContext(ctx, "Failed retrieving device tokens, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.retryDelay):
		}
	}
	return nil, lastErr
}

func (w *Worker) sendToDeadLetter(ctx context.Context, data []byte) {
	if w.deadLetter == nil {
		return
	}
	if err := w.deadLetter(data); err != nil {
		slog.ErrorContext(ctx, "Failed to publish to DLQ", slog.String("subject", DeadLetterSubject), slog.String("error", err.Error()))
		return
	}
	slog.InfoContext(ctx, "Published failed activation to DLQ", slog.String("subject", DeadLetterSubject))
}
