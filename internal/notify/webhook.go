package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"lobby-service/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var webhookDeliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lobby_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome",
	},
	[]string{"outcome"},
)

// Sender delivers a payload to a webhook. Implementations are best effort and
// must not report failures to the caller.
type Sender interface {
	Send(ctx context.Context, payload WebhookPayload, webhookURL string)
}

type WebhookSender struct {
	client *http.Client
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSender) Send(ctx context.Context, payload WebhookPayload, webhookURL string) {
	if err := s.post(ctx, payload, webhookURL); err != nil {
		webhookDeliveries.WithLabelValues("failed").Inc()
		slog.WarnContext(ctx, "Webhook delivery failed",
			slog.String("error", err.Error()),
			slog.String("error_kind", string(model.KindOf(err))),
		)
		return
	}
	webhookDeliveries.WithLabelValues("sent").Inc()
}

func (s *WebhookSender) post(ctx context.Context, payload WebhookPayload, webhookURL string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.NewTransportError(fmt.Sprintf("encode webhook payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return model.NewTransportError(fmt.Sprintf("build webhook request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return model.NewTransportError(fmt.Sprintf("post webhook: %v", err))
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= 300 {
		return model.NewTransportError(fmt.Sprintf("webhook responded with status %d", res.StatusCode))
	}
	return nil
}

// SendDetached hands the payload to sender on its own goroutine and returns
// immediately. The send gets a fresh context bounded by timeout so it outlives
// the request that triggered it.
func SendDetached(sender Sender, payload WebhookPayload, webhookURL string, timeout time.Duration) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Recovered from panic in webhook delivery", slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		sender.Send(ctx, payload, webhookURL)
	}()
}
