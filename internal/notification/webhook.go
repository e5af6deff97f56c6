package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// WebhookNotifier POSTs intents to a generic HTTP endpoint as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("comp", "webhook").Logger(),
	}
}

func (w *WebhookNotifier) NotifyIntent(ctx context.Context, intent *model.OrderIntent) error {
	return w.post(ctx, model.MarshalEvent(intent))
}

func (w *WebhookNotifier) NotifyRejected(ctx context.Context, rejected *model.RejectedIntent) error {
	return w.post(ctx, model.MarshalEvent(rejected))
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	w.log.Debug().Str("url", w.url).Msg("intent delivered")
	return nil
}
