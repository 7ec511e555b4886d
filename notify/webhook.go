package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// WebhookProvider posts notifications as JSON to an HTTP endpoint, which
// covers Slack-compatible incoming webhooks.
type WebhookProvider struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookProvider creates a webhook provider posting to url.
func NewWebhookProvider(url string, logger *slog.Logger) *WebhookProvider {
	return &WebhookProvider{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type webhookPayload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Send posts the notification to the webhook endpoint.
func (w *WebhookProvider) Send(ctx context.Context, title, body string) error {
	jsonData, err := json.Marshal(webhookPayload{Title: title, Text: title + "\n\n" + body})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonData))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := w.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				w.logger.Warn("Webhook request failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					w.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				w.logger.Warn("Webhook returned non-2xx status, will retry",
					"status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			w.logger.Info("Webhook request completed",
				"duration_ms", duration.Milliseconds(),
				"status", "success")
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Info("Retrying webhook send after error", "attempt", n, "error", err)
		}),
	)
}
