package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when the
// adapter is configured with a shared secret.
const SignatureHeader = "X-JiraLens-Signature"

// WebhookAdapter posts run summaries to a generic webhook URL.
type WebhookAdapter struct {
	config config.AdapterConfig
	client *http.Client
}

func NewWebhookAdapter(cfg config.AdapterConfig) *WebhookAdapter {
	return &WebhookAdapter{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *WebhookAdapter) Name() string { return a.config.Name }
func (a *WebhookAdapter) Type() string { return "webhook" }

func (a *WebhookAdapter) Send(ctx context.Context, summary RunSummary) error {
	payload := map[string]any{
		"event_type": "sync.completed",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data":       summary,
	}
	if summary.Failure != "" {
		payload["event_type"] = "sync.failed"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]string{"User-Agent": "JiraLens-Notify/1.0"}
	if a.config.Secret != "" {
		headers[SignatureHeader] = sign(a.config.Secret, body)
	}
	return postJSON(ctx, a.client, a.config.URL, body, headers)
}
