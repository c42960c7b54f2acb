package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

// SlackAdapter posts run summaries to a Slack incoming webhook URL.
type SlackAdapter struct {
	config config.AdapterConfig
	client *http.Client
}

func NewSlackAdapter(cfg config.AdapterConfig) *SlackAdapter {
	return &SlackAdapter{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *SlackAdapter) Name() string { return a.config.Name }
func (a *SlackAdapter) Type() string { return "slack" }

func (a *SlackAdapter) Send(ctx context.Context, summary RunSummary) error {
	text := summaryText(summary)

	payload := map[string]any{
		"text": text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return postJSON(ctx, a.client, a.config.URL, body, nil)
}
