// Package notify sends run-completion summaries to configured channels.
// Delivery is best-effort: a failed send is logged and never fails the run.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

// RunSummary is the payload every adapter receives after a sync run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run"`
	Issues    int           `json:"issues"`
	NewEvents int           `json:"new_events"`
	Duration  time.Duration `json:"duration_ns"`
	Failure   string        `json:"failure,omitempty"`
}

// Adapter delivers a run summary to one channel.
type Adapter interface {
	Name() string
	Type() string
	Send(ctx context.Context, summary RunSummary) error
}

// Registry holds the adapters built from configuration. Disabled entries
// are skipped at build time.
type Registry struct {
	adapters []Adapter
	log      zerolog.Logger
}

func NewRegistry(configs []config.AdapterConfig, log zerolog.Logger) (*Registry, error) {
	r := &Registry{log: log.With().Str("component", "notify").Logger()}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		adapter, err := createAdapter(cfg)
		if err != nil {
			return nil, fmt.Errorf("create adapter %q: %w", cfg.Name, err)
		}
		r.adapters = append(r.adapters, adapter)
	}
	return r, nil
}

// Adapters returns all active adapters.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Notify fans the summary out to every adapter. Errors are logged per
// adapter; the run itself already succeeded or failed on its own terms.
func (r *Registry) Notify(ctx context.Context, summary RunSummary) {
	for _, a := range r.adapters {
		if err := a.Send(ctx, summary); err != nil {
			r.log.Warn().
				Err(err).
				Str("adapter", a.Name()).
				Str("type", a.Type()).
				Msg("notification failed")
			continue
		}
		r.log.Debug().Str("adapter", a.Name()).Msg("notification sent")
	}
}

func createAdapter(cfg config.AdapterConfig) (Adapter, error) {
	switch cfg.Type {
	case "webhook":
		return NewWebhookAdapter(cfg), nil
	case "slack":
		return NewSlackAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", cfg.Type)
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func summaryText(s RunSummary) string {
	if s.Failure != "" {
		return fmt.Sprintf(":x: JiraLens sync %s failed: %s", s.RunID, s.Failure)
	}
	mode := ""
	if s.DryRun {
		mode = " (dry-run)"
	}
	return fmt.Sprintf(":white_check_mark: JiraLens sync %s done%s: %d issues, %d new events in %s",
		s.RunID, mode, s.Issues, s.NewEvents, s.Duration.Round(time.Millisecond))
}
