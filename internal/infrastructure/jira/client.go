// Package jira fetches issue snapshots and change history from the Jira
// Cloud REST v3 API and flattens them into tracker records.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/tracker"
	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

// ErrAuth signals rejected credentials; retrying cannot fix it.
var ErrAuth = errors.New("jira: authentication rejected")

// searchFields is requested on every issue search.
var searchFields = []string{
	"summary", "status", "assignee", "reporter", "priority",
	"issuetype", "project", "created", "resolutiondate",
	"labels", "components",
}

const requestTimeout = 30 * time.Second

type Client struct {
	cfg       config.JiraConfig
	teamField string
	http      *http.Client
	log       zerolog.Logger
}

func NewClient(cfg config.JiraConfig, teamField string, log zerolog.Logger) *Client {
	return &Client{
		cfg:       cfg,
		teamField: teamField,
		http:      &http.Client{Timeout: requestTimeout},
		log:       log.With().Str("component", "jira").Logger(),
	}
}

// BuildJQL returns the query for a run. since (an RFC3339-ish timestamp)
// narrows the fetch to issues updated after the last sync; when empty the
// query covers the full backfill window, or the operator's override.
func BuildJQL(cfg config.JiraConfig, since string) string {
	if since == "" {
		if cfg.JQLOverride != "" {
			return cfg.JQLOverride
		}
		return fmt.Sprintf("(%s) AND updated >= %q ORDER BY updated ASC",
			projectClause(cfg.ProjectKeys), cfg.BackfillFrom)
	}

	// Jira's JQL accepts "YYYY-MM-DD HH:mm"; fall back to the date part
	// when the stored timestamp does not parse.
	sinceJQL := since
	if ts, ok := tracker.ParseTime(since); ok {
		sinceJQL = ts.Format("2006-01-02 15:04")
	} else if len(since) >= 10 {
		sinceJQL = since[:10]
	}
	return fmt.Sprintf("(%s) AND updated >= %q ORDER BY updated ASC",
		projectClause(cfg.ProjectKeys), sinceJQL)
}

func projectClause(keys []string) string {
	clauses := make([]string, len(keys))
	for i, k := range keys {
		clauses[i] = "project = " + k
	}
	return strings.Join(clauses, " OR ")
}

type searchResponse struct {
	Issues        []rawIssue `json:"issues"`
	IsLast        bool       `json:"isLast"`
	NextPageToken string     `json:"nextPageToken"`
}

// SearchIssues pages through the JQL search and returns flattened
// snapshots.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]tracker.Issue, error) {
	c.log.Info().Str("jql", jql).Msg("searching issues")

	fields := strings.Join(c.fields(), ",")
	var issues []tracker.Issue
	nextPageToken := ""
	for {
		params := url.Values{}
		params.Set("jql", jql)
		params.Set("maxResults", strconv.Itoa(c.cfg.PageSize))
		params.Set("fields", fields)
		if nextPageToken != "" {
			params.Set("nextPageToken", nextPageToken)
		}

		var page searchResponse
		if err := c.getJSON(ctx, "/rest/api/3/search/jql", params, &page); err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}
		if len(page.Issues) == 0 {
			break
		}
		for _, raw := range page.Issues {
			issues = append(issues, FlattenIssue(raw, c.teamField))
		}
		if page.IsLast || page.NextPageToken == "" {
			break
		}
		nextPageToken = page.NextPageToken
	}

	c.log.Info().Int("issues", len(issues)).Msg("issue search complete")
	return issues, nil
}

type changelogResponse struct {
	Values []rawChangeEntry `json:"values"`
	Total  int              `json:"total"`
}

// FetchChangelogs retrieves the full change history for every issue, in
// slice order, via the dedicated changelog endpoint.
func (c *Client) FetchChangelogs(ctx context.Context, issues []tracker.Issue) (map[string][]tracker.ChangeEntry, error) {
	changelogs := make(map[string][]tracker.ChangeEntry, len(issues))
	total := len(issues)
	for idx, issue := range issues {
		if (idx+1)%50 == 0 || idx+1 == total {
			c.log.Info().Int("done", idx+1).Int("total", total).Msg("fetching changelogs")
		}
		entries, err := c.fetchIssueChangelog(ctx, issue.Key)
		if err != nil {
			return nil, fmt.Errorf("changelog for %s: %w", issue.Key, err)
		}
		changelogs[issue.Key] = entries
	}
	return changelogs, nil
}

func (c *Client) fetchIssueChangelog(ctx context.Context, key string) ([]tracker.ChangeEntry, error) {
	var entries []tracker.ChangeEntry
	startAt := 0
	for {
		params := url.Values{}
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", "100")

		var page changelogResponse
		path := "/rest/api/3/issue/" + url.PathEscape(key) + "/changelog"
		if err := c.getJSON(ctx, path, params, &page); err != nil {
			return nil, err
		}
		if len(page.Values) == 0 {
			break
		}
		for _, raw := range page.Values {
			entries = append(entries, raw.toChangeEntry())
		}
		startAt += len(page.Values)
		if startAt >= page.Total {
			break
		}
	}
	return entries, nil
}

// getJSON issues one GET with basic auth, honoring 429 Retry-After and
// retrying transport errors and 5xx with exponential backoff. Each attempt
// carries its own timeout.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	fullURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	retryer := retry.New[[]byte](retry.Config{
		MaxAttempts:   c.cfg.MaxRetries,
		InitialDelay:  time.Second,
		BackoffPolicy: retry.BackoffExponential,
	})
	timeouter := timeout.New[[]byte](timeout.Config{DefaultTimeout: requestTimeout})

	body, err := retryer.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return timeouter.Execute(ctx, requestTimeout, func(ctx context.Context) ([]byte, error) {
			return c.attempt(ctx, fullURL)
		})
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.ParseFloat(v, 64); perr == nil {
				wait = time.Duration(secs * float64(time.Second))
			}
		}
		c.log.Warn().Dur("retry_after", wait).Msg("rate limited")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rate limited (429)")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("request failed (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// fields adds the custom team field to the search field list when the team
// grouping comes from one.
func (c *Client) fields() []string {
	fields := append([]string{}, searchFields...)
	if strings.HasPrefix(c.teamField, "customfield_") {
		fields = append(fields, c.teamField)
	}
	return fields
}
