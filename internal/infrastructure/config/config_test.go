package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
jira:
  base_url: https://example.atlassian.net/
  email: bot@example.com
  api_token: secret
  project_keys: [AC]
  backfill_from: "2024-01-01"
statuses:
  in_progress: [Reviewing, "Preparing Accounts"]
  done: [Done, "Accounts Filed"]
google:
  sheet_id: sheet123
  service_account_file: sa.json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jiralens.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Jira.BaseURL != "https://example.atlassian.net" {
		t.Errorf("trailing slash not trimmed: %q", cfg.Jira.BaseURL)
	}
	if cfg.Jira.PageSize != 100 || cfg.Jira.MaxRetries != 5 {
		t.Errorf("jira defaults not applied: %+v", cfg.Jira)
	}
	if cfg.Cache.Dir != ".cache" || cfg.Dashboard.Output != "dashboard/index.html" {
		t.Errorf("path defaults not applied: %+v", cfg)
	}
	if len(cfg.Statuses.Recognized) != 15 {
		t.Errorf("recognized default = %d states, want 15", len(cfg.Statuses.Recognized))
	}
	if len(cfg.Aging.Tiers) != 3 || cfg.Aging.Tiers[0] != 7 {
		t.Errorf("aging tier defaults = %v", cfg.Aging.Tiers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JIRA_API_TOKEN", "env-token")
	t.Setenv("GOOGLE_SHEET_ID", "env-sheet")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jira.APIToken != "env-token" {
		t.Errorf("api token override = %q", cfg.Jira.APIToken)
	}
	if cfg.Google.SheetID != "env-sheet" {
		t.Errorf("sheet id override = %q", cfg.Google.SheetID)
	}
}

func TestValidateRejectsMissingScope(t *testing.T) {
	_, err := Load(writeConfig(t, `
jira:
  base_url: https://example.atlassian.net
  email: bot@example.com
  api_token: secret
`))
	if err == nil {
		t.Fatal("expected error for missing project_keys and jql_override")
	}
}

func TestValidateRejectsUnorderedTiers(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
aging:
  tiers: [14, 7, 30]
`))
	if err == nil {
		t.Fatal("expected error for descending tiers")
	}
}

func TestRulesView(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rules := cfg.Rules()

	if !rules.Done.Has("done") || !rules.Done.Has("ACCOUNTS FILED") {
		t.Errorf("done set not case-insensitive: %v", rules.Done)
	}
	if !rules.InProgress.Has("reviewing") {
		t.Errorf("in-progress set missing reviewing")
	}
	if !rules.IsMilestone("submitted for signature") {
		t.Errorf("milestone default not applied")
	}
	if got, ok := rules.AgingBucket(31); !ok || got != ">30d" {
		t.Errorf("AgingBucket(31) = %q/%v", got, ok)
	}
	if _, ok := rules.AgingBucket(3); ok {
		t.Errorf("AgingBucket(3) should report below-threshold")
	}
}

func TestFingerprintStability(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a := cfg.Fingerprint()
	b := cfg.Fingerprint()
	if a != b || len(a) != 8 {
		t.Fatalf("fingerprint unstable or wrong length: %q vs %q", a, b)
	}

	cfg.Jira.BackfillFrom = "2020-01-01"
	if cfg.Fingerprint() == a {
		t.Errorf("fingerprint must change when fetch scope changes")
	}

	// Settings that do not affect fetch scope must not change it.
	cfg.Jira.BackfillFrom = "2024-01-01"
	cfg.Log.Level = "debug"
	cfg.Aging.Tiers = []int{1, 2, 3}
	if cfg.Fingerprint() != a {
		t.Errorf("fingerprint changed for non-scope settings")
	}
}
