package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

const configTemplate = `# jiralens configuration.
# Secrets belong in the environment, not here:
#   JIRA_EMAIL, JIRA_API_TOKEN, GOOGLE_SHEET_ID, GOOGLE_SERVICE_ACCOUNT_FILE

jira:
  base_url: https://your-org.atlassian.net
  project_keys: [OPS]
  # Only issues updated on or after this date are fetched on a cold start.
  backfill_from: "2024-01-01"
  # jql_override: 'project = OPS AND labels = flow'

statuses:
  in_progress: [In Progress, In Review]
  done: [Done, Closed]
  # milestone: SUBMITTED FOR SIGNATURE

team:
  # "component" groups by the first Jira component; set a customfield id to
  # use a dedicated team field instead.
  field: component

aging:
  tiers: [7, 14, 30]
  exclude_substrings: [due]

google:
  sheet_id: ""
  service_account_file: ""

cache:
  dir: .cache

dashboard:
  output: dashboard/index.html

notify:
  adapters: []
  # - name: team-slack
  #   type: slack
  #   url: https://hooks.slack.com/services/...
  #   enabled: true
  # - name: ops-webhook
  #   type: webhook
  #   url: https://example.com/hooks/jiralens
  #   secret: change-me
  #   enabled: true

log:
  level: info
  format: console
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter jiralens.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if cfgPath != "" {
			path = cfgPath
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing %s", path)
		}
		if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Wrote %s. Fill in jira.base_url and project_keys, export credentials, then run 'jiralens sync --dry-run'.\n", path)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(initCmd)
}
