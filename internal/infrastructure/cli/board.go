package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/timeline"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Browse the metric tables in an interactive terminal view",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		store := storage.NewFileStore(cfg.Cache.Dir, log)
		corpus, lastSync, err := store.Load(cmd.Context(), cfg.Fingerprint())
		if err != nil {
			return fmt.Errorf("load cache: %w (run 'jiralens sync' first)", err)
		}

		events := movement.Derive(corpus.Issues, corpus.Changelogs)
		issues := corpus.IssueList()
		rules := cfg.Rules()
		now := time.Now().UTC()
		tables := metrics.Aggregate(events, issues, rules, now)
		spans := timeline.Reconstruct(events, issues, rules, now)
		tables = append(tables, spans.Long, spans.Matrix)

		p := tea.NewProgram(newBoardModel(tables, lastSync))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("board run failed: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(boardCmd)
}

var boardBaseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var boardHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#2563EB")).
	PaddingLeft(1).
	PaddingRight(1)

var boardHintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

type boardModel struct {
	tables   []metrics.Table
	idx      int
	view     table.Model
	lastSync string
}

func newBoardModel(tables []metrics.Table, lastSync string) boardModel {
	m := boardModel{tables: tables, lastSync: lastSync}
	m.view = buildTableView(tables[0])
	return m
}

func buildTableView(t metrics.Table) table.Model {
	columns := make([]table.Column, len(t.Header))
	for i, h := range t.Header {
		width := len(h) + 2
		for _, row := range t.Rows {
			if i < len(row) {
				if w := len(fmt.Sprint(row[i])) + 2; w > width {
					width = w
				}
			}
		}
		if width > 40 {
			width = 40
		}
		columns[i] = table.Column{Title: h, Width: width}
	}

	rows := make([]table.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		cells := make(table.Row, len(t.Header))
		for i := range t.Header {
			if i < len(r) {
				cells[i] = fmt.Sprint(r[i])
			}
		}
		rows = append(rows, cells)
	}

	v := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229"))
	v.SetStyles(s)
	return v
}

func (m boardModel) Init() tea.Cmd { return nil }

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			m.idx = (m.idx + 1) % len(m.tables)
			m.view = buildTableView(m.tables[m.idx])
			return m, nil
		case "shift+tab", "left", "h":
			m.idx = (m.idx + len(m.tables) - 1) % len(m.tables)
			m.view = buildTableView(m.tables[m.idx])
			return m, nil
		}
	}
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m boardModel) View() string {
	t := m.tables[m.idx]
	header := boardHeaderStyle.Render(fmt.Sprintf("%s (%d/%d)", t.Name, m.idx+1, len(m.tables)))
	sync := ""
	if m.lastSync != "" {
		sync = boardHintStyle.Render("last sync: " + m.lastSync)
	}
	hint := boardHintStyle.Render("[tab] next table  [shift+tab] previous  [up/down] scroll  [q] quit")
	return boardBaseStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			sync,
			m.view.View(),
			hint,
		),
	) + "\n"
}
