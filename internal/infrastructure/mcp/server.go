// Package mcp exposes read-only pipeline state to MCP clients. Every tool
// answers from the local cache; none of them triggers a network fetch.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/timeline"
	"github.com/jiralens/jiralens/internal/infrastructure/config"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// staleAfter is how old last_sync may get before status reports the cache
// as stale. A daily sync plus slack.
const staleAfter = 26 * time.Hour

// stateStore is the slice of the cache layer the server reads from.
type stateStore interface {
	Load(ctx context.Context, fingerprint string) (storage.Corpus, string, error)
	LoadMeta(ctx context.Context) (storage.Meta, error)
}

type Server struct {
	mcpServer *mcp.Server
	cfg       *config.Config
	store     stateStore
	log       zerolog.Logger
	now       func() time.Time
}

// mcpErr returns a user-friendly error for MCP clients; internal detail
// stays in the logs.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

func NewServer(cfg *config.Config, store stateStore, log zerolog.Logger) *Server {
	info := mcp.ServerInfo{
		Name:    "jiralens",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("JiraLens MCP Server"),
			mcp.WithDescription("JiraLens exposes cached issue-flow metrics, movement events, and aging state to MCP clients."),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use tools to inspect cache freshness and read metric tables. All tools are read-only and never contact Jira."),
		),
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "mcp").Logger(),
		now:   time.Now,
	}

	s.registerTools()
	s.registerSchemaResource()
	return s
}

type StatusArgs struct{}

type ListTablesArgs struct{}

type GetTableArgs struct {
	Name string `json:"name" jsonschema:"description=Table name as returned by jiralens_list_tables"`
}

type AgingArgs struct{}

func (s *Server) registerTools() {
	s.mcpServer.Tool("jiralens_status").
		Description("Report cache freshness: last sync time, configured scope fingerprint, and corpus size").
		Handler(s.handleStatus)

	s.mcpServer.Tool("jiralens_list_tables").
		Description("List the metric table names computable from the cached corpus").
		Handler(s.handleListTables)

	s.mcpServer.Tool("jiralens_get_table").
		Description("Recompute one metric table from the cached corpus and return its header and rows").
		Handler(s.handleGetTable)

	s.mcpServer.Tool("jiralens_aging").
		Description("List currently stuck tickets (aging work in progress), most stuck first").
		Handler(s.handleAging)
}

func (s *Server) handleStatus(ctx context.Context, args StatusArgs) (any, error) {
	meta, err := s.store.LoadMeta(ctx)
	if err != nil {
		return map[string]any{
			"cache":       "absent",
			"fingerprint": s.cfg.Fingerprint(),
			"hint":        "run 'jiralens sync' or 'jiralens rebuild' to populate the cache",
		}, nil
	}

	stale := true
	if ts, parseErr := time.Parse(time.RFC3339, meta.LastSync); parseErr == nil {
		stale = s.now().Sub(ts) > staleAfter
	}
	return map[string]any{
		"cache":               "present",
		"last_sync":           meta.LastSync,
		"stale":               stale,
		"issues":              meta.IssueCount,
		"changelogs":          meta.ChangelogCount,
		"fingerprint":         s.cfg.Fingerprint(),
		"cached_fingerprint":  meta.ConfigHash,
		"fingerprint_matches": meta.ConfigHash == s.cfg.Fingerprint(),
	}, nil
}

func (s *Server) handleListTables(ctx context.Context, args ListTablesArgs) (any, error) {
	tables, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": metrics.Names(tables)}, nil
}

func (s *Server) handleGetTable(ctx context.Context, args GetTableArgs) (any, error) {
	if args.Name == "" {
		return nil, mcpErr("name is required; call jiralens_list_tables for the available names")
	}
	tables, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}
	table, ok := metrics.Find(tables, args.Name)
	if !ok {
		return nil, mcpErr(fmt.Sprintf("unknown table %q; call jiralens_list_tables for the available names", args.Name))
	}
	return map[string]any{
		"name":   table.Name,
		"header": table.Header,
		"rows":   table.Rows,
	}, nil
}

func (s *Server) handleAging(ctx context.Context, args AgingArgs) (any, error) {
	tables, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}
	table, _ := metrics.Find(tables, "aging_wip")

	rows := make([]map[string]any, 0, len(table.Rows))
	for _, row := range table.Rows {
		entry := make(map[string]any, len(table.Header))
		for i, col := range table.Header {
			if i < len(row) {
				entry[col] = row[i]
			}
		}
		rows = append(rows, entry)
	}
	return map[string]any{"stuck": rows, "count": len(rows)}, nil
}

// tables recomputes every table from the cached corpus: the seven metric
// tables plus the two span-derived ones.
func (s *Server) tables(ctx context.Context) ([]metrics.Table, error) {
	corpus, _, err := s.store.Load(ctx, s.cfg.Fingerprint())
	if err != nil {
		s.log.Debug().Err(err).Msg("cache load failed")
		return nil, mcpErr("no usable cache; run 'jiralens sync' first")
	}

	events := movement.Derive(corpus.Issues, corpus.Changelogs)
	issues := corpus.IssueList()
	rules := s.cfg.Rules()
	now := s.now()

	tables := metrics.Aggregate(events, issues, rules, now)
	spans := timeline.Reconstruct(events, issues, rules, now)
	return append(tables, spans.Long, spans.Matrix), nil
}

func (s *Server) Start() error {
	return s.StartStdio()
}

func (s *Server) StartStdio() error {
	return s.ServeStdio(context.Background())
}

func (s *Server) StartHTTP(addr string) error {
	return s.ServeHTTP(context.Background(), addr)
}

func (s *Server) StartWebSocket(addr string) error {
	return s.ServeWebSocket(context.Background(), addr)
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	return mcp.ServeWebSocket(ctx, s.mcpServer, addr)
}
