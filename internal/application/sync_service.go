// Package application orchestrates the sync pipeline: cache, Jira fetch,
// event derivation, metric aggregation, publication, and notification.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/timeline"
	"github.com/jiralens/jiralens/internal/domain/tracker"
	"github.com/jiralens/jiralens/internal/infrastructure/config"
	"github.com/jiralens/jiralens/internal/infrastructure/dashboard"
	"github.com/jiralens/jiralens/internal/infrastructure/jira"
	"github.com/jiralens/jiralens/internal/infrastructure/notify"
	"github.com/jiralens/jiralens/internal/infrastructure/sheets"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

// Fetcher is the slice of the Jira client the pipeline needs.
type Fetcher interface {
	SearchIssues(ctx context.Context, jql string) ([]tracker.Issue, error)
	FetchChangelogs(ctx context.Context, issues []tracker.Issue) (map[string][]tracker.ChangeEntry, error)
}

// Store is the slice of the cache layer the pipeline needs.
type Store interface {
	Load(ctx context.Context, fingerprint string) (storage.Corpus, string, error)
	Save(ctx context.Context, corpus storage.Corpus, fingerprint string) error
}

// Publisher is the slice of the sheets sink the pipeline needs.
type Publisher interface {
	EnsureTabs(ctx context.Context) error
	ReplaceTab(ctx context.Context, tab string, rows [][]any) error
	AppendEvents(ctx context.Context, events []movement.Event) (int, error)
	WriteMetrics(ctx context.Context, tables []metrics.Table) error
}

// Renderer writes the static dashboard page.
type Renderer interface {
	WriteFile(in dashboard.Input, path string) error
}

// Notifier fans out the run summary.
type Notifier interface {
	Notify(ctx context.Context, summary notify.RunSummary)
}

// RunOptions control one sync invocation.
type RunOptions struct {
	DryRun      bool
	FullRefetch bool
}

// RunResult is what a completed run hands back to the caller.
type RunResult struct {
	RunID         string
	Issues        int
	NewEvents     int
	OrphanedExits int
	Duration      time.Duration
	Tables        []metrics.Table
	Report        Report
}

// SyncService runs the batch pipeline end to end.
type SyncService struct {
	cfg      *config.Config
	store    Store
	journal  *storage.EventJournal
	fetcher  Fetcher
	sink     Publisher
	renderer Renderer
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewSyncService(
	cfg *config.Config,
	store Store,
	journal *storage.EventJournal,
	fetcher Fetcher,
	sink Publisher,
	renderer Renderer,
	notifier Notifier,
	log zerolog.Logger,
) *SyncService {
	return &SyncService{
		cfg:      cfg,
		store:    store,
		journal:  journal,
		fetcher:  fetcher,
		sink:     sink,
		renderer: renderer,
		notifier: notifier,
		log:      log.With().Str("component", "sync").Logger(),
		now:      time.Now,
	}
}

// Run executes one batch. A fetch failure aborts before any cache write,
// so the previously cached state stays intact.
func (s *SyncService) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Bool("dry_run", opts.DryRun).Logger()
	started := s.now()

	machine, err := NewRunMachine(runID, opts.DryRun)
	if err != nil {
		return nil, err
	}

	result := &RunResult{RunID: runID}
	fail := func(stage string, err error) (*RunResult, error) {
		machine.fail()
		result.Report = machine.Report()
		log.Error().Err(err).Str("stage", stage).Msg("sync run failed")
		s.notifier.Notify(ctx, notify.RunSummary{
			RunID:    runID,
			DryRun:   opts.DryRun,
			Duration: s.now().Sub(started),
			Failure:  fmt.Sprintf("%s: %v", stage, err),
		})
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	// Fetch.
	machine.advance(eventFetch)
	fingerprint := s.cfg.Fingerprint()
	cached, lastSync, err := s.store.Load(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, storage.ErrNoCache) {
			return fail(StateFetching, err)
		}
		cached = storage.NewCorpus()
		lastSync = ""
		log.Info().Msg("no usable cache, full backfill")
	}

	since := ""
	if lastSync != "" && !opts.FullRefetch {
		since = lastSync
	}
	jql := jira.BuildJQL(s.cfg.Jira, since)
	log.Info().Str("jql", jql).Msg("fetching issues")

	issues, err := s.fetcher.SearchIssues(ctx, jql)
	if err != nil {
		return fail(StateFetching, err)
	}
	changelogs, err := s.fetcher.FetchChangelogs(ctx, issues)
	if err != nil {
		return fail(StateFetching, err)
	}

	fetched := storage.NewCorpus()
	for _, issue := range issues {
		fetched.Issues[issue.Key] = issue
	}
	fetched.Changelogs = changelogs
	merged := storage.Merge(cached, fetched)
	result.Issues = len(merged.Issues)
	log.Info().
		Int("fetched", len(issues)).
		Int("total", result.Issues).
		Msg("corpus merged")

	// Derive.
	machine.advance(eventDerive)
	events := movement.Derive(merged.Issues, merged.Changelogs)
	journaled, err := s.journal.Append(events)
	if err != nil {
		return fail(StateDeriving, err)
	}
	log.Info().Int("events", len(events)).Int("journaled", journaled).Msg("movement events derived")

	// Aggregate.
	machine.advance(eventAggregate)
	rules := s.cfg.Rules()
	now := s.now()
	issueList := merged.IssueList()
	spans := timeline.Reconstruct(events, issueList, rules, now)
	if spans.OrphanedExits > 0 {
		log.Warn().Int("orphaned_exits", spans.OrphanedExits).Msg("status exits without matching entries")
	}
	tables := metrics.Aggregate(events, issueList, rules, now)
	result.Tables = tables

	// Publish. The machine's guard refuses the transition on a dry run;
	// the sink is only touched when the machine actually moved.
	if machine.advance(eventPublish) {
		appended, err := s.publish(ctx, merged, events, tables, spans)
		if err != nil {
			return fail(StatePublishing, err)
		}
		result.NewEvents = appended

		machine.advance(eventPersist)
		if err := s.store.Save(ctx, merged, fingerprint); err != nil {
			return fail(StatePersisting, err)
		}
	} else {
		log.Info().Msg("dry run: skipping sheet publication and cache write")
	}

	if err := s.renderer.WriteFile(dashboard.Input{
		Issues: issueList,
		Events: events,
		Tables: tables,
		Tiers:  s.cfg.Aging.Tiers,
		Now:    now,
	}, s.cfg.Dashboard.Output); err != nil {
		log.Warn().Err(err).Msg("dashboard render failed")
	}

	machine.advance(eventFinish)
	result.Duration = s.now().Sub(started)
	result.OrphanedExits = spans.OrphanedExits
	result.Report = machine.Report()

	s.notifier.Notify(ctx, notify.RunSummary{
		RunID:     runID,
		DryRun:    opts.DryRun,
		Issues:    result.Issues,
		NewEvents: result.NewEvents,
		Duration:  result.Duration,
	})
	log.Info().
		Str("state", result.Report.State).
		Dur("duration", result.Duration).
		Msg("sync run complete")
	return result, nil
}

func (s *SyncService) publish(
	ctx context.Context,
	corpus storage.Corpus,
	events []movement.Event,
	tables []metrics.Table,
	spans timeline.Result,
) (int, error) {
	if err := s.sink.EnsureTabs(ctx); err != nil {
		return 0, err
	}
	if err := s.sink.ReplaceTab(ctx, sheets.TabIssues, sheets.IssueRows(corpus.IssueList())); err != nil {
		return 0, err
	}
	if err := s.sink.ReplaceTab(ctx, sheets.TabChangelog, sheets.ChangelogRows(corpus.Changelogs)); err != nil {
		return 0, err
	}
	appended, err := s.sink.AppendEvents(ctx, events)
	if err != nil {
		return 0, err
	}
	if err := s.sink.WriteMetrics(ctx, tables); err != nil {
		return 0, err
	}
	if err := s.sink.ReplaceTab(ctx, sheets.TabDurationsLong, spans.Long.Matrix()); err != nil {
		return 0, err
	}
	return appended, s.sink.ReplaceTab(ctx, sheets.TabStatusMatrix, spans.Matrix.Matrix())
}
