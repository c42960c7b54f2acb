// Package storage persists the incremental cache: the full issue and
// change-history corpus plus the metadata that decides whether a later run
// may reuse it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jiralens/jiralens/internal/domain/tracker"
)

const (
	issuesFile     = "issues.json"
	changelogsFile = "changelogs.json"
	metaFile       = "meta.json"
)

// ErrNoCache signals that no usable cache exists and the caller must take
// the full-fetch path. Any stale artifacts have already been purged.
var ErrNoCache = errors.New("no usable cache")

// Corpus is the full issue/changelog state the pipeline operates on.
type Corpus struct {
	Issues     map[string]tracker.Issue         `json:"issues"`
	Changelogs map[string][]tracker.ChangeEntry `json:"changelogs"`
}

// NewCorpus returns an empty corpus with allocated maps.
func NewCorpus() Corpus {
	return Corpus{
		Issues:     make(map[string]tracker.Issue),
		Changelogs: make(map[string][]tracker.ChangeEntry),
	}
}

// IssueList returns the issues as a slice, sorted by key for deterministic
// downstream output.
func (c Corpus) IssueList() []tracker.Issue {
	keys := make([]string, 0, len(c.Issues))
	for k := range c.Issues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	issues := make([]tracker.Issue, 0, len(keys))
	for _, k := range keys {
		issues = append(issues, c.Issues[k])
	}
	return issues
}

// Meta is the cache metadata artifact, written last so its presence implies
// the corpus artifacts are complete.
type Meta struct {
	LastSync       string `json:"last_sync"`
	ConfigHash     string `json:"config_hash"`
	IssueCount     int    `json:"issue_count"`
	ChangelogCount int    `json:"changelog_count"`
}

const metaSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["last_sync", "config_hash", "issue_count", "changelog_count"],
  "properties": {
    "last_sync": { "type": "string" },
    "config_hash": { "type": "string" },
    "issue_count": { "type": "integer", "minimum": 0 },
    "changelog_count": { "type": "integer", "minimum": 0 }
  }
}`

var metaSchemaLoader = gojsonschema.NewStringLoader(metaSchemaJSON)

// FileStore keeps the cache under a single directory. It is owned by the
// run: read once at the start, written once at the end, no ambient global.
type FileStore struct {
	dir         string
	retryConfig retry.Config
	log         zerolog.Logger
}

func NewFileStore(dir string, log zerolog.Logger) *FileStore {
	return &FileStore{
		dir: dir,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		log: log.With().Str("component", "storage").Logger(),
	}
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

// LoadMeta reads and validates meta.json without touching the corpus.
// Returns ErrNoCache when the artifact is absent or invalid.
func (s *FileStore) LoadMeta(ctx context.Context) (Meta, error) {
	var meta Meta
	data, err := s.readFile(ctx, metaFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, fmt.Errorf("%w: no prior record", ErrNoCache)
		}
		return meta, fmt.Errorf("%w: %v", ErrNoCache, err)
	}

	result, err := gojsonschema.Validate(metaSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil || !result.Valid() {
		return meta, fmt.Errorf("%w: meta.json failed schema validation", ErrNoCache)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: meta.json corrupt: %v", ErrNoCache, err)
	}
	return meta, nil
}

// Load returns the cached corpus and last-sync timestamp when the recorded
// fingerprint matches. On any miss (absent record, fingerprint mismatch,
// missing or corrupt artifact) stale artifacts are purged and ErrNoCache
// is returned so the caller starts a clean full fetch.
func (s *FileStore) Load(ctx context.Context, fingerprint string) (Corpus, string, error) {
	meta, err := s.LoadMeta(ctx)
	if err != nil {
		if purgeErr := s.Invalidate(); purgeErr != nil {
			s.log.Warn().Err(purgeErr).Msg("purge after invalid meta failed")
		}
		return Corpus{}, "", err
	}

	if meta.ConfigHash != fingerprint {
		s.log.Info().
			Str("recorded", meta.ConfigHash).
			Str("current", fingerprint).
			Msg("config fingerprint changed, invalidating cache")
		if err := s.Invalidate(); err != nil {
			return Corpus{}, "", fmt.Errorf("invalidate cache: %w", err)
		}
		return Corpus{}, "", fmt.Errorf("%w: fingerprint mismatch", ErrNoCache)
	}

	corpus := NewCorpus()
	if err := s.readJSON(ctx, issuesFile, &corpus.Issues); err != nil {
		s.purgeQuietly()
		return Corpus{}, "", fmt.Errorf("%w: %v", ErrNoCache, err)
	}
	if err := s.readJSON(ctx, changelogsFile, &corpus.Changelogs); err != nil {
		s.purgeQuietly()
		return Corpus{}, "", fmt.Errorf("%w: %v", ErrNoCache, err)
	}

	s.log.Info().
		Int("issues", len(corpus.Issues)).
		Int("changelogs", len(corpus.Changelogs)).
		Str("last_sync", meta.LastSync).
		Msg("cache loaded")
	return corpus, meta.LastSync, nil
}

// Save persists the corpus and then the metadata. meta.json is written
// last: a crash mid-save leaves no valid-looking record, and the next Load
// falls back to a full fetch instead of trusting a torn cache.
func (s *FileStore) Save(ctx context.Context, corpus Corpus, fingerprint string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	if err := s.writeJSON(issuesFile, corpus.Issues); err != nil {
		return err
	}
	if err := s.writeJSON(changelogsFile, corpus.Changelogs); err != nil {
		return err
	}

	meta := Meta{
		LastSync:       time.Now().UTC().Format(time.RFC3339),
		ConfigHash:     fingerprint,
		IssueCount:     len(corpus.Issues),
		ChangelogCount: len(corpus.Changelogs),
	}
	if err := s.writeJSON(metaFile, meta); err != nil {
		return err
	}

	s.log.Info().
		Int("issues", meta.IssueCount).
		Int("changelogs", meta.ChangelogCount).
		Msg("cache saved")
	return nil
}

// Invalidate removes the cache artifacts. The movement-event journal is
// append-only and fingerprint-independent, so it survives invalidation the
// same way the append-only sheet tab does.
func (s *FileStore) Invalidate() error {
	for _, name := range []string{issuesFile, changelogsFile, metaFile} {
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

func (s *FileStore) purgeQuietly() {
	if err := s.Invalidate(); err != nil {
		s.log.Warn().Err(err).Msg("purge of corrupt cache failed")
	}
}

// Merge folds a fresh fetch into the cached corpus: fetched issues replace
// their cached counterparts by key, unfetched cached issues are retained,
// and changelog maps merge the same way. Pure: neither input is modified.
func Merge(cached, fetched Corpus) Corpus {
	merged := NewCorpus()
	for k, v := range cached.Issues {
		merged.Issues[k] = v
	}
	for k, v := range fetched.Issues {
		merged.Issues[k] = v
	}
	for k, v := range cached.Changelogs {
		merged.Changelogs[k] = v
	}
	for k, v := range fetched.Changelogs {
		merged.Changelogs[k] = v
	}
	return merged
}

func (s *FileStore) readFile(ctx context.Context, name string) ([]byte, error) {
	retryer := retry.New[[]byte](s.retryConfig)
	return retryer.Do(ctx, func(ctx context.Context) ([]byte, error) {
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path) // #nosec G304 -- path is fixed under the cache dir
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	})
}

func (s *FileStore) readJSON(ctx context.Context, name string, v any) error {
	data, err := s.readFile(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
