package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jiralens/jiralens/internal/domain/movement"
)

const eventsFile = "events.jsonl"

// EventJournal is the local append-only movement-event log, one JSON line
// per event, deduplicated by event_id. It backs the board, dashboard and
// MCP surfaces so they can serve state without a network fetch, and it
// survives cache invalidation the same way the append-only sheet tab does.
type EventJournal struct {
	mu   sync.Mutex
	path string
	dir  string
}

func NewEventJournal(dir string) *EventJournal {
	return &EventJournal{
		path: filepath.Join(dir, eventsFile),
		dir:  dir,
	}
}

// Append writes the events not already journaled and reports how many were
// added. Event identity is content-hashed, so replaying an overlapping
// derivation is a no-op.
func (j *EventJournal) Append(events []movement.Event) (added int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	existing, err := j.load()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.EventID] = struct{}{}
	}

	if err := os.MkdirAll(j.dir, 0700); err != nil {
		return 0, fmt.Errorf("create journal directory: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("open event journal: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close event journal: %w", cerr)
		}
	}()

	for _, e := range events {
		if _, dup := seen[e.EventID]; dup {
			continue
		}
		data, merr := json.Marshal(e)
		if merr != nil {
			return added, fmt.Errorf("marshal event %s: %w", e.EventID, merr)
		}
		if _, werr := f.Write(append(data, '\n')); werr != nil {
			return added, fmt.Errorf("write event %s: %w", e.EventID, werr)
		}
		seen[e.EventID] = struct{}{}
		added++
	}
	return added, nil
}

// Load returns every journaled event in append order.
func (j *EventJournal) Load() ([]movement.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load()
}

func (j *EventJournal) load() ([]movement.Event, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event journal: %w", err)
	}
	defer f.Close()

	var events []movement.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e movement.Event
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn trailing line from a crashed run is skipped, not fatal.
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event journal: %w", err)
	}
	return events, nil
}
