// Package apps owns the authoritative collection of indexed applications:
// the record type, the merge logic that reconciles fresh scans against
// existing usage history, and the persisted snapshot format.
package apps

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appdex/appdexd/internal/desktop"
)

// ErrUnknownApp is returned by RecordUsage for an id that is not in the
// store, e.g. because a concurrent rescan removed the record.
var ErrUnknownApp = errors.New("unknown application id")

// DB is the in-memory application store. A single lock guards the records
// map; every operation that reads or mutates it holds the lock for the
// duration of that operation.
type DB struct {
	mu      sync.RWMutex
	records map[string]*App
}

// NewDB creates an empty store.
func NewDB() *DB {
	return &DB{
		records: make(map[string]*App),
	}
}

// Seed populates an empty store from an initial scan. counts carries
// launch counters recovered from the usage journal, keyed by source path,
// so a rebuilt snapshot does not start from zero history.
func (db *DB) Seed(entries []desktop.Entry, counts map[string]uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.records = make(map[string]*App, len(entries))
	for _, entry := range entries {
		app := newApp(entry)
		app.UsageCount = counts[entry.SourcePath]
		db.records[app.ID] = app
	}
}

// MergeScan reconciles a fresh scan against the store. Records matched by
// source path keep their id and usage stats and take the freshly parsed
// name and execution fields. Unmatched entries become new records with a
// new id and zero usage. Records whose source path is absent from the
// scan are dropped: their shortcut file no longer exists. The records map
// is replaced in one step under the lock, so no reader observes a
// half-merged state.
func (db *DB) MergeScan(entries []desktop.Entry) (added, removed int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.mergeLocked(entries)
}

func (db *DB) mergeLocked(entries []desktop.Entry) (added, removed int) {
	bySource := make(map[string]*App, len(db.records))
	for _, app := range db.records {
		bySource[app.SourcePath] = app
	}

	merged := make(map[string]*App, len(entries))
	for _, entry := range entries {
		if existing, ok := bySource[entry.SourcePath]; ok {
			app := newApp(entry)
			app.ID = existing.ID
			app.UsageCount = existing.UsageCount
			app.LastUsed = existing.LastUsed
			merged[app.ID] = app
			continue
		}
		app := newApp(entry)
		merged[app.ID] = app
		added++
	}

	removed = len(db.records) + added - len(merged)
	db.records = merged
	return added, removed
}

func newApp(entry desktop.Entry) *App {
	return &App{
		ID:         uuid.NewString(),
		Name:       entry.Name,
		Exec:       entry.Exec,
		Icon:       entry.Icon,
		Terminal:   entry.Terminal,
		SourcePath: entry.SourcePath,
	}
}

// RecordUsage increments the launch counter and stamps LastUsed for the
// record with the given id. The counter only ever grows.
func (db *DB) RecordUsage(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	app, ok := db.records[id]
	if !ok {
		return ErrUnknownApp
	}
	app.UsageCount++
	app.LastUsed = time.Now()
	return nil
}

// Get returns a copy of the record with the given id.
func (db *DB) Get(id string) (App, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	app, ok := db.records[id]
	if !ok {
		return App{}, false
	}
	return *app, true
}

// All returns a copy of every record. Callers rank or filter the copy
// outside the lock.
func (db *DB) All() []App {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]App, 0, len(db.records))
	for _, app := range db.records {
		result = append(result, *app)
	}
	return result
}

// Len returns the number of records in the store.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.records)
}
