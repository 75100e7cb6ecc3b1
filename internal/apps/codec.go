package apps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/appdex/appdexd/internal/desktop"
)

// snapshotVersion is bumped whenever the on-disk layout changes in a way
// old readers cannot handle.
const snapshotVersion = 1

// ErrNotFound is returned by Load when no snapshot file exists at the
// given path. The caller decides the fallback, normally scan-and-seed.
var ErrNotFound = errors.New("snapshot file not found")

type snapshot struct {
	Version int       `msgpack:"version"`
	SavedAt time.Time `msgpack:"saved_at"`
	Records []App     `msgpack:"records"`
}

// Load reads a persisted snapshot into a new store. A missing file is
// reported as ErrNotFound; unreadable or version-mismatched content is a
// distinct decode error.
func Load(path string) (*DB, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	var snap snapshot
	if err := msgpack.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Version)
	}

	db := NewDB()
	for i := range snap.Records {
		app := snap.Records[i]
		db.records[app.ID] = &app
	}
	return db, nil
}

// Save writes the full store to path. The snapshot is written to a
// temporary file in the same directory and renamed into place, so a crash
// mid-write never leaves a truncated file at path.
func (db *DB) Save(path string) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.saveLocked(path)
}

func (db *DB) saveLocked(path string) error {
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Records: make([]App, 0, len(db.records)),
	}
	for _, app := range db.records {
		snap.Records = append(snap.Records, *app)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].ID < snap.Records[j].ID
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".appdex-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	if err := msgpack.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// MergeAndSave runs MergeScan and persists the result under a single lock
// acquisition, so no reader observes a merged store that is not yet on
// disk. A save failure leaves the merged store intact in memory; the
// snapshot is simply stale until the next successful save.
func (db *DB) MergeAndSave(entries []desktop.Entry, path string) (added, removed int, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	added, removed = db.mergeLocked(entries)
	err = db.saveLocked(path)
	return added, removed, err
}
