// Package launcher binds the application store, the desktop scanner, the
// usage journal and the filesystem watcher into one coordinator. All
// store access goes through here; background scans and interactive
// queries share the store's single lock, and front ends are notified via
// immutable events rather than cross-thread calls.
package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/appdex/appdexd/internal/apps"
	"github.com/appdex/appdexd/internal/desktop"
	"github.com/appdex/appdexd/internal/rank"
	"github.com/appdex/appdexd/internal/usage"
)

// Options configures a Launcher. AppPaths is a function so the rc file
// can grow the directory list between scans without a restart.
type Options struct {
	AppPaths     func() []string
	SnapshotPath string
	Terminal     string
	ListLimit    int
	Debounce     time.Duration
	Journal      *usage.Journal
}

// EventKind discriminates coordinator events.
type EventKind int

const (
	ScanStarted EventKind = iota
	ScanDone
)

// Event is an immutable notification for single-threaded front ends.
type Event struct {
	Kind        EventKind
	Added       int
	Removed     int
	ParseErrors int
}

// Launcher is the concurrency coordinator around the application store.
type Launcher struct {
	db     *apps.DB
	opts   Options
	events chan Event

	mu       sync.Mutex
	lastScan time.Time
}

// Stats is a point-in-time summary of the index.
type Stats struct {
	Records      int
	SnapshotPath string
	LastScan     time.Time
}

// New loads the persisted snapshot or, when none exists, runs an initial
// scan and seeds the store from it, recovering launch counters from the
// usage journal. A corrupt snapshot is returned as an error; the caller
// decides whether to rebuild.
func New(opts Options) (*Launcher, error) {
	l := &Launcher{
		opts:   opts,
		events: make(chan Event, 16),
	}

	db, err := apps.Load(opts.SnapshotPath)
	switch {
	case err == nil:
		log.Debug().Str("path", opts.SnapshotPath).Int("records", db.Len()).Msg("snapshot loaded")
		l.db = db
	case errors.Is(err, apps.ErrNotFound):
		log.Info().Str("path", opts.SnapshotPath).Msg("no snapshot, seeding from scan")
		l.db = apps.NewDB()
		if err := l.seed(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return l, nil
}

// Rebuild discards the in-memory store and reseeds it from a fresh scan.
// Used when the caller decides to recover from a corrupt snapshot.
func Rebuild(opts Options) (*Launcher, error) {
	l := &Launcher{
		opts:   opts,
		events: make(chan Event, 16),
		db:     apps.NewDB(),
	}
	if err := l.seed(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Launcher) seed() error {
	entries, parseErrs := desktop.Scan(l.opts.AppPaths())
	logParseErrors(parseErrs)

	counts := map[string]uint64{}
	if l.opts.Journal != nil {
		paths := make([]string, len(entries))
		for i, entry := range entries {
			paths[i] = entry.SourcePath
		}
		counts = l.opts.Journal.Counts(paths)
	}

	l.db.Seed(entries, counts)
	l.markScanned()

	if err := l.db.Save(l.opts.SnapshotPath); err != nil {
		log.Error().Err(err).Msg("saving seeded snapshot failed")
	}
	return nil
}

// Search ranks the current records against query. The result is computed
// over a snapshot copied under the store lock, so a concurrent merge
// never exposes a half-merged view.
func (l *Launcher) Search(query string) []rank.Match {
	return l.SearchN(query, l.opts.ListLimit)
}

// SearchN is Search with an explicit result cap.
func (l *Launcher) SearchN(query string, limit int) []rank.Match {
	return rank.Rank(l.db.All(), query, limit)
}

// Run launches the application with the given id. Usage is recorded only
// after the process started successfully, so a broken entry cannot train
// the ranking. The snapshot is saved afterwards; a save failure is logged
// and the store stays correct in memory.
func (l *Launcher) Run(id string) error {
	app, ok := l.db.Get(id)
	if !ok {
		return fmt.Errorf("run %s: %w", id, apps.ErrUnknownApp)
	}

	cmd, err := l.buildCommand(app)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", app.Name, err)
	}
	log.Debug().Str("name", app.Name).Int("pid", cmd.Process.Pid).Msg("application started")

	if err := l.db.RecordUsage(id); err != nil {
		// Removed by a concurrent rescan between Get and here.
		log.Warn().Str("id", id).Msg("usage not recorded, record gone")
		return nil
	}
	if l.opts.Journal != nil {
		if err := l.opts.Journal.Increment(app.SourcePath); err != nil {
			log.Warn().Err(err).Msg("usage journal update failed")
		}
	}
	if err := l.db.Save(l.opts.SnapshotPath); err != nil {
		log.Error().Err(err).Msg("saving snapshot after launch failed")
	}
	return nil
}

func (l *Launcher) buildCommand(app apps.App) (*exec.Cmd, error) {
	if app.Terminal {
		term := l.opts.Terminal
		if term == "" {
			term = "xterm"
		}
		return exec.Command(term, "-e", app.Exec), nil
	}

	parts := strings.Fields(app.Exec)
	if len(parts) == 0 {
		return nil, fmt.Errorf("launch %s: empty exec command", app.Name)
	}
	return exec.Command(parts[0], parts[1:]...), nil
}

// Rescan runs the scanner off the interactive path, then merges the
// result into the store and persists it under a single lock acquisition.
// Concurrent calls serialize on that lock, so merges never interleave.
func (l *Launcher) Rescan() (added, removed int, err error) {
	l.post(Event{Kind: ScanStarted})

	entries, parseErrs := desktop.Scan(l.opts.AppPaths())
	logParseErrors(parseErrs)

	added, removed, saveErr := l.db.MergeAndSave(entries, l.opts.SnapshotPath)
	l.markScanned()
	if saveErr != nil {
		// Non-fatal: the merged store is correct in memory and the next
		// successful save catches up.
		log.Error().Err(saveErr).Msg("saving snapshot after merge failed")
	}

	log.Info().Int("added", added).Int("removed", removed).Int("parse_errors", len(parseErrs)).Msg("rescan complete")
	l.post(Event{Kind: ScanDone, Added: added, Removed: removed, ParseErrors: len(parseErrs)})
	return added, removed, nil
}

// Events returns the notification channel. Posts never block the
// coordinator; when the buffer is full the oldest event is dropped.
func (l *Launcher) Events() <-chan Event {
	return l.events
}

func (l *Launcher) post(ev Event) {
	for {
		select {
		case l.events <- ev:
			return
		default:
			select {
			case <-l.events:
			default:
			}
		}
	}
}

// Stats reports the current index summary.
func (l *Launcher) Stats() Stats {
	l.mu.Lock()
	last := l.lastScan
	l.mu.Unlock()

	return Stats{
		Records:      l.db.Len(),
		SnapshotPath: l.opts.SnapshotPath,
		LastScan:     last,
	}
}

// DB exposes the underlying store to the command surface.
func (l *Launcher) DB() *apps.DB {
	return l.db
}

func (l *Launcher) markScanned() {
	l.mu.Lock()
	l.lastScan = time.Now()
	l.mu.Unlock()
}

func logParseErrors(errs []desktop.ParseError) {
	for _, perr := range errs {
		log.Warn().Str("path", perr.Path).Err(perr.Err).Msg("desktop file skipped")
	}
}
