package launcher

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch subscribes to filesystem events on every configured application
// directory and triggers a rescan when they settle. Events are coalesced
// over the debounce window so a burst of churn (a package install touching
// dozens of files) produces one rescan, not many. Blocks until ctx is
// done.
func (l *Launcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, path := range l.opts.AppPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := watcher.Add(path); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("watch failed")
		}
	}

	window := l.opts.Debounce
	if window <= 0 {
		window = 10 * time.Second
	}

	// The timer stays idle until the first event, then resets on every
	// further event inside the window.
	debounce := time.NewTimer(window)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("filesystem event")
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(window)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("filesystem watcher error")
		case <-debounce.C:
			if _, _, err := l.Rescan(); err != nil {
				log.Error().Err(err).Msg("watch-triggered rescan failed")
			}
		}
	}
}
