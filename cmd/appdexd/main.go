package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/appdex/appdexd/internal/apps"
	"github.com/appdex/appdexd/internal/config"
	"github.com/appdex/appdexd/internal/launcher"
	"github.com/appdex/appdexd/internal/usage"
	"github.com/appdex/appdexd/server"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("APPDEX_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := config.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize config")
	}
	if err := config.Run(); err != nil {
		log.Fatal().Err(err).Msg("failed to start config watcher")
	}
	cfg := config.Get()

	journal, err := usage.Open(cfg.DataDir())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open usage journal")
	}
	defer journal.Close()

	opts := launcher.Options{
		AppPaths:     cfg.AppPaths,
		SnapshotPath: cfg.SnapshotPath(),
		Terminal:     cfg.Terminal(),
		ListLimit:    cfg.ListLimit(),
		Debounce:     cfg.Debounce(),
		Journal:      journal,
	}

	l, err := launcher.New(opts)
	if err != nil && !errors.Is(err, apps.ErrNotFound) {
		// A corrupt snapshot is not worth dying over; rebuild from a
		// fresh scan and the usage journal.
		log.Warn().Err(err).Msg("snapshot unusable, rebuilding index")
		l, err = launcher.Rebuild(opts)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application index")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for ev := range l.Events() {
			switch ev.Kind {
			case launcher.ScanStarted:
				log.Debug().Msg("scan started")
			case launcher.ScanDone:
				log.Debug().Int("added", ev.Added).Int("removed", ev.Removed).Msg("scan done")
			}
		}
	}()

	go func() {
		if err := l.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("filesystem watcher stopped")
		}
	}()

	srv, err := server.NewServer(l, cfg.UnixSocket(), cfg.ListLimit())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info().Str("socket", cfg.UnixSocket()).Int("records", l.Stats().Records).Msg("appdexd started")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		if err := srv.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping server")
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	log.Info().Msg("appdexd stopped")
}
