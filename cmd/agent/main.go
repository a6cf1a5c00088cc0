package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"gpstracker/internal/config"
	"gpstracker/internal/location"
	"gpstracker/internal/settings"
	"gpstracker/internal/tracker"
	"gpstracker/internal/upload"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig func() config.Config
	openStore  func(path string) (*settings.Store, error)
	openSource func(path string) (*location.ReplaySource, error)
	notify     func(chan<- os.Signal, ...os.Signal)
	run        func(context.Context, config.Config, *settings.Store, location.Source, <-chan os.Signal, zerolog.Logger) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		openStore:  settings.Open,
		openSource: location.NewReplaySource,
		notify:     signal.Notify,
		run:        Run,
	}
}

func realMain(deps mainDeps) {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg := deps.loadConfig()

	store, err := deps.openStore(cfg.SettingsPath)
	if err != nil {
		log.Error().Err(err).Msg("opening settings store")
		return
	}
	applyConfig(store, cfg, log)

	source, err := deps.openSource(cfg.TrackFile)
	if err != nil {
		log.Error().Err(err).Str("file", cfg.TrackFile).Msg("opening track file")
		return
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, store, source, signals, log); err != nil {
		log.Error().Err(err).Msg("agent exited with error")
	}
}

// applyConfig pushes environment overrides into the persistent settings so a
// restart without the variables keeps the last known values.
func applyConfig(store *settings.Store, cfg config.Config, log zerolog.Logger) {
	if cfg.Username != "" {
		if err := store.SetUsername(cfg.Username); err != nil {
			log.Warn().Err(err).Msg("persisting username")
		}
	}
	if cfg.ServerURL != "" {
		if err := store.SetServerURL(cfg.ServerURL); err != nil {
			log.Warn().Err(err).Msg("persisting server url")
		}
	}
	if cfg.IntervalMinutes > 0 {
		if err := store.SetIntervalMinutes(cfg.IntervalMinutes); err != nil {
			log.Warn().Err(err).Msg("persisting interval")
		}
	}
	if cfg.DistanceFilterM > 0 {
		if err := store.SetDistanceFilterM(cfg.DistanceFilterM); err != nil {
			log.Warn().Err(err).Msg("persisting distance filter")
		}
	}
}

// Run starts a tracking session and keeps it alive until a termination
// signal or context cancellation, then stops it cleanly.
func Run(ctx context.Context, cfg config.Config, store *settings.Store, source location.Source, signals <-chan os.Signal, log zerolog.Logger) error {
	client := upload.NewClient(log)
	retrier := upload.NewRetrier(client, log)
	coord := tracker.New(store, source, retrier, log)

	coord.OnChange(func(snap tracker.Snapshot) {
		log.Debug().
			Str("state", snap.State.String()).
			Str("session_id", snap.SessionID).
			Float64("total_distance_m", snap.TotalDistanceM).
			Msg("state changed")
	})

	if err := coord.Start(ctx); err != nil {
		return err
	}

	select {
	case <-signals:
	case <-ctx.Done():
	}

	coord.Stop()
	return nil
}
