// file: cmd/app.go
// version: 1.0.0
// guid: 0d4f8b2a-6e39-4c17-a5d1-9b7e3c2f6a84

package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jdfalk/media-library/internal/cache"
	"github.com/jdfalk/media-library/internal/config"
	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/enrichment"
	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metadata"
)

// app wires the library store, the metadata cache, the providers and the
// enrichment service from one Config.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *database.SQLiteStore
	backend  *cache.PebbleBackend
	cache    *cache.Cache
	resolver *metadata.Resolver
	svc      *enrichment.Service
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.New("media-library", logger.ParseLevel(cfg.LogLevel))

	store, err := database.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{cfg: cfg, log: log, store: store}
	opts := []cache.Option{cache.WithLogger(log.With("cache"))}
	if cfg.CachePath != "" {
		backend, err := cache.OpenPebbleBackend(cfg.CachePath)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.backend = backend
		opts = append(opts, cache.WithBackend(backend))
	}
	a.cache = cache.New(opts...)

	providers := buildProviders(cfg, log)
	if len(providers) == 0 {
		a.Close()
		return nil, fmt.Errorf("no metadata providers available for priority %v", cfg.ProviderPriority)
	}
	a.resolver = metadata.NewResolver(log.With("resolver"), providers...)

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	a.svc = enrichment.NewService(enrichment.Deps{
		Resolver:   a.resolver,
		Cache:      a.cache,
		Store:      store,
		Podcasts:   metadata.NewRSSPodcastProvider(client, cfg.MusicBrainzUserAgent, log.With("podcast")),
		Settings:   cfg,
		HTTPClient: client,
		Logger:     log.With("enrichment"),
	})
	return a, nil
}

// buildProviders creates the catalog adapters in priority order. Spotify
// without credentials is left out so it does not turn every lookup into a
// provider failure.
func buildProviders(cfg *config.Config, log *logger.Logger) []metadata.Provider {
	available := []metadata.Provider{
		metadata.NewMusicBrainzProvider(cfg.MusicBrainzUserAgent, cfg.HTTPTimeout),
		metadata.NewDeezerProvider(cfg.HTTPTimeout),
	}
	spotify := metadata.NewSpotifyProvider(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.HTTPTimeout)
	if spotify.Configured() {
		available = append(available, spotify)
	}

	ordered, skipped := metadata.OrderByPriority(cfg.ProviderPriority, available...)
	for _, name := range skipped {
		log.Infof("provider %s skipped: not configured", name)
	}
	return ordered
}

// Close waits for background downloads and releases the stores.
func (a *app) Close() error {
	if a.svc != nil {
		a.svc.Wait()
	}
	var errs []error
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
