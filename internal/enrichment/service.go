// file: internal/enrichment/service.go
// version: 1.1.0
// guid: 2c7e9a4f-6b18-4d53-a0e7-8f3b5c1d9e26

// Package enrichment is the entry point the scanner, CLI and HTTP API use to
// attach remote metadata to library entities.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jdfalk/media-library/internal/cache"
	"github.com/jdfalk/media-library/internal/config"
	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metadata"
	"github.com/jdfalk/media-library/internal/metrics"
	"github.com/jdfalk/media-library/internal/models"
)

var (
	// ErrLibraryStore wraps failures writing to the library store. These are
	// the only errors that abort an enrichment run.
	ErrLibraryStore = errors.New("library store failure")

	// ErrUnsupportedKind is returned for entity kinds no provider covers.
	ErrUnsupportedKind = errors.New("unsupported entity kind")
)

const (
	defaultShowTTL         = time.Hour
	defaultDownloadTimeout = 2 * time.Minute
)

// Resolver resolves canonical metadata for artists and albums.
type Resolver interface {
	ResolveArtist(ctx context.Context, entity *models.LibraryEntity) (*models.CanonicalMetadata, error)
	ResolveAlbum(ctx context.Context, entity *models.LibraryEntity, artistHint string) (*models.CanonicalMetadata, error)
}

// LibraryStore persists enriched entities.
type LibraryStore interface {
	Save(ctx context.Context, entity *models.LibraryEntity) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Resolver   Resolver
	Cache      *cache.Cache
	Store      LibraryStore
	Podcasts   metadata.PodcastFetcher
	Settings   config.Settings
	HTTPClient *http.Client // artwork downloads
	Logger     *logger.Logger
	ShowTTL    time.Duration
}

// Service resolves metadata through the cache, records results on entities
// and downloads artwork in the background.
type Service struct {
	resolver Resolver
	cache    *cache.Cache
	store    LibraryStore
	podcasts metadata.PodcastFetcher
	settings config.Settings
	client   *http.Client
	log      *logger.Logger
	shows    *cache.TTL[*models.PodcastShow]

	downloads       sync.WaitGroup
	inflight        sync.Map // cache.Key -> struct{}
	downloadTimeout time.Duration
}

// NewService builds a Service. Resolver, Cache, Store and Settings are
// required.
func NewService(d Deps) *Service {
	if d.Cache == nil {
		d.Cache = cache.New()
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.ShowTTL <= 0 {
		d.ShowTTL = defaultShowTTL
	}
	return &Service{
		resolver:        d.Resolver,
		cache:           d.Cache,
		store:           d.Store,
		podcasts:        d.Podcasts,
		settings:        d.Settings,
		client:          d.HTTPClient,
		log:             d.Logger,
		shows:           cache.NewTTL[*models.PodcastShow](d.ShowTTL),
		downloadTimeout: defaultDownloadTimeout,
	}
}

// Cache returns the metadata cache used by the service.
func (s *Service) Cache() *cache.Cache { return s.cache }

// GetArtistMetadata returns canonical metadata for an artist entity.
func (s *Service) GetArtistMetadata(ctx context.Context, entity *models.LibraryEntity) (*models.CanonicalMetadata, error) {
	if err := checkEntity(entity, models.KindArtist); err != nil {
		return nil, err
	}
	meta, err := s.cache.GetOrResolve(ctx, keyOf(entity), func(ctx context.Context) (*models.CanonicalMetadata, error) {
		return s.resolver.ResolveArtist(ctx, entity)
	})
	if err != nil {
		return nil, err
	}
	return meta, s.apply(ctx, entity, meta.Title, meta.PrimaryImage())
}

// GetAlbumMetadata returns canonical metadata for an album entity. artistName
// disambiguates albums sharing a title.
func (s *Service) GetAlbumMetadata(ctx context.Context, entity *models.LibraryEntity, artistName string) (*models.CanonicalMetadata, error) {
	if err := checkEntity(entity, models.KindAlbum); err != nil {
		return nil, err
	}
	meta, err := s.cache.GetOrResolve(ctx, keyOf(entity), func(ctx context.Context) (*models.CanonicalMetadata, error) {
		return s.resolver.ResolveAlbum(ctx, entity, artistName)
	})
	if err != nil {
		return nil, err
	}
	return meta, s.apply(ctx, entity, meta.Title, meta.PrimaryImage())
}

// GetPodcastShow fetches the show for a podcast entity. A re-fetch keeps the
// known episodes and appends new ones. An absent feed is ErrNotFound and
// leaves the known show in place for the next successful fetch.
func (s *Service) GetPodcastShow(ctx context.Context, entity *models.LibraryEntity) (*models.PodcastShow, error) {
	if err := checkEntity(entity, models.KindPodcast); err != nil {
		return nil, err
	}
	if entity.FeedURI == "" {
		return nil, fmt.Errorf("%w: podcast %d has no feed URI", metadata.ErrInvalidQuery, entity.ID)
	}
	if s.podcasts == nil {
		return nil, fmt.Errorf("%w: no podcast provider configured", ErrUnsupportedKind)
	}

	key := entity.FeedURI
	known, fresh, ok := s.shows.Peek(key)
	if ok && fresh {
		return known, nil
	}

	fetched, err := s.podcasts.FetchPodcastShow(ctx, entity.FeedURI)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		if ok {
			s.log.Warnf("podcast feed %s unavailable, keeping %d known episodes", entity.FeedURI, len(known.Episodes))
		}
		return nil, fmt.Errorf("%w: podcast feed %s", metadata.ErrNotFound, entity.FeedURI)
	}

	show := fetched
	if ok {
		merged := *known
		merged.Episodes = append([]models.PodcastEpisode(nil), known.Episodes...)
		added := merged.MergeEpisodes(fetched.Episodes)
		merged.Title = fetched.Title
		merged.Description = fetched.Description
		merged.ImageURI = fetched.ImageURI
		s.log.Debugf("podcast %s: %d new episodes", entity.FeedURI, added)
		show = &merged
	}
	s.shows.Set(key, show)

	return show, s.apply(ctx, entity, show.Title, show.ImageURI)
}

// RefreshMetadata discards cached results and artwork for entity and
// resolves it again.
func (s *Service) RefreshMetadata(ctx context.Context, entity *models.LibraryEntity) error {
	if entity == nil {
		return fmt.Errorf("%w: nil entity", metadata.ErrInvalidQuery)
	}
	if err := s.Invalidate(entity.Kind, entity.ID); err != nil {
		return err
	}
	if entity.Kind == models.KindPodcast {
		s.shows.Invalidate(entity.FeedURI)
	}
	if err := metadata.RemoveArtwork(s.settings.MetadataPath(), entity.Kind, entity.ID); err != nil {
		s.log.Warnf("%v", err)
	}
	entity.AssetPath = ""
	return s.Enrich(ctx, entity)
}

// Invalidate drops the cached resolution for one entity.
func (s *Service) Invalidate(kind models.EntityKind, id int64) error {
	return s.cache.Invalidate(cache.Key{Kind: kind, ID: id})
}

// Enrich dispatches entity to the lookup for its kind.
func (s *Service) Enrich(ctx context.Context, entity *models.LibraryEntity) error {
	if entity == nil {
		return fmt.Errorf("%w: nil entity", metadata.ErrInvalidQuery)
	}
	var err error
	switch entity.Kind {
	case models.KindArtist:
		_, err = s.GetArtistMetadata(ctx, entity)
	case models.KindAlbum:
		_, err = s.GetAlbumMetadata(ctx, entity, entity.ArtistName)
	case models.KindPodcast:
		_, err = s.GetPodcastShow(ctx, entity)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedKind, entity.Kind)
	}
	return err
}

// Wait blocks until every background artwork download has finished.
func (s *Service) Wait() {
	s.downloads.Wait()
}

// apply records the resolved title on entity, saves it when it changed and
// schedules an artwork download when none is stored yet.
func (s *Service) apply(ctx context.Context, entity *models.LibraryEntity, title, imageURL string) error {
	changed := false
	if title != "" && entity.Title != title {
		entity.Title = title
		changed = true
	}
	if entity.AssetPath != "" && !s.settings.IsFileAvailable(entity.AssetPath) {
		entity.AssetPath = ""
		changed = true
	}
	if entity.AssetPath == "" {
		if existing := metadata.ArtworkPath(s.settings.MetadataPath(), entity.Kind, entity.ID); existing != "" {
			entity.AssetPath = existing
			changed = true
		}
	}
	if changed {
		if err := s.store.Save(ctx, entity); err != nil {
			return fmt.Errorf("%w: %w", ErrLibraryStore, err)
		}
	}
	if entity.AssetPath == "" && imageURL != "" {
		s.downloadArtwork(ctx, *entity, imageURL)
	}
	return nil
}

// downloadArtwork fetches artwork in the background and saves the path on a
// copy of the entity. Failures are logged and left for a later pass.
func (s *Service) downloadArtwork(ctx context.Context, entity models.LibraryEntity, imageURL string) {
	key := keyOf(&entity)
	if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
		return
	}
	// Downloads outlive the request that triggered them.
	base := context.WithoutCancel(ctx)

	s.downloads.Add(1)
	go func() {
		defer s.downloads.Done()
		defer s.inflight.Delete(key)

		dctx, cancel := context.WithTimeout(base, s.downloadTimeout)
		defer cancel()

		path, err := metadata.DownloadArtwork(dctx, s.client, imageURL, s.settings.MetadataPath(), entity.Kind, entity.ID)
		if err != nil {
			metrics.IncAssetDownload("failed")
			s.log.Warnf("artwork for %s: %v", key, err)
			return
		}
		metrics.IncAssetDownload("ok")
		entity.AssetPath = path
		if err := s.store.Save(dctx, &entity); err != nil {
			s.log.Errorf("failed to record artwork for %s: %v", key, err)
		}
	}()
}

func keyOf(e *models.LibraryEntity) cache.Key {
	return cache.Key{Kind: e.Kind, ID: e.ID}
}

func checkEntity(e *models.LibraryEntity, want models.EntityKind) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", metadata.ErrInvalidQuery)
	}
	if e.Kind != want {
		return fmt.Errorf("%w: entity %d is a %s, not a %s", metadata.ErrInvalidQuery, e.ID, e.Kind, want)
	}
	return nil
}
