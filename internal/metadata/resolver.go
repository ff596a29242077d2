// file: internal/metadata/resolver.go
// version: 1.1.0
// guid: 4c8a2e6f-0b13-4d97-a5e2-9f7b1c3d8e20

package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metrics"
	"github.com/jdfalk/media-library/internal/models"
)

// Resolver walks providers in priority order and returns the first match.
// The provider list is fixed at construction.
type Resolver struct {
	providers []Provider
	log       *logger.Logger
}

// NewResolver creates a resolver over providers, which must already be in
// priority order.
func NewResolver(log *logger.Logger, providers ...Provider) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	ordered := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			ordered = append(ordered, p)
		}
	}
	return &Resolver{providers: ordered, log: log}
}

// OrderByPriority arranges available providers by the configured priority.
// Names with no matching provider are reported in skipped.
func OrderByPriority(priority []string, available ...Provider) (ordered []Provider, skipped []string) {
	byName := make(map[string]Provider, len(available))
	for _, p := range available {
		if p != nil {
			byName[p.Name()] = p
		}
	}
	for _, name := range priority {
		if p, ok := byName[name]; ok {
			ordered = append(ordered, p)
			delete(byName, name)
			continue
		}
		skipped = append(skipped, name)
	}
	return ordered, skipped
}

// Providers returns the provider names in priority order.
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// ResolveArtist resolves metadata for an artist entity.
func (r *Resolver) ResolveArtist(ctx context.Context, entity *models.LibraryEntity) (*models.CanonicalMetadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrInvalidQuery)
	}
	return r.Resolve(ctx, Query{Kind: models.KindArtist, Name: entity.Name})
}

// ResolveAlbum resolves metadata for an album entity. An empty artistHint
// falls back to the entity's own artist name.
func (r *Resolver) ResolveAlbum(ctx context.Context, entity *models.LibraryEntity, artistHint string) (*models.CanonicalMetadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrInvalidQuery)
	}
	if artistHint == "" {
		artistHint = entity.ArtistName
	}
	return r.Resolve(ctx, Query{Kind: models.KindAlbum, Name: entity.Name, ArtistHint: artistHint})
}

// Resolve queries providers in order. Provider failures are logged and the
// next provider is tried. When nothing resolves, the result is
// ErrProvidersUnavailable if every provider failed and ErrNotFound otherwise.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.ObserveResolution(string(q.Kind), time.Since(start)) }()

	var failures []error
	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, err := p.Resolve(ctx, q)
		switch {
		case err == nil && meta != nil:
			metrics.IncProviderCall(p.Name(), "resolved")
			r.log.Debugf("%s resolved by %s (%s)", q, p.Name(), meta.ProviderID)
			return meta, nil
		case err == nil || errors.Is(err, ErrNotFound):
			metrics.IncProviderCall(p.Name(), "not_found")
			r.log.Debugf("%s not found by %s", q, p.Name())
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			metrics.IncProviderCall(p.Name(), "error")
			r.log.Warnf("provider %s failed for %s, trying next: %v", p.Name(), q, err)
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 && len(failures) == len(r.providers) {
		return nil, unavailable(failures)
	}
	if len(failures) > 0 {
		r.log.Debugf("%s not found by any answering provider, %d failed", q, len(failures))
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, q)
}
