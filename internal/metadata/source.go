// file: internal/metadata/source.go
// version: 2.1.0
// guid: a1b2c3d4-e5f6-7a8b-9c0d-e1f2a3b4c5d6

package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jdfalk/media-library/internal/models"
)

// Provider is a remote catalog adapter. Implementations are stateless apart
// from their HTTP transport and never touch the cache.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, q Query) (*models.CanonicalMetadata, error)
}

// Query describes one lookup. ArtistHint is only used for album queries.
type Query struct {
	Kind       models.EntityKind
	Name       string
	ArtistHint string
}

// Validate rejects queries that must not reach the network.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidQuery)
	}
	switch q.Kind {
	case models.KindArtist, models.KindAlbum:
		return nil
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidQuery, q.Kind)
	}
}

func (q Query) String() string {
	if q.ArtistHint != "" {
		return fmt.Sprintf("%s %q (artist %q)", q.Kind, q.Name, q.ArtistHint)
	}
	return fmt.Sprintf("%s %q", q.Kind, q.Name)
}

// albumSearch returns candidates for an album query, narrowed server-side to
// the artist hint when byArtist is set.
type albumSearch func(ctx context.Context, byArtist bool) ([]*models.CanonicalMetadata, error)

// selectAlbum runs search filtered by the artist hint and, when nothing is
// selected, once more by title alone. Tag spellings that differ from the
// catalog's artist name then still reach SelectBest, which prefers the hint
// but falls back to the whole tier.
func selectAlbum(ctx context.Context, q Query, search albumSearch) (*models.CanonicalMetadata, error) {
	byArtist := q.ArtistHint != ""
	candidates, err := search(ctx, byArtist)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	meta, err := SelectBest(q, candidates)
	if !byArtist || !errors.Is(err, ErrNotFound) {
		return meta, err
	}
	if candidates, err = search(ctx, false); err != nil {
		return nil, err
	}
	return SelectBest(q, candidates)
}
