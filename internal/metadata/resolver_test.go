// file: internal/metadata/resolver_test.go
// version: 1.1.0
// guid: 0a5d9c3e-6b27-4f81-9d4c-e2b7a1f6c058

package metadata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/media-library/internal/models"
)

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, q Query) (*models.CanonicalMetadata, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Resolve(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	f.calls.Add(1)
	return f.fn(ctx, q)
}

func failing(name string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(context.Context, Query) (*models.CanonicalMetadata, error) {
		return nil, &ProviderError{Provider: name, StatusCode: 503, Err: errors.New("down")}
	}}
}

func notFound(name string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(context.Context, Query) (*models.CanonicalMetadata, error) {
		return nil, ErrNotFound
	}}
}

func resolving(name, id string) *fakeProvider {
	return &fakeProvider{name: name, fn: func(_ context.Context, q Query) (*models.CanonicalMetadata, error) {
		return &models.CanonicalMetadata{Provider: name, ProviderID: id, Title: q.Name}, nil
	}}
}

func TestResolver_FallbackStopsAtFirstResolved(t *testing.T) {
	a, b, c := failing("a"), resolving("b", "x"), resolving("c", "y")
	r := NewResolver(nil, a, b, c)

	got, err := r.ResolveArtist(context.Background(), &models.LibraryEntity{ID: 1, Kind: models.KindArtist, Name: "Radiohead"})
	require.NoError(t, err)
	assert.Equal(t, "b", got.Provider)
	assert.Equal(t, "x", got.ProviderID)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
	assert.EqualValues(t, 0, c.calls.Load())
}

func TestResolver_AllNotFound(t *testing.T) {
	r := NewResolver(nil, notFound("a"), notFound("b"))
	_, err := r.ResolveArtist(context.Background(), &models.LibraryEntity{Name: "Nobody"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrProvidersUnavailable)
}

func TestResolver_AllFailed(t *testing.T) {
	r := NewResolver(nil, failing("a"), failing("b"))
	_, err := r.ResolveArtist(context.Background(), &models.LibraryEntity{Name: "Anyone"})
	require.ErrorIs(t, err, ErrProvidersUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "a", perr.Provider)
}

func TestResolver_MixedFailureIsNotFound(t *testing.T) {
	a, b := failing("a"), notFound("b")
	r := NewResolver(nil, a, b)
	_, err := r.ResolveArtist(context.Background(), &models.LibraryEntity{Name: "Anyone"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrProvidersUnavailable)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestResolver_EmptyNameMakesNoCalls(t *testing.T) {
	a := resolving("a", "1")
	r := NewResolver(nil, a)
	_, err := r.ResolveArtist(context.Background(), &models.LibraryEntity{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.EqualValues(t, 0, a.calls.Load())
}

func TestResolver_AlbumHintDefaultsToEntityArtist(t *testing.T) {
	var seen Query
	p := &fakeProvider{name: "a", fn: func(_ context.Context, q Query) (*models.CanonicalMetadata, error) {
		seen = q
		return &models.CanonicalMetadata{Provider: "a", ProviderID: "1", Title: q.Name}, nil
	}}
	r := NewResolver(nil, p)

	_, err := r.ResolveAlbum(context.Background(), &models.LibraryEntity{Kind: models.KindAlbum, Name: "Help", ArtistName: "The Beatles"}, "")
	require.NoError(t, err)
	assert.Equal(t, Query{Kind: models.KindAlbum, Name: "Help", ArtistHint: "The Beatles"}, seen)

	_, err = r.ResolveAlbum(context.Background(), &models.LibraryEntity{Kind: models.KindAlbum, Name: "Help", ArtistName: "The Beatles"}, "Override")
	require.NoError(t, err)
	assert.Equal(t, "Override", seen.ArtistHint)
}

func TestResolver_CancellationStopsIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeProvider{name: "a", fn: func(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
		cancel()
		return nil, &ProviderError{Provider: "a", Err: ctx.Err()}
	}}
	b := resolving("b", "1")
	r := NewResolver(nil, a, b)

	_, err := r.ResolveArtist(ctx, &models.LibraryEntity{Name: "Radiohead"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, b.calls.Load())
}

func TestOrderByPriority(t *testing.T) {
	mb, dz := resolving("musicbrainz", "1"), resolving("deezer", "2")
	ordered, skipped := OrderByPriority([]string{"deezer", "spotify", "musicbrainz"}, mb, dz)
	require.Len(t, ordered, 2)
	assert.Equal(t, "deezer", ordered[0].Name())
	assert.Equal(t, "musicbrainz", ordered[1].Name())
	assert.Equal(t, []string{"spotify"}, skipped)

	r := NewResolver(nil, ordered...)
	assert.Equal(t, []string{"deezer", "musicbrainz"}, r.Providers())
}
