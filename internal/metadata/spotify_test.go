// file: internal/metadata/spotify_test.go
// version: 1.1.0
// guid: 8c4a2f6e-1d39-4b75-a0e8-f7b3c5d9e142

package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/media-library/internal/models"
)

func newSpotifyTestServer(t *testing.T, tokenHits *atomic.Int32, search string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		tokenHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(search))
	})
	return httptest.NewServer(mux)
}

func TestSpotify_ResolveArtist(t *testing.T) {
	var tokenHits atomic.Int32
	srv := newSpotifyTestServer(t, &tokenHits, `{"artists":{"items":[
		{"id":"4Z8W4fKeB5YxbusRsdQVPb","name":"Radiohead","genres":["art rock","alternative rock"],
		 "images":[{"url":"http://img/small","width":160},{"url":"http://img/large","width":640}]}
	]}}`)
	defer srv.Close()

	p := NewSpotifyProviderWithBaseURL(srv.URL, srv.URL, "id", "secret")
	require.True(t, p.Configured())

	got, err := p.Resolve(context.Background(), Query{Kind: models.KindArtist, Name: "Radiohead"})
	require.NoError(t, err)
	assert.Equal(t, "spotify", got.Provider)
	assert.Equal(t, "4Z8W4fKeB5YxbusRsdQVPb", got.ProviderID)
	assert.Equal(t, []string{"http://img/large", "http://img/small"}, got.ImageURIs)
	assert.Equal(t, "art rock, alternative rock", got.Description)

	_, err = p.Resolve(context.Background(), Query{Kind: models.KindArtist, Name: "Radiohead"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, tokenHits.Load(), "token should be reused")
}

func TestSpotify_ResolveAlbum(t *testing.T) {
	var tokenHits atomic.Int32
	srv := newSpotifyTestServer(t, &tokenHits, `{"albums":{"items":[
		{"id":"0PT5m6hwPRrpBFlK5BzpH3","name":"Help!","album_type":"album","release_date":"1965-08-06",
		 "images":[{"url":"http://img/help","width":640}],"artists":[{"name":"The Beatles"}]}
	]}}`)
	defer srv.Close()

	p := NewSpotifyProviderWithBaseURL(srv.URL, srv.URL, "id", "secret")
	got, err := p.Resolve(context.Background(), Query{Kind: models.KindAlbum, Name: "Help!", ArtistHint: "The Beatles"})
	require.NoError(t, err)
	assert.Equal(t, "The Beatles", got.ArtistName)
	assert.Equal(t, "http://img/help", got.PrimaryImage())
	require.NotNil(t, got.ReleaseDate)
	assert.Equal(t, 1965, got.ReleaseDate.Year())
}

func TestSpotify_AlbumHintFallsBackToTitleSearch(t *testing.T) {
	var searches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		searches.Add(1)
		if strings.Contains(r.URL.Query().Get("q"), "artist:") {
			_, _ = w.Write([]byte(`{"albums":{"items":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"albums":{"items":[
			{"id":"0PT5m6hwPRrpBFlK5BzpH3","name":"Help!","album_type":"album","artists":[{"name":"The Beatles"}]}
		]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewSpotifyProviderWithBaseURL(srv.URL, srv.URL, "id", "secret")
	got, err := p.Resolve(context.Background(), Query{Kind: models.KindAlbum, Name: "Help!", ArtistHint: "Beatles"})
	require.NoError(t, err)
	assert.Equal(t, "0PT5m6hwPRrpBFlK5BzpH3", got.ProviderID)
	assert.EqualValues(t, 2, searches.Load())
}

func TestSpotify_NotConfigured(t *testing.T) {
	p := NewSpotifyProviderWithBaseURL("http://unused.invalid", "http://unused.invalid", "", "")
	assert.False(t, p.Configured())
	_, err := p.Resolve(context.Background(), Query{Kind: models.KindArtist, Name: "Radiohead"})
	require.ErrorIs(t, err, ErrSpotifyNotConfigured)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Temporary())
}
