// file: internal/server/server_test.go
// version: 2.0.0
// guid: 8f9a0b1c-2d3e-4f5a-6b7c-8d9e0f1a2b3c

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/media-library/internal/cache"
	"github.com/jdfalk/media-library/internal/config"
	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/enrichment"
	"github.com/jdfalk/media-library/internal/metadata"
	"github.com/jdfalk/media-library/internal/models"
)

type stubResolver struct {
	calls atomic.Int32
	meta  map[string]*models.CanonicalMetadata // by entity name
	err   error
}

func (r *stubResolver) lookup(e *models.LibraryEntity) (*models.CanonicalMetadata, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	if m, ok := r.meta[e.Name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", metadata.ErrNotFound, e.Name)
}

func (r *stubResolver) ResolveArtist(ctx context.Context, e *models.LibraryEntity) (*models.CanonicalMetadata, error) {
	return r.lookup(e)
}

func (r *stubResolver) ResolveAlbum(ctx context.Context, e *models.LibraryEntity, hint string) (*models.CanonicalMetadata, error) {
	return r.lookup(e)
}

type stubPodcasts struct{ show *models.PodcastShow }

func (p *stubPodcasts) FetchPodcastShow(ctx context.Context, feedURI string) (*models.PodcastShow, error) {
	return p.show, nil
}

type testEnv struct {
	srv      *Server
	store    *database.MockStore
	resolver *stubResolver
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMockStore()
	resolver := &stubResolver{meta: map[string]*models.CanonicalMetadata{
		"Radiohead": {Provider: "musicbrainz", ProviderID: "a74b1b7f", Title: "Radiohead"},
		"Help":      {Provider: "musicbrainz", ProviderID: "help", Title: "Help!", ArtistName: "The Beatles"},
	}}
	svc := enrichment.NewService(enrichment.Deps{
		Resolver: resolver,
		Cache:    cache.New(),
		Store:    store,
		Podcasts: &stubPodcasts{show: &models.PodcastShow{Title: "The Show", Episodes: []models.PodcastEpisode{{GUID: "1"}}}},
		Settings: &config.Config{MetaPath: t.TempDir()},
	})
	srv := NewServer(Deps{Store: store, Service: svc, Providers: []string{"musicbrainz", "deezer"}})
	t.Cleanup(svc.Wait)
	return &testEnv{srv: srv, store: store, resolver: resolver}
}

func (e *testEnv) seed(t *testing.T, entity models.LibraryEntity) int64 {
	t.Helper()
	require.NoError(t, e.store.Save(context.Background(), &entity))
	return entity.ID
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})

	w := env.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"musicbrainz", "deezer"}, body["providers"])
	entities := body["metrics"].(map[string]any)["entities"].(map[string]any)
	assert.EqualValues(t, 1, entities["artist"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestListEntities(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})
	env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Portishead"})
	env.seed(t, models.LibraryEntity{Kind: models.KindAlbum, Name: "Help", ArtistName: "The Beatles"})

	w := env.do(t, http.MethodGet, "/api/v1/entities?kind=artist&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	require.Len(t, body["items"], 1)
	assert.Equal(t, "Radiohead", body["items"].([]any)[0].(map[string]any)["name"])

	w = env.do(t, http.MethodGet, "/api/v1/entities?offset=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])

	w = env.do(t, http.MethodGet, "/api/v1/entities?kind=planet")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEntity(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/entities/%d", id))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/entities/999").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/entities/abc").Code)
}

func TestGetMetadata_ResolvesAndCaches(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})
	path := fmt.Sprintf("/api/v1/metadata/artist/%d", id)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodGet, path)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := decode(t, w)["data"].(map[string]any)
		assert.Equal(t, "Radiohead", data["metadata"].(map[string]any)["title"])
	}
	assert.EqualValues(t, 1, env.resolver.calls.Load())

	w := env.do(t, http.MethodGet, "/api/v1/cache?state=resolved")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestGetMetadata_Album(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindAlbum, Name: "Help", ArtistName: "The Beatles"})

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/metadata/album/%d", id))
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "Help!", data["entity"].(map[string]any)["title"])
}

func TestGetMetadata_Podcast(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindPodcast, Name: "Show", FeedURI: "http://feeds.test/show.xml"})

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/metadata/podcast/%d", id))
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "The Show", data["show"].(map[string]any)["title"])
}

func TestGetMetadata_NotFoundIsCached(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Nobody"})
	path := fmt.Sprintf("/api/v1/metadata/artist/%d", id)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, path)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "METADATA_NOT_FOUND", decode(t, w)["code"])
	}
	assert.EqualValues(t, 1, env.resolver.calls.Load())
}

func TestGetMetadata_ProvidersUnavailable(t *testing.T) {
	env := setupTestServer(t)
	env.resolver.err = metadata.ErrProvidersUnavailable
	id := env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/metadata/artist/%d", id))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "PROVIDERS_UNAVAILABLE", decode(t, w)["code"])
}

func TestGetMetadata_BadPaths(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/metadata/album/%d", id)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/metadata/planet/1").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/metadata/artist/x").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/metadata/artist/404").Code)
}

func TestInvalidateMetadata(t *testing.T) {
	env := setupTestServer(t)
	id := env.seed(t, models.LibraryEntity{Kind: models.KindArtist, Name: "Radiohead"})
	path := fmt.Sprintf("/api/v1/metadata/artist/%d", id)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path).Code)
	assert.EqualValues(t, 2, env.resolver.calls.Load())

	w := env.do(t, http.MethodDelete, path+"?refresh=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, env.resolver.calls.Load())

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/metadata").Code)
	w = env.do(t, http.MethodGet, "/api/v1/cache")
	assert.EqualValues(t, 0, decode(t, w)["count"])
}

func TestListCache_BadState(t *testing.T) {
	env := setupTestServer(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/cache?state=bogus").Code)
}

func TestListScans(t *testing.T) {
	env := setupTestServer(t)
	require.NoError(t, env.store.CreateScanRun(context.Background(), &database.ScanRun{ID: "01J", StartedAt: time.Now(), Total: 2}))

	w := env.do(t, http.MethodGet, "/api/v1/scans")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "running", body["items"].([]any)[0].(map[string]any)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	env := setupTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Start(ctx, ServerConfig{Host: "127.0.0.1", Port: "0"}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
