// file: internal/metadata/spotify.go
// version: 1.1.0
// guid: 3b9d5f1e-7a2c-4c84-9e6b-0d4a8f2c6e17

package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/jdfalk/media-library/internal/collection"
	"github.com/jdfalk/media-library/internal/models"
)

// ErrSpotifyNotConfigured is returned when no client credentials were given.
var ErrSpotifyNotConfigured = errors.New("spotify client credentials not configured")

// SpotifyProvider resolves artists and albums against the Spotify Web API
// using the client-credentials flow.
type SpotifyProvider struct {
	transport  *Transport
	apiURL     string
	configured bool
}

// NewSpotifyProvider creates a provider using SPOTIFY_API_BASE_URL and
// SPOTIFY_ACCOUNTS_BASE_URL when set.
func NewSpotifyProvider(clientID, clientSecret string, timeout time.Duration) *SpotifyProvider {
	apiURL := os.Getenv("SPOTIFY_API_BASE_URL")
	if apiURL == "" {
		apiURL = "https://api.spotify.com"
	}
	accountsURL := os.Getenv("SPOTIFY_ACCOUNTS_BASE_URL")
	if accountsURL == "" {
		accountsURL = "https://accounts.spotify.com"
	}
	p := NewSpotifyProviderWithBaseURL(apiURL, accountsURL, clientID, clientSecret)
	if timeout > 0 {
		p.transport.client.Timeout = timeout
	}
	return p
}

// NewSpotifyProviderWithBaseURL creates a provider against custom endpoints.
func NewSpotifyProviderWithBaseURL(apiURL, accountsURL, clientID, clientSecret string) *SpotifyProvider {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     strings.TrimRight(accountsURL, "/") + "/api/token",
	}
	// Token fetches use the background context; each API call carries its own.
	client := cc.Client(context.Background())
	client.Timeout = 30 * time.Second
	return &SpotifyProvider{
		transport:  NewTransport("spotify", client, nil, ""),
		apiURL:     strings.TrimRight(apiURL, "/"),
		configured: clientID != "" && clientSecret != "",
	}
}

// Name returns the provider key used in provider_priority.
func (p *SpotifyProvider) Name() string { return "spotify" }

// Configured reports whether client credentials are present.
func (p *SpotifyProvider) Configured() bool { return p.configured }

// Transport exposes the HTTP transport so callers can tune retries.
func (p *SpotifyProvider) Transport() *Transport { return p.transport }

type spotifyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type spotifySearch struct {
	Artists *struct {
		Items []spotifyArtist `json:"items"`
	} `json:"artists,omitempty"`
	Albums *struct {
		Items []spotifyAlbum `json:"items"`
	} `json:"albums,omitempty"`
}

type spotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []spotifyImage `json:"images"`
}

type spotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AlbumType   string         `json:"album_type"`
	ReleaseDate string         `json:"release_date"`
	Images      []spotifyImage `json:"images"`
	Artists     []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// Resolve searches Spotify and selects the best candidate.
func (p *SpotifyProvider) Resolve(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if !p.configured {
		return nil, &ProviderError{Provider: p.Name(), StatusCode: http.StatusUnauthorized, Err: ErrSpotifyNotConfigured}
	}

	if q.Kind == models.KindAlbum {
		return selectAlbum(ctx, q, func(ctx context.Context, byArtist bool) ([]*models.CanonicalMetadata, error) {
			return p.searchAlbums(ctx, q, byArtist)
		})
	}

	params := url.Values{}
	params.Set("limit", "10")
	params.Set("type", "artist")
	params.Set("q", q.Name)

	var resp spotifySearch
	if err := p.transport.GetJSON(ctx, p.apiURL+"/v1/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	var candidates []*models.CanonicalMetadata
	if resp.Artists != nil {
		for _, a := range resp.Artists.Items {
			candidates = append(candidates, &models.CanonicalMetadata{
				Provider:    p.Name(),
				ProviderID:  a.ID,
				Title:       a.Name,
				ImageURIs:   spotifyImageURLs(a.Images),
				Description: strings.Join(a.Genres, ", "),
			})
		}
	}
	return SelectBest(q, candidates)
}

func (p *SpotifyProvider) searchAlbums(ctx context.Context, q Query, byArtist bool) ([]*models.CanonicalMetadata, error) {
	query := "album:" + q.Name
	if byArtist {
		query += " artist:" + q.ArtistHint
	}
	params := url.Values{}
	params.Set("limit", "10")
	params.Set("type", "album")
	params.Set("q", query)

	var resp spotifySearch
	if err := p.transport.GetJSON(ctx, p.apiURL+"/v1/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Albums == nil {
		return nil, nil
	}

	candidates := make([]*models.CanonicalMetadata, 0, len(resp.Albums.Items))
	for _, a := range resp.Albums.Items {
		artist := ""
		if len(a.Artists) > 0 {
			artist = a.Artists[0].Name
		}
		desc := ""
		if a.AlbumType != "" && artist != "" {
			desc = fmt.Sprintf("%s by %s", a.AlbumType, artist)
		}
		candidates = append(candidates, &models.CanonicalMetadata{
			Provider:    p.Name(),
			ProviderID:  a.ID,
			Title:       a.Name,
			ArtistName:  artist,
			ImageURIs:   spotifyImageURLs(a.Images),
			Description: desc,
			ReleaseDate: models.ParseReleaseDate(a.ReleaseDate),
		})
	}
	return candidates, nil
}

// spotifyImageURLs returns image URLs largest first.
func spotifyImageURLs(images []spotifyImage) []string {
	sorted := collection.SortedBy(images, func(a, b spotifyImage) bool { return a.Width > b.Width })
	out := make([]string, 0, len(sorted))
	for _, img := range sorted {
		if img.URL != "" {
			out = append(out, img.URL)
		}
	}
	return out
}
