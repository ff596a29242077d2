// file: internal/metadata/musicbrainz.go
// version: 1.1.0
// guid: 6a3e9d2b-1c5f-4e78-8b0a-4f2d7c9e1b53

package metadata

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdfalk/media-library/internal/models"
)

// MusicBrainz asks clients to stay at or below one request per second.
const musicBrainzRate = rate.Limit(1)

// MusicBrainzProvider resolves artists and release groups against the
// MusicBrainz web service. Album artwork comes from the Cover Art Archive.
type MusicBrainzProvider struct {
	transport   *Transport
	baseURL     string
	coverArtURL string
}

// NewMusicBrainzProvider creates a provider using MUSICBRAINZ_BASE_URL and
// COVERARTARCHIVE_BASE_URL when set.
func NewMusicBrainzProvider(userAgent string, timeout time.Duration) *MusicBrainzProvider {
	baseURL := os.Getenv("MUSICBRAINZ_BASE_URL")
	if baseURL == "" {
		baseURL = "https://musicbrainz.org"
	}
	coverURL := os.Getenv("COVERARTARCHIVE_BASE_URL")
	if coverURL == "" {
		coverURL = "https://coverartarchive.org"
	}
	p := NewMusicBrainzProviderWithBaseURL(baseURL, coverURL, userAgent)
	p.transport = NewTransport(p.Name(), httpClient(timeout), rate.NewLimiter(musicBrainzRate, 1), userAgent)
	return p
}

// NewMusicBrainzProviderWithBaseURL creates an unthrottled provider against
// custom endpoints.
func NewMusicBrainzProviderWithBaseURL(baseURL, coverArtURL, userAgent string) *MusicBrainzProvider {
	return &MusicBrainzProvider{
		transport:   NewTransport("musicbrainz", nil, nil, userAgent),
		baseURL:     strings.TrimRight(baseURL, "/"),
		coverArtURL: strings.TrimRight(coverArtURL, "/"),
	}
}

// Name returns the provider key used in provider_priority.
func (p *MusicBrainzProvider) Name() string { return "musicbrainz" }

// Transport exposes the HTTP transport so callers can tune retries.
func (p *MusicBrainzProvider) Transport() *Transport { return p.transport }

type mbArtistSearch struct {
	Artists []mbArtist `json:"artists"`
}

type mbArtist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	Country        string `json:"country"`
	Disambiguation string `json:"disambiguation"`
	LifeSpan       struct {
		Begin string `json:"begin"`
	} `json:"life-span"`
}

type mbReleaseGroupSearch struct {
	ReleaseGroups []mbReleaseGroup `json:"release-groups"`
}

type mbReleaseGroup struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	PrimaryType      string `json:"primary-type"`
	FirstReleaseDate string `json:"first-release-date"`
	ArtistCredit     []struct {
		Name   string `json:"name"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"artist-credit"`
}

// Resolve searches MusicBrainz and selects the best candidate.
func (p *MusicBrainzProvider) Resolve(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	switch q.Kind {
	case models.KindArtist:
		return p.resolveArtist(ctx, q)
	default:
		return p.resolveAlbum(ctx, q)
	}
}

func (p *MusicBrainzProvider) resolveArtist(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	params := url.Values{}
	params.Set("query", "artist:"+luceneQuote(q.Name))
	params.Set("fmt", "json")
	params.Set("limit", "10")

	var resp mbArtistSearch
	if err := p.transport.GetJSON(ctx, p.baseURL+"/ws/2/artist/?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]*models.CanonicalMetadata, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		candidates = append(candidates, &models.CanonicalMetadata{
			Provider:    p.Name(),
			ProviderID:  a.ID,
			Title:       a.Name,
			Description: a.Disambiguation,
			ReleaseDate: models.ParseReleaseDate(a.LifeSpan.Begin),
		})
	}
	return SelectBest(q, candidates)
}

func (p *MusicBrainzProvider) resolveAlbum(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	return selectAlbum(ctx, q, func(ctx context.Context, byArtist bool) ([]*models.CanonicalMetadata, error) {
		return p.searchReleaseGroups(ctx, q, byArtist)
	})
}

func (p *MusicBrainzProvider) searchReleaseGroups(ctx context.Context, q Query, byArtist bool) ([]*models.CanonicalMetadata, error) {
	query := "releasegroup:" + luceneQuote(q.Name)
	if byArtist {
		query += " AND artist:" + luceneQuote(q.ArtistHint)
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", "10")

	var resp mbReleaseGroupSearch
	if err := p.transport.GetJSON(ctx, p.baseURL+"/ws/2/release-group/?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]*models.CanonicalMetadata, 0, len(resp.ReleaseGroups))
	for _, rg := range resp.ReleaseGroups {
		artist := ""
		if len(rg.ArtistCredit) > 0 {
			artist = rg.ArtistCredit[0].Artist.Name
			if artist == "" {
				artist = rg.ArtistCredit[0].Name
			}
		}
		desc := ""
		if rg.PrimaryType != "" && artist != "" {
			desc = fmt.Sprintf("%s by %s", rg.PrimaryType, artist)
		}
		candidates = append(candidates, &models.CanonicalMetadata{
			Provider:    p.Name(),
			ProviderID:  rg.ID,
			Title:       rg.Title,
			ArtistName:  artist,
			ImageURIs:   []string{fmt.Sprintf("%s/release-group/%s/front-500", p.coverArtURL, rg.ID)},
			Description: desc,
			ReleaseDate: models.ParseReleaseDate(rg.FirstReleaseDate),
		})
	}
	return candidates, nil
}

// luceneQuote wraps s in quotes for the MusicBrainz search syntax.
func luceneQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
