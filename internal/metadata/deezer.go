// file: internal/metadata/deezer.go
// version: 1.1.0
// guid: 8e1c4b7a-2d9f-4063-a5b1-3c7e9f0d2a48

package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdfalk/media-library/internal/models"
)

// Deezer allows 50 requests per 5 seconds per client.
const deezerRate = rate.Limit(10)

// Error codes Deezer reports in a 200 body.
const (
	deezerQuotaCode = 4
	deezerBusyCode  = 700
)

// DeezerProvider resolves artists and albums against the public Deezer API.
// No credentials are needed.
type DeezerProvider struct {
	transport *Transport
	baseURL   string
}

// NewDeezerProvider creates a provider using DEEZER_BASE_URL when set.
func NewDeezerProvider(timeout time.Duration) *DeezerProvider {
	baseURL := os.Getenv("DEEZER_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.deezer.com"
	}
	p := NewDeezerProviderWithBaseURL(baseURL)
	p.transport = NewTransport(p.Name(), httpClient(timeout), rate.NewLimiter(deezerRate, 5), "")
	return p
}

// NewDeezerProviderWithBaseURL creates an unthrottled provider against baseURL.
func NewDeezerProviderWithBaseURL(baseURL string) *DeezerProvider {
	return &DeezerProvider{
		transport: NewTransport("deezer", nil, nil, ""),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Name returns the provider key used in provider_priority.
func (p *DeezerProvider) Name() string { return "deezer" }

// Transport exposes the HTTP transport so callers can tune retries.
func (p *DeezerProvider) Transport() *Transport { return p.transport }

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerArtistSearch struct {
	Data  []deezerArtist `json:"data"`
	Error *deezerError   `json:"error,omitempty"`
}

type deezerArtist struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	PictureXL     string `json:"picture_xl"`
	PictureBig    string `json:"picture_big"`
	PictureMedium string `json:"picture_medium"`
	NbAlbum       int    `json:"nb_album"`
	NbFan         int    `json:"nb_fan"`
}

type deezerAlbumSearch struct {
	Data  []deezerAlbum `json:"data"`
	Error *deezerError  `json:"error,omitempty"`
}

type deezerAlbum struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	CoverXL    string `json:"cover_xl"`
	CoverBig   string `json:"cover_big"`
	RecordType string `json:"record_type"`
	Artist     struct {
		Name string `json:"name"`
	} `json:"artist"`
}

// Resolve searches Deezer and selects the best candidate.
func (p *DeezerProvider) Resolve(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Kind == models.KindArtist {
		return p.resolveArtist(ctx, q)
	}
	return p.resolveAlbum(ctx, q)
}

func (p *DeezerProvider) resolveArtist(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	var resp deezerArtistSearch
	searchURL := fmt.Sprintf("%s/search/artist?q=%s&limit=10", p.baseURL, url.QueryEscape(q.Name))
	if err := p.transport.GetJSONChecked(ctx, searchURL, nil, &resp, p.bodyCheck(&resp.Error)); err != nil {
		return nil, err
	}

	candidates := make([]*models.CanonicalMetadata, 0, len(resp.Data))
	for _, a := range resp.Data {
		desc := ""
		if a.NbFan > 0 {
			desc = fmt.Sprintf("%d fans on Deezer", a.NbFan)
		}
		candidates = append(candidates, &models.CanonicalMetadata{
			Provider:    p.Name(),
			ProviderID:  strconv.FormatInt(a.ID, 10),
			Title:       a.Name,
			ImageURIs:   nonEmpty(a.PictureXL, a.PictureBig, a.PictureMedium),
			Description: desc,
		})
	}
	return SelectBest(q, candidates)
}

func (p *DeezerProvider) resolveAlbum(ctx context.Context, q Query) (*models.CanonicalMetadata, error) {
	return selectAlbum(ctx, q, func(ctx context.Context, byArtist bool) ([]*models.CanonicalMetadata, error) {
		return p.searchAlbums(ctx, q, byArtist)
	})
}

func (p *DeezerProvider) searchAlbums(ctx context.Context, q Query, byArtist bool) ([]*models.CanonicalMetadata, error) {
	query := fmt.Sprintf("album:%q", q.Name)
	if byArtist {
		query = fmt.Sprintf("artist:%q %s", q.ArtistHint, query)
	}
	var resp deezerAlbumSearch
	searchURL := fmt.Sprintf("%s/search/album?q=%s&limit=10", p.baseURL, url.QueryEscape(query))
	if err := p.transport.GetJSONChecked(ctx, searchURL, nil, &resp, p.bodyCheck(&resp.Error)); err != nil {
		return nil, err
	}

	candidates := make([]*models.CanonicalMetadata, 0, len(resp.Data))
	for _, a := range resp.Data {
		desc := ""
		if a.RecordType != "" && a.Artist.Name != "" {
			desc = fmt.Sprintf("%s by %s", a.RecordType, a.Artist.Name)
		}
		candidates = append(candidates, &models.CanonicalMetadata{
			Provider:    p.Name(),
			ProviderID:  strconv.FormatInt(a.ID, 10),
			Title:       a.Title,
			ArtistName:  a.Artist.Name,
			ImageURIs:   nonEmpty(a.CoverXL, a.CoverBig),
			Description: desc,
		})
	}
	return candidates, nil
}

// bodyCheck inspects the error object of the last decoded body and clears it
// so a retried response is judged on its own.
func (p *DeezerProvider) bodyCheck(field **deezerError) func() error {
	return func() error {
		e := *field
		*field = nil
		return p.checkError(e)
	}
}

// checkError maps an error object in a 200 body. Quota and busy errors map
// to 429 and 503 and are retried by the transport; anything else is a
// rejected request.
func (p *DeezerProvider) checkError(e *deezerError) error {
	if e == nil {
		return nil
	}
	status := http.StatusBadRequest
	switch e.Code {
	case deezerQuotaCode:
		status = http.StatusTooManyRequests
	case deezerBusyCode:
		status = http.StatusServiceUnavailable
	}
	return &ProviderError{Provider: p.Name(), StatusCode: status, Err: fmt.Errorf("%s: %s", e.Type, e.Message)}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
