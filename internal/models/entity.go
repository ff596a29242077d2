// file: internal/models/entity.go
// version: 1.0.0
// guid: 8b94d867-11a8-4184-8e22-baa77fce7baf

package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind identifies what a library entity represents.
type EntityKind string

const (
	KindArtist  EntityKind = "artist"
	KindAlbum   EntityKind = "album"
	KindPodcast EntityKind = "podcast"
	KindTVShow  EntityKind = "tvshow"
	KindEpisode EntityKind = "episode"
)

// AllKinds returns every known entity kind in display order.
func AllKinds() []EntityKind {
	return []EntityKind{KindArtist, KindAlbum, KindPodcast, KindTVShow, KindEpisode}
}

// ParseEntityKind converts a user supplied string into an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func (k EntityKind) String() string { return string(k) }

// LibraryEntity is a locally discovered library item. IDs are assigned by the
// library store and are unique across kinds.
type LibraryEntity struct {
	ID         int64      `json:"id" db:"id"`
	Kind       EntityKind `json:"kind" db:"kind"`
	Name       string     `json:"name" db:"name"`
	ArtistName string     `json:"artist_name,omitempty" db:"artist_name"` // albums only
	FeedURI    string     `json:"feed_uri,omitempty" db:"feed_uri"`       // podcasts only
	Title      string     `json:"title,omitempty" db:"title"`
	AssetPath  string     `json:"asset_path,omitempty" db:"asset_path"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// DisplayTitle prefers the enriched title and falls back to the scanned name.
func (e *LibraryEntity) DisplayTitle() string {
	if e.Title != "" {
		return e.Title
	}
	return e.Name
}

// CanonicalMetadata is the provider-agnostic record produced by a provider
// adapter. Treat values as immutable once returned.
type CanonicalMetadata struct {
	Provider    string     `json:"provider"`
	ProviderID  string     `json:"provider_id"`
	Title       string     `json:"title"`
	ArtistName  string     `json:"artist_name,omitempty"`
	ImageURIs   []string   `json:"image_uris,omitempty"`
	Description string     `json:"description,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// PrimaryImage returns the preferred artwork URI, or "" when none is known.
func (m *CanonicalMetadata) PrimaryImage() string {
	if m == nil {
		return ""
	}
	for _, u := range m.ImageURIs {
		if u != "" {
			return u
		}
	}
	return ""
}

// ParseReleaseDate accepts the partial date formats catalog APIs return
// ("2006", "2006-01", "2006-01-02"). Empty or unparseable input yields nil.
func ParseReleaseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
