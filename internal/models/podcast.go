// file: internal/models/podcast.go
// version: 1.0.0
// guid: 7adfc53e-c0bf-4fcf-b5b0-9c935b40df75

package models

import (
	"time"

	"github.com/jdfalk/media-library/internal/collection"
)

// PodcastEpisode is a single item from a podcast feed.
type PodcastEpisode struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AudioURI    string     `json:"audio_uri,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// PodcastShow is the record returned by the podcast provider. Episodes keep
// feed order.
type PodcastShow struct {
	ID          string           `json:"id"`
	FeedURI     string           `json:"feed_uri"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	ImageURI    string           `json:"image_uri,omitempty"`
	Episodes    []PodcastEpisode `json:"episodes"`
}

// MergeEpisodes appends episodes from a re-fetch that are not already known.
// Existing episodes are never reordered or dropped. Returns the number added.
func (s *PodcastShow) MergeEpisodes(fetched []PodcastEpisode) int {
	known := make(map[string]struct{}, len(s.Episodes))
	for _, ep := range s.Episodes {
		known[episodeKey(ep)] = struct{}{}
	}
	added := 0
	for _, ep := range fetched {
		k := episodeKey(ep)
		if _, ok := known[k]; ok {
			continue
		}
		known[k] = struct{}{}
		s.Episodes = append(s.Episodes, ep)
		added++
	}
	return added
}

// MoveEpisode reorders one episode for presentation.
func (s *PodcastShow) MoveEpisode(from, to int) error {
	moved, err := collection.Move(s.Episodes, from, to)
	if err != nil {
		return err
	}
	s.Episodes = moved
	return nil
}

func episodeKey(ep PodcastEpisode) string {
	if ep.GUID != "" {
		return ep.GUID
	}
	if ep.AudioURI != "" {
		return ep.AudioURI
	}
	return ep.Title
}
