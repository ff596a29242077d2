// file: internal/metadata/podcast.go
// version: 1.0.0
// guid: 1e7c3a9b-5d2f-4b60-8c14-6a9f2e0b7d35

package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/models"
)

const maxFeedBytes = 16 << 20

// PodcastFetcher fetches a podcast show record from a feed URI.
type PodcastFetcher interface {
	FetchPodcastShow(ctx context.Context, feedURI string) (*models.PodcastShow, error)
}

// RSSPodcastProvider reads RSS 2.0 feeds, including the iTunes extensions.
type RSSPodcastProvider struct {
	client    *http.Client
	userAgent string
	log       *logger.Logger
}

// NewRSSPodcastProvider creates a feed reader. A nil client gets the default
// timeout.
func NewRSSPodcastProvider(client *http.Client, userAgent string, log *logger.Logger) *RSSPodcastProvider {
	if client == nil {
		client = httpClient(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RSSPodcastProvider{client: client, userAgent: userAgent, log: log}
}

type rssFeed struct {
	Channel rssChannel `xml:"channel"`
}

// The namespaced image field must precede the plain one so itunes:image is
// not captured by the generic tag.
type rssChannel struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	ITunesImage struct {
		Href string `xml:"href,attr"`
	} `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
	Image struct {
		URL string `xml:"url"`
	} `xml:"image"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Enclosure   struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
}

// FetchPodcastShow downloads and parses feedURI. An unreachable feed, any
// non-200 status (404 included) or an unparseable body yields nil, nil.
// Only context cancellation is returned as an error.
func (p *RSSPodcastProvider) FetchPodcastShow(ctx context.Context, feedURI string) (*models.PodcastShow, error) {
	if strings.TrimSpace(feedURI) == "" {
		return nil, fmt.Errorf("%w: empty feed URI", ErrInvalidQuery)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURI, nil)
	if err != nil {
		p.log.Warnf("invalid feed URI %q: %v", feedURI, err)
		return nil, nil
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warnf("feed %s unreachable: %v", feedURI, err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warnf("feed %s returned status %d", feedURI, resp.StatusCode)
		return nil, nil
	}

	var feed rssFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warnf("feed %s could not be parsed: %v", feedURI, err)
		return nil, nil
	}
	if strings.TrimSpace(feed.Channel.Title) == "" {
		p.log.Warnf("feed %s has no channel title", feedURI)
		return nil, nil
	}
	return feedToShow(feedURI, &feed.Channel), nil
}

func feedToShow(feedURI string, ch *rssChannel) *models.PodcastShow {
	image := ch.ITunesImage.Href
	if image == "" {
		image = ch.Image.URL
	}
	show := &models.PodcastShow{
		ID:          PodcastShowID(feedURI),
		FeedURI:     feedURI,
		Title:       strings.TrimSpace(ch.Title),
		Description: stripHTML(ch.Description),
		ImageURI:    strings.TrimSpace(image),
		Episodes:    make([]models.PodcastEpisode, 0, len(ch.Items)),
	}
	for _, item := range ch.Items {
		show.Episodes = append(show.Episodes, models.PodcastEpisode{
			GUID:        strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Description: stripHTML(item.Description),
			AudioURI:    strings.TrimSpace(item.Enclosure.URL),
			PublishedAt: parsePubDate(item.PubDate),
		})
	}
	return show
}

// PodcastShowID derives a stable show identifier from its feed URI.
func PodcastShowID(feedURI string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(feedURI)))
	return hex.EncodeToString(sum[:8])
}

func parsePubDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "Mon, 2 Jan 2006 15:04:05 MST", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
