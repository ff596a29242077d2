// file: internal/config/config.go
// version: 2.0.0
// guid: 7b8c9d0e-1f2a-3b4c-5d6e-7f8a9b0c1d2e

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted in provider_priority.
const (
	ProviderMusicBrainz = "musicbrainz"
	ProviderSpotify     = "spotify"
	ProviderDeezer      = "deezer"
)

// Settings is the read-only view of platform settings consumed by the
// metadata service and the scanner.
type Settings interface {
	DatabasePath() string
	MetadataPath() string
	IsDarkTheme() bool
	IsFileAvailable(path string) bool
	DefaultMediaFolders() []string
}

// Config holds application configuration. It is built once at startup and
// passed explicitly to the components that need it.
type Config struct {
	DBPath               string        `yaml:"database_path"`
	MetaPath             string        `yaml:"metadata_path"`
	CachePath            string        `yaml:"cache_path"`
	MediaFolders         []string      `yaml:"media_folders"`
	ProviderPriority     []string      `yaml:"provider_priority"`
	SpotifyClientID      string        `yaml:"spotify_client_id,omitempty"`
	SpotifyClientSecret  string        `yaml:"spotify_client_secret,omitempty"`
	MusicBrainzUserAgent string        `yaml:"musicbrainz_user_agent"`
	ConcurrentEnrichment int           `yaml:"concurrent_enrichment"`
	DarkTheme            bool          `yaml:"dark_theme"`
	LogLevel             string        `yaml:"log_level"`
	HTTPTimeout          time.Duration `yaml:"http_timeout"`
	SupportedExtensions  []string      `yaml:"supported_extensions"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "media-library.db")
	v.SetDefault("metadata_path", "metadata")
	v.SetDefault("cache_path", "")
	v.SetDefault("media_folders", []string{})
	v.SetDefault("provider_priority", []string{ProviderMusicBrainz, ProviderDeezer, ProviderSpotify})
	v.SetDefault("musicbrainz_user_agent", "media-library/1.0 (https://github.com/jdfalk/media-library)")
	v.SetDefault("concurrent_enrichment", 4)
	v.SetDefault("dark_theme", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("supported_extensions", []string{".mp3", ".m4a", ".flac", ".ogg", ".opus", ".wma", ".aac"})
}

// Load builds a Config from v, applying defaults and validating the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DBPath:               v.GetString("database_path"),
		MetaPath:             v.GetString("metadata_path"),
		CachePath:            v.GetString("cache_path"),
		MediaFolders:         v.GetStringSlice("media_folders"),
		ProviderPriority:     normalizePriority(v.GetStringSlice("provider_priority")),
		SpotifyClientID:      v.GetString("spotify_client_id"),
		SpotifyClientSecret:  v.GetString("spotify_client_secret"),
		MusicBrainzUserAgent: v.GetString("musicbrainz_user_agent"),
		ConcurrentEnrichment: v.GetInt("concurrent_enrichment"),
		DarkTheme:            v.GetBool("dark_theme"),
		LogLevel:             v.GetString("log_level"),
		HTTPTimeout:          v.GetDuration("http_timeout"),
		SupportedExtensions:  v.GetStringSlice("supported_extensions"),
	}

	// Cache lives next to the database unless configured
	if cfg.CachePath == "" && cfg.DBPath != "" {
		cfg.CachePath = filepath.Join(filepath.Dir(cfg.DBPath), "metadata-cache.pebble")
	}
	if cfg.ConcurrentEnrichment < 1 {
		cfg.ConcurrentEnrichment = 1
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the provider priority list.
func (c *Config) Validate() error {
	if len(c.ProviderPriority) == 0 {
		return fmt.Errorf("provider_priority must list at least one provider")
	}
	seen := make(map[string]bool, len(c.ProviderPriority))
	for _, p := range c.ProviderPriority {
		switch p {
		case ProviderMusicBrainz, ProviderSpotify, ProviderDeezer:
		default:
			return fmt.Errorf("unknown provider %q in provider_priority", p)
		}
		if seen[p] {
			return fmt.Errorf("provider %q listed twice in provider_priority", p)
		}
		seen[p] = true
	}
	return nil
}

func normalizePriority(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		// viper hands env values back as a single comma-separated element
		for _, part := range strings.Split(p, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) DatabasePath() string { return c.DBPath }
func (c *Config) MetadataPath() string { return c.MetaPath }
func (c *Config) IsDarkTheme() bool    { return c.DarkTheme }

// IsFileAvailable reports whether path exists and is a regular file.
func (c *Config) IsFileAvailable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DefaultMediaFolders returns the configured media folders, or the platform's
// conventional music and podcast folders under the user's home directory.
func (c *Config) DefaultMediaFolders() []string {
	if len(c.MediaFolders) > 0 {
		return c.MediaFolders
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, "Music"), filepath.Join(home, "Podcasts")}
}

var _ Settings = (*Config)(nil)
