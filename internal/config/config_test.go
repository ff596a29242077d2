// file: internal/config/config_test.go
// version: 2.0.0
// guid: b2c3d4e5-f6a7-8b9c-0d1e-2f3a4b5c6d7e

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "media-library.db", cfg.DatabasePath())
	assert.Equal(t, "metadata", cfg.MetadataPath())
	assert.Equal(t, "metadata-cache.pebble", cfg.CachePath)
	assert.Equal(t, []string{ProviderMusicBrainz, ProviderDeezer, ProviderSpotify}, cfg.ProviderPriority)
	assert.Equal(t, 4, cfg.ConcurrentEnrichment)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.IsDarkTheme())
	assert.Contains(t, cfg.SupportedExtensions, ".flac")
}

func TestLoad_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("database_path", "/data/lib/library.db")
	v.Set("provider_priority", []string{"Spotify, MusicBrainz"})
	v.Set("concurrent_enrichment", 0)
	v.Set("dark_theme", true)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []string{ProviderSpotify, ProviderMusicBrainz}, cfg.ProviderPriority)
	assert.Equal(t, filepath.Join("/data/lib", "metadata-cache.pebble"), cfg.CachePath)
	assert.Equal(t, 1, cfg.ConcurrentEnrichment)
	assert.True(t, cfg.IsDarkTheme())
}

func TestLoad_RejectsBadPriority(t *testing.T) {
	v := viper.New()
	v.Set("provider_priority", []string{"musicbrainz", "lastfm"})
	_, err := Load(v)
	assert.ErrorContains(t, err, "lastfm")

	v = viper.New()
	v.Set("provider_priority", []string{"deezer", "deezer"})
	_, err = Load(v)
	assert.ErrorContains(t, err, "twice")
}

func TestIsFileAvailable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cover.jpg")
	require.NoError(t, os.WriteFile(file, []byte("img"), 0o644))

	cfg := &Config{}
	assert.True(t, cfg.IsFileAvailable(file))
	assert.False(t, cfg.IsFileAvailable(dir))
	assert.False(t, cfg.IsFileAvailable(filepath.Join(dir, "missing.jpg")))
	assert.False(t, cfg.IsFileAvailable(""))
}

func TestDefaultMediaFolders(t *testing.T) {
	cfg := &Config{MediaFolders: []string{"/srv/music"}}
	assert.Equal(t, []string{"/srv/music"}, cfg.DefaultMediaFolders())

	t.Setenv("HOME", "/home/tester")
	cfg = &Config{}
	assert.Equal(t, []string{
		filepath.Join("/home/tester", "Music"),
		filepath.Join("/home/tester", "Podcasts"),
	}, cfg.DefaultMediaFolders())
}
