// file: cmd/root.go
// version: 2.0.0
// guid: 6a7b8c9d-0e1f-2a3b-4c5d-6e7f8a9b0c1d

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdfalk/media-library/internal/config"
)

// envPrefix namespaces environment overrides, e.g. MEDIA_LIBRARY_DATABASE_PATH.
const envPrefix = "MEDIA_LIBRARY"

// rootOptions carries state shared by every subcommand of one invocation.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "media-library",
		Short: "Resolve and cache metadata for a personal media library",
		Long: `Media Library scans your music folders, resolves artists and albums
against remote catalogs (MusicBrainz, Deezer, Spotify), caches the results
and downloads artwork. Podcast feeds are fetched on demand.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.media-library.yaml)")
	flags.String("db", "", "path to the library database (default media-library.db)")
	flags.String("metadata-dir", "", "directory for downloaded artwork (default metadata)")
	flags.String("cache", "", "path to the persistent metadata cache (default next to the database)")
	flags.StringSlice("media", nil, "media folders to scan")
	flags.StringSlice("providers", nil, "provider priority, e.g. musicbrainz,deezer,spotify")
	flags.Int("concurrency", 0, "number of concurrent lookups during enrichment (default 4)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default info)")

	for key, flag := range map[string]string{
		"database_path":         "db",
		"metadata_path":         "metadata-dir",
		"cache_path":            "cache",
		"media_folders":         "media",
		"provider_priority":     "providers",
		"concurrent_enrichment": "concurrency",
		"log_level":             "log-level",
	} {
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newScanCmd(opts),
		newEnrichCmd(opts),
		newResolveCmd(opts),
		newInvalidateCmd(opts),
		newPodcastCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
		newDiagnosticsCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) initConfig() error {
	v := o.v
	if o.cfgFile != "" {
		v.SetConfigFile(o.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".media-library")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	// Ensure database directory exists
	if dbDir := filepath.Dir(cfg.DBPath); dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	o.cfg = cfg
	return nil
}
