// file: cmd/commands.go
// version: 1.1.0
// guid: 3b7e1d9c-5a42-4f86-b0c3-8e2d6f4a1c95

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/metadata"
	"github.com/jdfalk/media-library/internal/models"
	"github.com/jdfalk/media-library/internal/scanner"
	"github.com/jdfalk/media-library/internal/server"
	"github.com/jdfalk/media-library/internal/watcher"
)

// withApp opens the application for the duration of fn.
func withApp(opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(opts.cfg)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close: %w", err)
	}
	return runErr
}

func parseEntityRef(kindArg, idArg string) (models.EntityKind, int64, error) {
	kind, err := models.ParseEntityKind(kindArg)
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid entity id %q", idArg)
	}
	return kind, id, nil
}

func loadEntity(cmd *cobra.Command, a *app, kind models.EntityKind, id int64) (*models.LibraryEntity, error) {
	entity, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if entity == nil || entity.Kind != kind {
		return nil, fmt.Errorf("%s %d not found", kind, id)
	}
	return entity, nil
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	var enrich bool
	cmd := &cobra.Command{
		Use:   "scan [folder...]",
		Short: "Scan media folders for artists and albums",
		Long:  `Walk the media folders, read audio tags and record every artist and album in the library.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Using database: %s\n", opts.cfg.DBPath)

				sc := scanner.New(a.store, opts.cfg, a.log.With("scanner"))
				res, err := sc.Scan(cmd.Context(), args...)
				if err != nil {
					return fmt.Errorf("scan error: %w", err)
				}
				fmt.Fprintf(out, "Scanned %d files (%d duplicates, %d untagged)\n", res.Files, res.Duplicates, res.Untagged)
				fmt.Fprintf(out, "New artists: %d, new albums: %d\n", res.ArtistsCreated, res.AlbumsCreated)

				if !enrich {
					return nil
				}
				return runEnrichment(cmd, a, "", false)
			})
		},
	}
	cmd.Flags().BoolVar(&enrich, "enrich", false, "resolve metadata for the library after scanning")
	return cmd
}

func newEnrichCmd(opts *rootOptions) *cobra.Command {
	var kindArg string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Resolve metadata and artwork for every library entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind models.EntityKind
			if kindArg != "" {
				k, err := models.ParseEntityKind(kindArg)
				if err != nil {
					return err
				}
				kind = k
			}
			return withApp(opts, func(a *app) error {
				return runEnrichment(cmd, a, kind, quiet)
			})
		},
	}
	cmd.Flags().StringVar(&kindArg, "kind", "", "only enrich entities of this kind")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "disable the progress bar")
	return cmd
}

func runEnrichment(cmd *cobra.Command, a *app, kind models.EntityKind, quiet bool) error {
	out := cmd.OutOrStdout()
	en := scanner.NewEnricher(a.svc, a.store, a.cfg.ConcurrentEnrichment, a.log.With("enricher"))

	if !quiet {
		var once sync.Once
		var bar *progressbar.ProgressBar
		en.OnProgress(func(done, total int) {
			once.Do(func() {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Enriching"),
					progressbar.OptionShowCount(),
				)
			})
			_ = bar.Set(done)
		})
	}

	fmt.Fprintf(out, "Resolving with providers: %v\n", a.resolver.Providers())
	run, err := en.Run(cmd.Context(), kind)
	if run != nil {
		fmt.Fprintf(out, "\nRun %s %s: %d total, %d resolved, %d not found, %d failed\n",
			run.ID, run.Status, run.Total, run.Resolved, run.NotFound, run.Failed)
	}
	return err
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <kind> <id>",
		Short: "Resolve metadata for one library entity and print it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := parseEntityRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				entity, err := loadEntity(cmd, a, kind, id)
				if err != nil {
					return err
				}
				var result any
				switch kind {
				case models.KindArtist:
					result, err = a.svc.GetArtistMetadata(cmd.Context(), entity)
				case models.KindAlbum:
					result, err = a.svc.GetAlbumMetadata(cmd.Context(), entity, entity.ArtistName)
				case models.KindPodcast:
					result, err = a.svc.GetPodcastShow(cmd.Context(), entity)
				default:
					err = fmt.Errorf("%s entities cannot be resolved", kind)
				}
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
}

func newInvalidateCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "invalidate [<kind> <id>]",
		Short: "Drop cached metadata so it is resolved again",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if all {
					if err := a.cache.InvalidateAll(); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Metadata cache cleared")
					return nil
				}
				kind, id, err := parseEntityRef(args[0], args[1])
				if err != nil {
					return err
				}
				if err := a.svc.Invalidate(kind, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s %d\n", kind, id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear the whole cache")
	return cmd
}

func newPodcastCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "podcast <feed-url>",
		Short: "Add a podcast feed to the library and list its episodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				entity := &models.LibraryEntity{Kind: models.KindPodcast, Name: args[0], FeedURI: args[0]}
				if _, err := a.store.Upsert(cmd.Context(), entity); err != nil {
					return fmt.Errorf("failed to record podcast: %w", err)
				}
				show, err := a.svc.GetPodcastShow(cmd.Context(), entity)
				if errors.Is(err, metadata.ErrNotFound) {
					return fmt.Errorf("feed %s is unavailable or not a podcast", args[0])
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (podcast %d, %d episodes)\n", show.Title, entity.ID, len(show.Episodes))
				for i, ep := range show.Episodes {
					if limit > 0 && i >= limit {
						break
					}
					date := ""
					if ep.PublishedAt != nil {
						date = ep.PublishedAt.Format("2006-01-02") + " "
					}
					fmt.Fprintf(out, "%3d. %s%s\n", i+1, date, ep.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum episodes to list (0 for all)")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	srvCfg := server.ServerConfig{}
	var rpm int
	var watch bool
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				srv := server.NewServer(server.Deps{
					Store:             a.store,
					Service:           a.svc,
					Providers:         a.resolver.Providers(),
					Logger:            a.log.With("server"),
					Scanner:           scanner.New(a.store, a.cfg, a.log.With("scanner")),
					Workers:           a.cfg.ConcurrentEnrichment,
					RequestsPerMinute: rpm,
				})

				if watch {
					w := watcher.New(func(roots []string) {
						if err := srv.StartScan(roots, true); err != nil {
							a.log.Warnf("rescan of %v not started: %v", roots, err)
						}
					}, debounce, a.cfg.SupportedExtensions, a.log.With("watcher"))
					if err := w.Start(a.cfg.DefaultMediaFolders()...); err != nil {
						return fmt.Errorf("failed to watch media folders: %w", err)
					}
					defer w.Stop()
					a.log.Infof("watching %v for changes", w.Roots())
				}
				return srv.Start(ctx, srvCfg)
			})
		},
	}
	cmd.Flags().StringVar(&srvCfg.Port, "port", "8080", "port to run the web server on")
	cmd.Flags().StringVar(&srvCfg.Host, "host", "localhost", "host to bind the web server to")
	cmd.Flags().DurationVar(&srvCfg.ReadTimeout, "read-timeout", 15*time.Second, "read timeout (e.g. 15s, 1m)")
	cmd.Flags().DurationVar(&srvCfg.WriteTimeout, "write-timeout", 2*time.Minute, "write timeout; lookups may wait on slow providers")
	cmd.Flags().DurationVar(&srvCfg.IdleTimeout, "idle-timeout", 60*time.Second, "idle timeout (e.g. 60s, 2m)")
	cmd.Flags().IntVar(&rpm, "rate-limit", 120, "API requests per minute per client IP (0 disables)")
	cmd.Flags().BoolVar(&watch, "watch", false, "rescan and enrich when audio files in the media folders change")
	cmd.Flags().DurationVar(&debounce, "watch-debounce", watcher.DefaultDebounce, "quiet period before a rescan")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			masked := *opts.cfg
			if masked.SpotifyClientSecret != "" {
				masked.SpotifyClientSecret = "********"
			}
			data, err := yaml.Marshal(&masked)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save [path]",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.FilePath()
			if len(args) == 1 {
				path = args[0]
			}
			if err := opts.cfg.SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", path)
			return nil
		},
	})
	return cmd
}

// scanRunsTable prints recorded enrichment runs.
func scanRunsTable(cmd *cobra.Command, runs []database.ScanRun) {
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No enrichment runs recorded.")
		return
	}
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%s  %-9s  started %s  finished %s  total %d  resolved %d  not found %d  failed %d\n",
			r.ID, r.Status, r.StartedAt.Format(time.RFC3339), finished, r.Total, r.Resolved, r.NotFound, r.Failed)
		if r.Error != "" {
			fmt.Fprintf(out, "    error: %s\n", r.Error)
		}
	}
}
