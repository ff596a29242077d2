// file: cmd/diagnostics.go
// version: 2.0.0
// guid: c8f6a0d4-2a8b-48cf-9d08-02cc9915d9fc

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/pebble/v2"
	"github.com/spf13/cobra"

	"github.com/jdfalk/media-library/internal/cache"
	"github.com/jdfalk/media-library/internal/database"
)

func newDiagnosticsCmd(opts *rootOptions) *cobra.Command {
	diagnosticsCmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Debugging and cleanup helpers",
		Long:  "Diagnostic utilities for inspecting the library database and the metadata cache.",
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect raw metadata cache records",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			prefix, _ := cmd.Flags().GetString("prefix")
			return runRawCacheQuery(cmd.OutOrStdout(), opts.cfg.CachePath, limit, prefix)
		},
	}
	cacheCmd.Flags().Int("limit", 20, "Number of records to display")
	cacheCmd.Flags().String("prefix", "meta:", "Key prefix to inspect")

	clearCmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete every persisted metadata cache record",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("yes")
			return runClearCache(cmd.OutOrStdout(), cmd.InOrStdin(), opts.cfg.CachePath, force)
		},
	}
	clearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent enrichment runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			store, err := database.NewSQLiteStore(opts.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()
			runs, err := store.ListScanRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			scanRunsTable(cmd, runs)
			return nil
		},
	}
	runsCmd.Flags().Int("limit", 10, "Number of runs to display")

	migrationsCmd := &cobra.Command{
		Use:   "migrations",
		Short: "Show applied schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := database.NewSQLiteStore(opts.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()
			history, err := store.MigrationHistory(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range history {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"), m.Description)
			}
			return nil
		},
	}

	diagnosticsCmd.AddCommand(cacheCmd, clearCmd, runsCmd, migrationsCmd)
	return diagnosticsCmd
}

func runRawCacheQuery(out io.Writer, path string, limit int, prefix string) error {
	if limit <= 0 {
		return errors.New("limit must be positive")
	}
	if path == "" {
		return errors.New("no cache path configured")
	}

	db, err := pebble.Open(path, &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
		ErrorIfNotExists:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to open metadata cache: %w", err)
	}
	defer db.Close()

	iterOpts := &pebble.IterOptions{}
	if prefix != "" {
		iterOpts.LowerBound = []byte(prefix)
		iterOpts.UpperBound = append([]byte(prefix), 0xFF)
	}

	iter, err := db.NewIter(iterOpts)
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	count := 0
	for ok := iter.First(); ok && iter.Valid(); ok = iter.Next() {
		fmt.Fprintf(out, "Key: %s\n", string(iter.Key()))
		val := iter.Value()
		fmt.Fprintf(out, "Value length: %d bytes\n", len(val))
		fmt.Fprintf(out, "Value preview: %s\n", truncateString(string(val), 500))
		fmt.Fprintln(out, "---")

		count++
		if count >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	if count == 0 {
		fmt.Fprintln(out, "No keys matched the requested prefix.")
	}
	return nil
}

func runClearCache(out io.Writer, in io.Reader, path string, force bool) error {
	if path == "" {
		return errors.New("no cache path configured")
	}
	backend, err := cache.OpenPebbleBackend(path)
	if err != nil {
		return err
	}
	defer backend.Close()

	entries, err := backend.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "Metadata cache is empty.")
		return nil
	}

	if !force {
		confirmed, err := promptYesNo(out, in, fmt.Sprintf("Delete %d cached records", len(entries)))
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Aborted. No records deleted.")
			return nil
		}
	}

	if err := backend.DeleteAll(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d cached records. The next enrichment run resolves them again.\n", len(entries))
	return nil
}

func promptYesNo(out io.Writer, in io.Reader, action string) (bool, error) {
	fmt.Fprintf(out, "%s? Type 'yes' to confirm: ", action)
	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && response != "") {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes", nil
}

func truncateString(in string, max int) string {
	if len(in) <= max {
		return in
	}
	return in[:max] + "..."
}

