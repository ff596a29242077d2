// file: internal/database/sqlite_store.go
// version: 2.0.0
// guid: 8b9c0d1e-2f3a-4b5c-6d7e-8f9a0b1c2d3e

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jdfalk/media-library/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const entitySelectColumns = `id, kind, name, artist_name, feed_uri, title, asset_path, updated_at`

func scanEntity(scanner rowScanner, e *models.LibraryEntity) error {
	var kind string
	if err := scanner.Scan(&e.ID, &kind, &e.Name, &e.ArtistName, &e.FeedURI, &e.Title, &e.AssetPath, &e.UpdatedAt); err != nil {
		return err
	}
	e.Kind = models.EntityKind(kind)
	return nil
}

// SQLiteStore implements Store using SQLite3
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the library database at path and
// applies pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// Enrichment saves from many goroutines; one connection avoids
	// SQLITE_BUSY between pooled writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MigrationHistory lists the applied schema migrations.
func (s *SQLiteStore) MigrationHistory(ctx context.Context) ([]MigrationRecord, error) {
	return migrationHistory(ctx, s.db)
}

// Entity operations

// Save inserts entity when its ID is zero and updates it otherwise. The
// assigned ID and timestamp are written back to entity.
func (s *SQLiteStore) Save(ctx context.Context, entity *models.LibraryEntity) error {
	if entity == nil {
		return fmt.Errorf("nil entity")
	}
	if _, err := models.ParseEntityKind(string(entity.Kind)); err != nil {
		return err
	}
	entity.UpdatedAt = s.now()

	if entity.ID == 0 {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO entities (kind, name, artist_name, feed_uri, title, asset_path, natural_key, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(entity.Kind), entity.Name, entity.ArtistName, entity.FeedURI,
			entity.Title, entity.AssetPath, NaturalKey(entity), entity.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert entity: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		entity.ID = id
		return nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET kind = ?, name = ?, artist_name = ?, feed_uri = ?, title = ?, asset_path = ?, natural_key = ?, updated_at = ?
		WHERE id = ?`,
		string(entity.Kind), entity.Name, entity.ArtistName, entity.FeedURI,
		entity.Title, entity.AssetPath, NaturalKey(entity), entity.UpdatedAt, entity.ID)
	if err != nil {
		return fmt.Errorf("failed to update entity %d: %w", entity.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, entity.ID)
	}
	return nil
}

// Get returns the entity with id, or nil when it does not exist.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.LibraryEntity, error) {
	var e models.LibraryEntity
	row := s.db.QueryRowContext(ctx, "SELECT "+entitySelectColumns+" FROM entities WHERE id = ?", id)
	err := scanEntity(row, &e)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns entities of kind ordered by ID. An empty kind lists all.
func (s *SQLiteStore) List(ctx context.Context, kind models.EntityKind) ([]models.LibraryEntity, error) {
	query := "SELECT " + entitySelectColumns + " FROM entities"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []models.LibraryEntity
	for rows.Next() {
		var e models.LibraryEntity
		if err := scanEntity(rows, &e); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// Upsert inserts entity unless one with the same natural key exists, in
// which case entity is filled from the stored row. Enriched fields on the
// stored row are never overwritten.
func (s *SQLiteStore) Upsert(ctx context.Context, entity *models.LibraryEntity) (bool, error) {
	if entity == nil {
		return false, fmt.Errorf("nil entity")
	}
	var existing models.LibraryEntity
	row := s.db.QueryRowContext(ctx, "SELECT "+entitySelectColumns+" FROM entities WHERE natural_key = ?", NaturalKey(entity))
	err := scanEntity(row, &existing)
	switch {
	case err == nil:
		*entity = existing
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	entity.ID = 0
	if err := s.Save(ctx, entity); err != nil {
		return false, err
	}
	return true, nil
}

// CountByKind returns entity counts grouped by kind.
func (s *SQLiteStore) CountByKind(ctx context.Context) (map[models.EntityKind]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM entities GROUP BY kind")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.EntityKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[models.EntityKind(kind)] = n
	}
	return counts, rows.Err()
}

// Scan run operations

func (s *SQLiteStore) CreateScanRun(ctx context.Context, run *ScanRun) error {
	if run.Status == "" {
		run.Status = ScanRunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, started_at, status, total) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Status, run.Total)
	if err != nil {
		return fmt.Errorf("failed to create scan run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishScanRun(ctx context.Context, run *ScanRun) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs
		SET finished_at = ?, status = ?, total = ?, resolved = ?, not_found = ?, failed = ?, error = ?
		WHERE id = ?`,
		finished, run.Status, run.Total, run.Resolved, run.NotFound, run.Failed, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish scan run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("scan run %s not found", run.ID)
	}
	return nil
}

// ListScanRuns returns the most recent runs first.
func (s *SQLiteStore) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, total, resolved, not_found, failed, error
		FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var r ScanRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Total, &r.Resolved, &r.NotFound, &r.Failed, &r.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
