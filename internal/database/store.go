// file: internal/database/store.go
// version: 3.0.0
// guid: 8a9b0c1d-2e3f-4a5b-6c7d-8e9f0a1b2c3d

package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jdfalk/media-library/internal/models"
)

// ErrEntityNotFound is returned when updating an entity that does not exist.
var ErrEntityNotFound = errors.New("library entity not found")

// Store is the library store used by the scanner and the metadata service.
type Store interface {
	// Lifecycle
	Close() error

	// Entities
	Save(ctx context.Context, entity *models.LibraryEntity) error
	Get(ctx context.Context, id int64) (*models.LibraryEntity, error) // nil, nil when missing
	List(ctx context.Context, kind models.EntityKind) ([]models.LibraryEntity, error)
	Upsert(ctx context.Context, entity *models.LibraryEntity) (created bool, err error)
	CountByKind(ctx context.Context) (map[models.EntityKind]int, error)

	// Scan runs
	CreateScanRun(ctx context.Context, run *ScanRun) error
	FinishScanRun(ctx context.Context, run *ScanRun) error
	ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error)
}

// ScanRun records one enrichment pass over the library.
type ScanRun struct {
	ID         string     `json:"id"` // ULID
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Resolved   int        `json:"resolved"`
	NotFound   int        `json:"not_found"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

// Scan run statuses.
const (
	ScanRunRunning   = "running"
	ScanRunCompleted = "completed"
	ScanRunAborted   = "aborted"
)

// NaturalKey identifies an entity independent of its store ID, so repeated
// scans map the same artist, album or feed onto one row.
func NaturalKey(e *models.LibraryEntity) string {
	switch e.Kind {
	case models.KindPodcast:
		return string(e.Kind) + "|" + strings.TrimSpace(e.FeedURI)
	case models.KindAlbum:
		return string(e.Kind) + "|" + foldKey(e.ArtistName) + "|" + foldKey(e.Name)
	default:
		return string(e.Kind) + "|" + foldKey(e.Name)
	}
}

func foldKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
