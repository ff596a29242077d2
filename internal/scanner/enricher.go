// file: internal/scanner/enricher.go
// version: 1.1.0
// guid: 5e1a9c3d-7b24-4f86-a0d9-3c6e8b2f4a17

package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/enrichment"
	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metadata"
	"github.com/jdfalk/media-library/internal/metrics"
	"github.com/jdfalk/media-library/internal/models"
)

// EntityEnricher enriches single entities. enrichment.Service implements it.
type EntityEnricher interface {
	Enrich(ctx context.Context, entity *models.LibraryEntity) error
	Wait()
}

// ProgressFunc is called after each entity with the number done so far.
type ProgressFunc func(done, total int)

// StartFunc is called once the run has been recorded.
type StartFunc func(run database.ScanRun)

// Enricher runs the metadata service over every stored entity.
type Enricher struct {
	svc      EntityEnricher
	store    database.Store
	workers  int
	log      *logger.Logger
	progress ProgressFunc
	started  StartFunc
}

// NewEnricher creates an Enricher running at most workers lookups at once.
func NewEnricher(svc EntityEnricher, store database.Store, workers int, log *logger.Logger) *Enricher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Enricher{svc: svc, store: store, workers: workers, log: log}
}

// OnProgress registers fn to receive progress updates.
func (e *Enricher) OnProgress(fn ProgressFunc) { e.progress = fn }

// OnStart registers fn to receive the run record before any lookups.
func (e *Enricher) OnStart(fn StartFunc) { e.started = fn }

// enrichable reports whether the metadata service can resolve kind.
func enrichable(kind models.EntityKind) bool {
	switch kind {
	case models.KindArtist, models.KindAlbum, models.KindPodcast:
		return true
	}
	return false
}

// Run enriches every entity of kind ("" for all). Per-entity failures are
// logged and counted; the run still completes. Only library store failures
// and cancellation abort it. The returned run is always non-nil once it has
// been recorded.
func (e *Enricher) Run(ctx context.Context, kind models.EntityKind) (*database.ScanRun, error) {
	all, err := e.store.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", enrichment.ErrLibraryStore, err)
	}
	entities := all[:0]
	for _, ent := range all {
		if enrichable(ent.Kind) {
			entities = append(entities, ent)
		}
	}

	run := &database.ScanRun{
		ID:        ulid.Make().String(),
		StartedAt: time.Now().UTC(),
		Status:    database.ScanRunRunning,
		Total:     len(entities),
	}
	if err := e.store.CreateScanRun(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: %w", enrichment.ErrLibraryStore, err)
	}
	e.log.Infof("enrichment run %s started: %d entities, %d workers", run.ID, run.Total, e.workers)
	if e.started != nil {
		e.started(*run)
	}

	var resolved, notFound, failed, done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range entities {
		if gctx.Err() != nil {
			break
		}
		ent := entities[i]
		g.Go(func() error {
			err := e.svc.Enrich(gctx, &ent)
			switch {
			case err == nil:
				resolved.Add(1)
				metrics.IncEnrichmentItem("resolved")
			case errors.Is(err, metadata.ErrNotFound):
				notFound.Add(1)
				metrics.IncEnrichmentItem("not_found")
			case errors.Is(err, enrichment.ErrLibraryStore):
				return err
			case gctx.Err() != nil:
				// Cancelled with the run; not a per-entity outcome.
				return nil
			default:
				failed.Add(1)
				metrics.IncEnrichmentItem("failed")
				e.log.Warnf("enriching %s %d (%s): %v", ent.Kind, ent.ID, ent.DisplayTitle(), err)
			}
			n := int(done.Add(1))
			if e.progress != nil {
				e.progress(n, len(entities))
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}
	e.svc.Wait()

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Resolved = int(resolved.Load())
	run.NotFound = int(notFound.Load())
	run.Failed = int(failed.Load())
	run.Status = database.ScanRunCompleted
	if runErr != nil {
		run.Status = database.ScanRunAborted
		run.Error = runErr.Error()
	}

	// Record the outcome even when the caller's context is gone.
	if err := e.store.FinishScanRun(context.WithoutCancel(ctx), run); err != nil {
		e.log.Errorf("failed to record enrichment run %s: %v", run.ID, err)
		if runErr == nil {
			runErr = fmt.Errorf("%w: %w", enrichment.ErrLibraryStore, err)
		}
	}

	if runErr != nil {
		e.log.Errorf("enrichment run %s aborted: %v", run.ID, runErr)
		return run, runErr
	}
	e.log.Infof("enrichment run %s completed: %d resolved, %d not found, %d failed",
		run.ID, run.Resolved, run.NotFound, run.Failed)
	return run, nil
}
