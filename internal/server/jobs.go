// file: internal/server/jobs.go
// version: 1.0.0
// guid: 2f6c8a1e-4d93-4b70-9e25-7a1d3c5b8e64

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/models"
	"github.com/jdfalk/media-library/internal/realtime"
	"github.com/jdfalk/media-library/internal/scanner"
)

// ErrJobRunning is returned when a scan or enrichment is requested while
// another one is still in progress.
var ErrJobRunning = errors.New("a library job is already running")

// ErrScanUnavailable is returned when the server was built without a scanner.
var ErrScanUnavailable = errors.New("scanning is not configured")

// jobRunner runs at most one library job at a time in the background.
type jobRunner struct {
	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newJobRunner() *jobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &jobRunner{ctx: ctx, cancel: cancel}
}

func (j *jobRunner) start(name string, fn func(ctx context.Context)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active != "" {
		return ErrJobRunning
	}
	if j.ctx.Err() != nil {
		return j.ctx.Err()
	}
	j.active = name
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer func() {
			j.mu.Lock()
			j.active = ""
			j.mu.Unlock()
		}()
		fn(j.ctx)
	}()
	return nil
}

func (j *jobRunner) current() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}

func (j *jobRunner) wait() { j.wg.Wait() }

// stop cancels the running job and waits for it to record its outcome.
func (j *jobRunner) stop() {
	j.cancel()
	j.wg.Wait()
}

// StartEnrichment begins a background enrichment run over entities of kind
// ("" for all). Progress is published on the event stream.
func (s *Server) StartEnrichment(kind models.EntityKind) error {
	return s.jobs.start("enrich", func(ctx context.Context) {
		_, _ = s.runEnrichment(ctx, kind)
	})
}

// StartScan begins a background scan of folders (the configured media
// folders when empty), optionally followed by enrichment.
func (s *Server) StartScan(folders []string, enrich bool) error {
	if s.scanner == nil {
		return ErrScanUnavailable
	}
	return s.jobs.start("scan", func(ctx context.Context) {
		res, err := s.scanner.Scan(ctx, folders...)
		data := map[string]any{"folders": folders}
		if err != nil {
			s.log.Errorf("scan failed: %v", err)
			data["error"] = err.Error()
			s.hub.Publish(realtime.EventLibraryScanned, "", data)
			return
		}
		data["files"] = res.Files
		data["duplicates"] = res.Duplicates
		data["untagged"] = res.Untagged
		data["artists_created"] = res.ArtistsCreated
		data["albums_created"] = res.AlbumsCreated
		s.hub.Publish(realtime.EventLibraryScanned, "", data)

		if enrich {
			_, _ = s.runEnrichment(ctx, "")
		}
	})
}

func (s *Server) runEnrichment(ctx context.Context, kind models.EntityKind) (*database.ScanRun, error) {
	en := scanner.NewEnricher(s.svc, s.store, s.workers, s.log.With("enricher"))
	var runID string
	en.OnStart(func(run database.ScanRun) {
		runID = run.ID
		s.hub.Publish(realtime.EventRunStarted, run.ID, map[string]any{
			"run_id": run.ID,
			"kind":   string(kind),
			"total":  run.Total,
		})
	})
	en.OnProgress(func(done, total int) {
		s.hub.SendRunProgress(runID, done, total)
	})

	run, err := en.Run(ctx, kind)
	if run == nil {
		s.log.Errorf("enrichment failed to start: %v", err)
		return nil, err
	}
	data := map[string]any{
		"run_id":    run.ID,
		"status":    string(run.Status),
		"total":     run.Total,
		"resolved":  run.Resolved,
		"not_found": run.NotFound,
		"failed":    run.Failed,
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	s.hub.Publish(realtime.EventRunFinished, run.ID, data)
	return run, err
}

func (s *Server) startEnrichmentHandler(c *gin.Context) {
	var kind models.EntityKind
	if raw := c.Query("kind"); raw != "" {
		k, err := models.ParseEntityKind(raw)
		if err != nil {
			RespondWithBadRequest(c, err.Error())
			return
		}
		kind = k
	}
	if err := s.StartEnrichment(kind); err != nil {
		respondWithJobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Data: gin.H{"job": "enrich", "kind": string(kind)}})
}

type scanRequest struct {
	Folders []string `json:"folders"`
	Enrich  bool     `json:"enrich"`
}

func (s *Server) startScanHandler(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondWithBadRequest(c, "invalid scan request: "+err.Error())
			return
		}
	}
	if ParseQueryBool(c, "enrich", false) {
		req.Enrich = true
	}
	if err := s.StartScan(req.Folders, req.Enrich); err != nil {
		respondWithJobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Data: gin.H{"job": "scan", "folders": req.Folders, "enrich": req.Enrich}})
}

func respondWithJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrJobRunning):
		RespondWithError(c, http.StatusConflict, err.Error(), "JOB_RUNNING")
	case errors.Is(err, ErrScanUnavailable):
		RespondWithError(c, http.StatusNotImplemented, err.Error(), "SCAN_UNAVAILABLE")
	default:
		RespondWithError(c, http.StatusServiceUnavailable, err.Error(), "SHUTTING_DOWN")
	}
}
