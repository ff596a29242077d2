// file: internal/server/server.go
// version: 2.1.0
// guid: 4c5d6e7f-8a9b-0c1d-2e3f-4a5b6c7d8e9f

// Package server exposes the library and the metadata cache over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdfalk/media-library/internal/cache"
	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/enrichment"
	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metrics"
	"github.com/jdfalk/media-library/internal/models"
	"github.com/jdfalk/media-library/internal/realtime"
	"github.com/jdfalk/media-library/internal/scanner"
	"github.com/jdfalk/media-library/internal/server/middleware"
)

const version = "1.0.0"

// Deps are the collaborators of a Server.
type Deps struct {
	Store     database.Store
	Service   *enrichment.Service
	Providers []string // resolution order, reported by the health check
	Logger    *logger.Logger

	// Scanner enables POST /scan; nil disables it.
	Scanner *scanner.Scanner
	// Workers bounds concurrent lookups during background enrichment.
	Workers int
	// Hub receives job and cache events; one is created when nil.
	Hub *realtime.EventHub

	// RequestsPerMinute limits API calls per client IP; 0 disables it.
	RequestsPerMinute int
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	store      database.Store
	svc        *enrichment.Service
	providers  []string
	log        *logger.Logger
	scanner    *scanner.Scanner
	workers    int
	hub        *realtime.EventHub
	jobs       *jobRunner
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new server instance
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(d.Logger))

	// Register metrics (idempotent)
	metrics.Register()

	if d.Hub == nil {
		d.Hub = realtime.NewEventHub(d.Logger.With("events"))
	}

	s := &Server{
		router:    router,
		store:     d.Store,
		svc:       d.Service,
		providers: d.Providers,
		log:       d.Logger,
		scanner:   d.Scanner,
		workers:   d.Workers,
		hub:       d.Hub,
		jobs:      newJobRunner(),
	}
	s.setupRoutes(d.RequestsPerMinute)
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler { return s.router }

// Events returns the hub that streams job and cache events.
func (s *Server) Events() *realtime.EventHub { return s.hub }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, cfg ServerConfig) error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	// Event streams never go idle on their own.
	s.httpServer.RegisterOnShutdown(s.hub.Close)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Infof("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.jobs.stop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.svc.Wait()

	s.log.Infof("Server exited")
	return nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes(requestsPerMinute int) {
	// Prometheus metrics endpoint (standard path)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	if requestsPerMinute > 0 {
		api.Use(middleware.NewIPRateLimiter(requestsPerMinute, requestsPerMinute/2+1, "/api/v1/events", "/api/v1/health").Middleware())
	}

	api.GET("/health", s.healthCheck)

	api.GET("/entities", s.listEntities)
	api.GET("/entities/:id", s.getEntity)

	api.GET("/metadata/:kind/:id", s.getMetadata)
	api.DELETE("/metadata/:kind/:id", s.invalidateMetadata)
	api.DELETE("/metadata", s.invalidateAllMetadata)

	api.GET("/cache", s.listCache)
	api.GET("/scans", s.listScans)

	api.POST("/scan", s.startScanHandler)
	api.POST("/enrich", s.startEnrichmentHandler)
	api.GET("/events", s.hub.HandleSSE)
}

func (s *Server) healthCheck(c *gin.Context) {
	counts, err := s.store.CountByKind(c.Request.Context())
	entities := gin.H{}
	for _, k := range models.AllKinds() {
		entities[string(k)] = counts[k]
	}
	resp := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   version,
		"providers": s.providers,
		"job":       s.jobs.current(),
		"metrics": gin.H{
			"entities":      entities,
			"cache_entries": len(s.svc.Cache().Snapshot()),
			"sse_clients":   s.hub.ClientCount(),
		},
	}
	if err != nil {
		resp["partial_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listEntities(c *gin.Context) {
	var kind models.EntityKind
	if raw := c.Query("kind"); raw != "" {
		k, err := models.ParseEntityKind(raw)
		if err != nil {
			RespondWithBadRequest(c, err.Error())
			return
		}
		kind = k
	}
	page := ParsePaginationParams(c)

	all, err := s.store.List(c.Request.Context(), kind)
	if err != nil {
		RespondWithInternalError(c, "failed to list entities: "+err.Error())
		return
	}
	items := []models.LibraryEntity{}
	if page.Offset < len(all) {
		end := min(page.Offset+page.Limit, len(all))
		items = all[page.Offset:end]
	}
	RespondWithList(c, items, len(all), page.Limit, page.Offset)
}

func (s *Server) getEntity(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondWithBadRequest(c, "invalid entity id")
		return
	}
	entity, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		RespondWithInternalError(c, err.Error())
		return
	}
	if entity == nil {
		RespondWithNotFound(c, "entity", c.Param("id"))
		return
	}
	RespondWithOK(c, entity)
}

// lookupEntity loads the entity addressed by the :kind/:id path and writes an
// error response when it cannot.
func (s *Server) lookupEntity(c *gin.Context) (*models.LibraryEntity, bool) {
	kind, err := models.ParseEntityKind(c.Param("kind"))
	if err != nil {
		RespondWithBadRequest(c, err.Error())
		return nil, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondWithBadRequest(c, "invalid entity id")
		return nil, false
	}
	entity, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		RespondWithInternalError(c, err.Error())
		return nil, false
	}
	if entity == nil || entity.Kind != kind {
		RespondWithNotFound(c, string(kind), c.Param("id"))
		return nil, false
	}
	return entity, true
}

func (s *Server) getMetadata(c *gin.Context) {
	entity, ok := s.lookupEntity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	switch entity.Kind {
	case models.KindPodcast:
		show, err := s.svc.GetPodcastShow(ctx, entity)
		if err != nil {
			RespondWithLookupError(c, err)
			return
		}
		RespondWithOK(c, gin.H{"entity": entity, "show": show})
	case models.KindArtist:
		meta, err := s.svc.GetArtistMetadata(ctx, entity)
		if err != nil {
			RespondWithLookupError(c, err)
			return
		}
		RespondWithOK(c, gin.H{"entity": entity, "metadata": meta})
	case models.KindAlbum:
		artist := c.DefaultQuery("artist", entity.ArtistName)
		meta, err := s.svc.GetAlbumMetadata(ctx, entity, artist)
		if err != nil {
			RespondWithLookupError(c, err)
			return
		}
		RespondWithOK(c, gin.H{"entity": entity, "metadata": meta})
	default:
		RespondWithLookupError(c, fmt.Errorf("%w: %s", enrichment.ErrUnsupportedKind, entity.Kind))
	}
}

// invalidateMetadata drops the cached result for one entity. With
// ?refresh=true the entity is resolved again and returned.
func (s *Server) invalidateMetadata(c *gin.Context) {
	entity, ok := s.lookupEntity(c)
	if !ok {
		return
	}
	if ParseQueryBool(c, "refresh", false) {
		if err := s.svc.RefreshMetadata(c.Request.Context(), entity); err != nil {
			RespondWithLookupError(c, err)
			return
		}
		RespondWithOK(c, entity)
		return
	}
	if err := s.svc.Invalidate(entity.Kind, entity.ID); err != nil {
		RespondWithInternalError(c, err.Error())
		return
	}
	s.hub.Publish(realtime.EventCacheInvalidated, "", map[string]any{"kind": string(entity.Kind), "id": entity.ID})
	RespondWithNoContent(c)
}

func (s *Server) invalidateAllMetadata(c *gin.Context) {
	if err := s.svc.Cache().InvalidateAll(); err != nil {
		RespondWithInternalError(c, err.Error())
		return
	}
	s.hub.Publish(realtime.EventCacheInvalidated, "", map[string]any{"all": true})
	RespondWithNoContent(c)
}

func (s *Server) listCache(c *gin.Context) {
	entries := s.svc.Cache().Snapshot()
	if raw := c.Query("state"); raw != "" {
		var want cache.State
		if err := want.UnmarshalText([]byte(raw)); err != nil {
			RespondWithBadRequest(c, err.Error())
			return
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.State == want {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	RespondWithList(c, entries, len(entries), len(entries), 0)
}

func (s *Server) listScans(c *gin.Context) {
	limit := ParseQueryInt(c, "limit", 20)
	runs, err := s.store.ListScanRuns(c.Request.Context(), limit)
	if err != nil {
		RespondWithInternalError(c, "failed to list scan runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []database.ScanRun{}
	}
	RespondWithList(c, runs, len(runs), limit, 0)
}
