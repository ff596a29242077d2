// file: internal/scanner/scanner.go
// version: 2.0.0
// guid: 3c4d5e6f-7a8b-9c0d-1e2f-3a4b5c6d7e8f

// Package scanner discovers artists and albums in the local media folders and
// drives enrichment runs over the library store.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dhowden/tag"

	"github.com/jdfalk/media-library/internal/config"
	"github.com/jdfalk/media-library/internal/database"
	"github.com/jdfalk/media-library/internal/enrichment"
	"github.com/jdfalk/media-library/internal/logger"
	"github.com/jdfalk/media-library/internal/metrics"
	"github.com/jdfalk/media-library/internal/models"
)

// Track is one audio file as seen by the scanner.
type Track struct {
	Path   string
	Artist string
	Album  string
	Title  string
}

// Result summarizes a scan.
type Result struct {
	Files          int `json:"files"`
	Duplicates     int `json:"duplicates"`
	Untagged       int `json:"untagged"`
	ArtistsCreated int `json:"artists_created"`
	AlbumsCreated  int `json:"albums_created"`
}

type fileID struct {
	dev uint64
	ino uint64
}

// Scanner walks media folders and upserts the artists and albums it finds.
type Scanner struct {
	store      database.Store
	extensions []string
	folders    []string
	log        *logger.Logger
}

// New creates a Scanner reading folders and extensions from cfg.
func New(store database.Store, cfg *config.Config, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.Nop()
	}
	exts := make([]string, 0, len(cfg.SupportedExtensions))
	for _, e := range cfg.SupportedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &Scanner{
		store:      store,
		extensions: exts,
		folders:    cfg.DefaultMediaFolders(),
		log:        log,
	}
}

// Scan walks folders, or the configured media folders when none are given.
// Missing or unreadable folders are logged and skipped. Only library store
// failures and cancellation stop the scan.
func (s *Scanner) Scan(ctx context.Context, folders ...string) (*Result, error) {
	if len(folders) == 0 {
		folders = s.folders
	}
	res := &Result{}
	seenFiles := make(map[fileID]bool)
	seenEntities := make(map[string]bool)

	for _, root := range folders {
		if err := s.scanFolder(ctx, root, res, seenFiles, seenEntities); err != nil {
			return res, err
		}
	}

	counts, err := s.store.CountByKind(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", enrichment.ErrLibraryStore, err)
	}
	for _, k := range models.AllKinds() {
		metrics.SetEntities(string(k), counts[k])
	}
	s.log.Infof("scan finished: %d files, %d new artists, %d new albums", res.Files, res.ArtistsCreated, res.AlbumsCreated)
	return res, nil
}

func (s *Scanner) scanFolder(ctx context.Context, root string, res *Result, seenFiles map[fileID]bool, seenEntities map[string]bool) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		s.log.Warnf("skipping media folder %s: not a readable directory", root)
		return nil
	}
	s.log.Infof("scanning %s", root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.log.Warnf("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.supported(path) {
			return nil
		}

		if fi, err := d.Info(); err == nil {
			if id, ok := fileIdentity(fi); ok {
				if seenFiles[id] {
					res.Duplicates++
					return nil
				}
				seenFiles[id] = true
			}
		}
		res.Files++

		track, tagged := readTrack(root, path)
		if !tagged {
			res.Untagged++
		}
		return s.record(ctx, track, res, seenEntities)
	})
}

func (s *Scanner) supported(path string) bool {
	return slices.Contains(s.extensions, strings.ToLower(filepath.Ext(path)))
}

// record upserts the artist and album of track once per scan.
func (s *Scanner) record(ctx context.Context, track Track, res *Result, seen map[string]bool) error {
	var entities []*models.LibraryEntity
	if track.Artist != "" {
		entities = append(entities, &models.LibraryEntity{Kind: models.KindArtist, Name: track.Artist})
	}
	if track.Album != "" {
		entities = append(entities, &models.LibraryEntity{Kind: models.KindAlbum, Name: track.Album, ArtistName: track.Artist})
	}

	for _, e := range entities {
		key := database.NaturalKey(e)
		if seen[key] {
			continue
		}
		created, err := s.store.Upsert(ctx, e)
		if err != nil {
			return fmt.Errorf("%w: %w", enrichment.ErrLibraryStore, err)
		}
		seen[key] = true
		if !created {
			continue
		}
		s.log.Debugf("new %s %q (id %d)", e.Kind, e.Name, e.ID)
		switch e.Kind {
		case models.KindArtist:
			res.ArtistsCreated++
		case models.KindAlbum:
			res.AlbumsCreated++
		}
	}
	return nil
}

// readTrack reads embedded tags from path and fills missing fields from the
// Artist/Album/track folder layout under root. The second return value
// reports whether tags were readable.
func readTrack(root, path string) (Track, bool) {
	track := Track{Path: path}
	tagged := false

	if f, err := os.Open(path); err == nil {
		m, err := tag.ReadFrom(f)
		f.Close()
		if err == nil {
			tagged = true
			track.Title = strings.TrimSpace(m.Title())
			track.Album = strings.TrimSpace(m.Album())
			// Album artist groups compilations under one name
			track.Artist = strings.TrimSpace(m.AlbumArtist())
			if track.Artist == "" {
				track.Artist = strings.TrimSpace(m.Artist())
			}
		}
	}

	artist, album := fromLayout(root, path)
	if track.Artist == "" {
		track.Artist = artist
	}
	if track.Album == "" {
		track.Album = album
	}
	if track.Title == "" {
		track.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return track, tagged
}

// fromLayout derives artist and album from a path shaped like
// root/Artist/Album/track.ext. Files directly under an artist folder yield
// only the artist.
func fromLayout(root, path string) (artist, album string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) >= 3:
		return parts[len(parts)-3], parts[len(parts)-2]
	case len(parts) == 2:
		return parts[0], ""
	default:
		return "", ""
	}
}
