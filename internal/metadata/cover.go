// file: internal/metadata/cover.go
// version: 2.1.0
// guid: 4efaa7b8-e29a-47f3-84f7-39b46bfc9a01

package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jdfalk/media-library/internal/models"
)

// maxArtworkBytes caps a single artwork download.
var maxArtworkBytes int64 = 10 * 1024 * 1024

var artworkExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// DownloadArtwork downloads imageURL to {destDir}/{kind}/{id}.{ext} and
// returns the local path. An existing file for the same entity is reused.
// Only image/* responses up to maxArtworkBytes are accepted. The body is
// written to a temporary file and renamed into place, so a partial download
// never becomes the entity's artwork. Every failure wraps
// ErrAssetDownloadFailed.
func DownloadArtwork(ctx context.Context, client *http.Client, imageURL, destDir string, kind models.EntityKind, id int64) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("%w: empty image URL", ErrAssetDownloadFailed)
	}
	if kind == "" || id <= 0 {
		return "", fmt.Errorf("%w: invalid entity %s/%d", ErrAssetDownloadFailed, kind, id)
	}
	if existing := ArtworkPath(destDir, kind, id); existing != "" {
		return existing, nil
	}

	kindDir := filepath.Join(destDir, string(kind))
	if err := os.MkdirAll(kindDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create artwork directory: %w", ErrAssetDownloadFailed, err)
	}

	if client == nil {
		client = httpClient(0)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAssetDownloadFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to download artwork: %w", ErrAssetDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: artwork download returned status %d", ErrAssetDownloadFailed, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: unexpected content type: %s", ErrAssetDownloadFailed, contentType)
	}

	tmp, err := os.CreateTemp(kindDir, "."+strconv.FormatInt(id, 10)+"-*.part")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create artwork file: %w", ErrAssetDownloadFailed, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxArtworkBytes+1))
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: failed to write artwork file: %w", ErrAssetDownloadFailed, err)
	}
	if n > maxArtworkBytes {
		tmp.Close()
		return "", fmt.Errorf("%w: artwork exceeds %d bytes", ErrAssetDownloadFailed, maxArtworkBytes)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to close artwork file: %w", ErrAssetDownloadFailed, err)
	}

	destPath := filepath.Join(kindDir, strconv.FormatInt(id, 10)+extensionFromContentType(contentType))
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("%w: failed to move artwork into place: %w", ErrAssetDownloadFailed, err)
	}
	return destPath, nil
}

// ArtworkPath returns the local artwork file for an entity, or "" if none.
func ArtworkPath(destDir string, kind models.EntityKind, id int64) string {
	matches, _ := filepath.Glob(filepath.Join(destDir, string(kind), strconv.FormatInt(id, 10)+".*"))
	for _, m := range matches {
		if isArtworkExt(filepath.Ext(m)) {
			return m
		}
	}
	return ""
}

// RemoveArtwork deletes any stored artwork for an entity so the next
// download fetches a fresh copy.
func RemoveArtwork(destDir string, kind models.EntityKind, id int64) error {
	matches, _ := filepath.Glob(filepath.Join(destDir, string(kind), strconv.FormatInt(id, 10)+".*"))
	for _, m := range matches {
		if !isArtworkExt(filepath.Ext(m)) {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove artwork %s: %w", m, err)
		}
	}
	return nil
}

func isArtworkExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range artworkExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func extensionFromContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	case strings.Contains(ct, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
