// file: internal/metadata/errors.go
// version: 1.0.0
// guid: 0c5e2a7d-3f41-4b86-a9d2-61e8f4b3c7a5

package metadata

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means the providers answered and nothing matched. It is a
	// valid outcome and is cached.
	ErrNotFound = errors.New("metadata not found")

	// ErrInvalidQuery is returned before any outbound call when a query
	// cannot be sent.
	ErrInvalidQuery = errors.New("invalid metadata query")

	// ErrProvidersUnavailable means no provider resolved and at least one
	// could not be reached. It is never cached as a negative result.
	ErrProvidersUnavailable = errors.New("metadata providers unavailable")

	// ErrAssetDownloadFailed marks a failed artwork download.
	ErrAssetDownloadFailed = errors.New("asset download failed")
)

// ProviderError is a transport, status or parse failure talking to one
// provider. It is distinct from ErrNotFound.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether a retry later might succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

func unavailable(failures []error) error {
	return fmt.Errorf("%w: %w", ErrProvidersUnavailable, errors.Join(failures...))
}
