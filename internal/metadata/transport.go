// file: internal/metadata/transport.go
// version: 1.1.0
// guid: 2f6b8c1d-9e47-4a35-b2c8-7d1e0f5a9b34

package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries  = 2
	defaultBackoff     = 500 * time.Millisecond
	maxRetryAfterDelay = 30 * time.Second
	maxResponseBytes   = 4 << 20
)

// Transport performs rate limited JSON GETs for one provider. Retries on
// 429 and 5xx responses live here so the resolver never retries a provider.
type Transport struct {
	provider   string
	client     *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
	backoff    time.Duration
}

// NewTransport builds a transport. A nil limiter disables rate limiting and a
// nil client gets a 30s timeout client.
func NewTransport(provider string, client *http.Client, limiter *rate.Limiter, userAgent string) *Transport {
	if client == nil {
		client = httpClient(0)
	}
	return &Transport{
		provider:   provider,
		client:     client,
		limiter:    limiter,
		userAgent:  userAgent,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
}

// SetRetryPolicy overrides the retry count and base backoff.
func (t *Transport) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	t.maxRetries = maxRetries
	t.backoff = backoff
}

// GetJSON fetches rawURL and decodes the body into out. A 404 yields
// ErrNotFound; other failures yield *ProviderError. Context errors are
// returned unwrapped.
func (t *Transport) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	return t.GetJSONChecked(ctx, rawURL, header, out, nil)
}

// GetJSONChecked is GetJSON for APIs that report errors inside a 200 body.
// check runs after each successful decode; a temporary *ProviderError from
// it is retried like a 429 or 5xx response.
func (t *Transport) GetJSONChecked(ctx context.Context, rawURL string, header http.Header, out any, check func() error) error {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &ProviderError{Provider: t.provider, Err: err}
			}
		}

		retryAfter, err := t.do(ctx, rawURL, header, out)
		if err == nil && check != nil {
			err = check()
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.Temporary() {
			return err
		}
		lastErr = err
		if attempt == t.maxRetries {
			break
		}

		delay := t.backoff << attempt
		if retryAfter > 0 {
			delay = retryAfter
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (t *Transport) do(ctx context.Context, rawURL string, header http.Header, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build request: %w", t.provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, &ProviderError{Provider: t.provider, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s returned 404", ErrNotFound, t.provider)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return parseRetryAfter(resp.Header.Get("Retry-After")), &ProviderError{
			Provider:   t.provider,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return 0, &ProviderError{Provider: t.provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return 0, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return min(d, maxRetryAfterDelay)
	}
	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		return min(d, maxRetryAfterDelay)
	}
	return 0
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
