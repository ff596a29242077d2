// file: internal/cache/cache_test.go
// version: 2.0.0
// guid: b2c3d4e5-f6a7-8b9c-0d1e-2f3a4b5c6d7e

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/media-library/internal/metadata"
	"github.com/jdfalk/media-library/internal/models"
)

var artistKey = Key{Kind: models.KindArtist, ID: 42}

func radiohead() *models.CanonicalMetadata {
	return &models.CanonicalMetadata{Provider: "a", ProviderID: "rh", Title: "Radiohead"}
}

func waitForState(t *testing.T, c *Cache, key Key, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		e, _ := c.Entry(key)
		return e.State == want
	}, 2*time.Second, time.Millisecond)
}

func TestKeyRoundTrip(t *testing.T) {
	k, err := ParseKey(artistKey.String())
	require.NoError(t, err)
	assert.Equal(t, artistKey, k)

	_, err = ParseKey("artist")
	assert.Error(t, err)
	_, err = ParseKey("planet:1")
	assert.Error(t, err)
}

func TestGetOrResolve_SingleFlight(t *testing.T) {
	c := New()
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (*models.CanonicalMetadata, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return radiohead(), nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]*models.CanonicalMetadata, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrResolve(context.Background(), artistKey, fn)
		}(i)
	}

	<-entered
	waitForState(t, c, artistKey, StatePending)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "rh", results[i].ProviderID)
	}
	e, ok := c.Entry(artistKey)
	require.True(t, ok)
	assert.Equal(t, StateResolved, e.State)
	assert.False(t, e.ResolvedAt.IsZero())
}

func TestGetOrResolve_NotFoundIsCached(t *testing.T) {
	c := New()
	var calls atomic.Int32
	fn := func(ctx context.Context) (*models.CanonicalMetadata, error) {
		calls.Add(1)
		return nil, metadata.ErrNotFound
	}

	_, err := c.GetOrResolve(context.Background(), artistKey, fn)
	require.ErrorIs(t, err, metadata.ErrNotFound)
	_, err = c.GetOrResolve(context.Background(), artistKey, fn)
	require.ErrorIs(t, err, metadata.ErrNotFound)

	assert.EqualValues(t, 1, calls.Load())
	e, _ := c.Entry(artistKey)
	assert.Equal(t, StateNotFound, e.State)
	assert.Nil(t, e.Metadata)
}

func TestGetOrResolve_NilResultIsNotFound(t *testing.T) {
	c := New()
	_, err := c.GetOrResolve(context.Background(), artistKey, func(context.Context) (*models.CanonicalMetadata, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestGetOrResolve_FailedIsNotCached(t *testing.T) {
	c := New()
	var calls atomic.Int32
	fn := func(ctx context.Context) (*models.CanonicalMetadata, error) {
		if calls.Add(1) == 1 {
			return nil, fmt.Errorf("%w: everything is down", metadata.ErrProvidersUnavailable)
		}
		return radiohead(), nil
	}

	_, err := c.GetOrResolve(context.Background(), artistKey, fn)
	require.ErrorIs(t, err, metadata.ErrProvidersUnavailable)
	e, _ := c.Entry(artistKey)
	assert.Equal(t, StateFailed, e.State)
	assert.Contains(t, e.Err, "everything is down")

	got, err := c.GetOrResolve(context.Background(), artistKey, fn)
	require.NoError(t, err)
	assert.Equal(t, "rh", got.ProviderID)
	assert.EqualValues(t, 2, calls.Load())
}

// countingProvider answers every query with a fixed error.
type countingProvider struct {
	name  string
	err   error
	calls atomic.Int32
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Resolve(context.Context, metadata.Query) (*models.CanonicalMetadata, error) {
	p.calls.Add(1)
	return nil, p.err
}

func TestGetOrResolve_PartialOutageStillCachesNotFound(t *testing.T) {
	spotify := &countingProvider{name: "spotify", err: &metadata.ProviderError{Provider: "spotify", StatusCode: 401, Err: errors.New("unauthorized")}}
	mb := &countingProvider{name: "musicbrainz", err: metadata.ErrNotFound}
	r := metadata.NewResolver(nil, spotify, mb)
	entity := &models.LibraryEntity{ID: 42, Kind: models.KindArtist, Name: "Nobody"}
	fn := func(ctx context.Context) (*models.CanonicalMetadata, error) {
		return r.ResolveArtist(ctx, entity)
	}

	c := New()
	for i := 0; i < 3; i++ {
		_, err := c.GetOrResolve(context.Background(), artistKey, fn)
		require.ErrorIs(t, err, metadata.ErrNotFound)
	}

	e, _ := c.Entry(artistKey)
	assert.Equal(t, StateNotFound, e.State)
	assert.EqualValues(t, 1, spotify.calls.Load())
	assert.EqualValues(t, 1, mb.calls.Load())
}

func TestGetOrResolve_LeaderCancelledLeavesNoPending(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrResolve(ctx, artistKey, func(ctx context.Context) (*models.CanonicalMetadata, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()

	<-entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, ok := c.Entry(artistKey)
	assert.False(t, ok, "cancelled resolution must leave no entry")
	assert.Empty(t, c.Snapshot())
}

func TestGetOrResolve_WaiterTakesOverAfterLeaderCancel(t *testing.T) {
	c := New()
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	entered := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrResolve(leaderCtx, artistKey, func(ctx context.Context) (*models.CanonicalMetadata, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		leaderDone <- err
	}()
	<-entered

	var waiterCalls atomic.Int32
	waiterDone := make(chan *models.CanonicalMetadata, 1)
	go func() {
		meta, err := c.GetOrResolve(context.Background(), artistKey, func(ctx context.Context) (*models.CanonicalMetadata, error) {
			waiterCalls.Add(1)
			return radiohead(), nil
		})
		assert.NoError(t, err)
		waiterDone <- meta
	}()

	time.Sleep(10 * time.Millisecond)
	cancelLeader()

	assert.ErrorIs(t, <-leaderDone, context.Canceled)
	meta := <-waiterDone
	require.NotNil(t, meta)
	assert.Equal(t, "rh", meta.ProviderID)
	assert.EqualValues(t, 1, waiterCalls.Load())
	e, _ := c.Entry(artistKey)
	assert.Equal(t, StateResolved, e.State)
}

func TestGetOrResolve_WaiterCancellationIsLocal(t *testing.T) {
	c := New()
	entered := make(chan struct{})
	release := make(chan struct{})
	leaderDone := make(chan *models.CanonicalMetadata, 1)
	go func() {
		meta, err := c.GetOrResolve(context.Background(), artistKey, func(ctx context.Context) (*models.CanonicalMetadata, error) {
			close(entered)
			<-release
			return radiohead(), nil
		})
		assert.NoError(t, err)
		leaderDone <- meta
	}()
	<-entered

	waiterCtx, cancelWaiter := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrResolve(waiterCtx, artistKey, func(context.Context) (*models.CanonicalMetadata, error) {
			t.Error("waiter must not resolve")
			return nil, nil
		})
		waiterDone <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancelWaiter()
	assert.ErrorIs(t, <-waiterDone, context.Canceled)

	close(release)
	meta := <-leaderDone
	require.NotNil(t, meta)
	e, _ := c.Entry(artistKey)
	assert.Equal(t, StateResolved, e.State)
}

func TestGetOrResolve_DistinctKeysDoNotBlock(t *testing.T) {
	c := New()
	keyA := Key{Kind: models.KindArtist, ID: 1}
	keyB := Key{Kind: models.KindAlbum, ID: 2}
	bDone := make(chan struct{})

	resultA := make(chan error, 1)
	go func() {
		_, err := c.GetOrResolve(context.Background(), keyA, func(ctx context.Context) (*models.CanonicalMetadata, error) {
			select {
			case <-bDone:
				return radiohead(), nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("key B never resolved while key A was in flight")
			}
		})
		resultA <- err
	}()

	waitForState(t, c, keyA, StatePending)
	_, err := c.GetOrResolve(context.Background(), keyB, func(context.Context) (*models.CanonicalMetadata, error) {
		return &models.CanonicalMetadata{Provider: "a", ProviderID: "help", Title: "Help!"}, nil
	})
	require.NoError(t, err)
	close(bDone)
	assert.NoError(t, <-resultA)
}

func TestGetOrResolve_PanicReleasesWaiters(t *testing.T) {
	c := New()
	func() {
		defer func() { assert.NotNil(t, recover()) }()
		_, _ = c.GetOrResolve(context.Background(), artistKey, func(context.Context) (*models.CanonicalMetadata, error) {
			panic("boom")
		})
	}()

	e, _ := c.Entry(artistKey)
	assert.Equal(t, StateFailed, e.State)

	got, err := c.GetOrResolve(context.Background(), artistKey, func(context.Context) (*models.CanonicalMetadata, error) {
		return radiohead(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "rh", got.ProviderID)
}

func TestGetOrResolve_CancelledBeforeStart(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrResolve(ctx, artistKey, func(context.Context) (*models.CanonicalMetadata, error) {
		t.Error("resolve must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidate(t *testing.T) {
	c := New()
	var calls atomic.Int32
	fn := func(context.Context) (*models.CanonicalMetadata, error) {
		calls.Add(1)
		return nil, metadata.ErrNotFound
	}
	other := Key{Kind: models.KindAlbum, ID: 7}

	_, _ = c.GetOrResolve(context.Background(), artistKey, fn)
	_, _ = c.GetOrResolve(context.Background(), other, fn)
	require.NoError(t, c.Invalidate(artistKey))

	_, ok := c.Entry(artistKey)
	assert.False(t, ok)
	_, ok = c.Entry(other)
	assert.True(t, ok)

	_, _ = c.GetOrResolve(context.Background(), artistKey, fn)
	assert.EqualValues(t, 3, calls.Load())
}

func TestInvalidateAll(t *testing.T) {
	c := New()
	for i := int64(1); i <= 3; i++ {
		_, err := c.GetOrResolve(context.Background(), Key{Kind: models.KindArtist, ID: i}, func(context.Context) (*models.CanonicalMetadata, error) {
			return radiohead(), nil
		})
		require.NoError(t, err)
	}
	require.Len(t, c.Snapshot(), 3)
	require.NoError(t, c.InvalidateAll())
	assert.Empty(t, c.Snapshot())
}

func TestSnapshotOrder(t *testing.T) {
	c := New()
	keys := []Key{
		{Kind: models.KindArtist, ID: 9},
		{Kind: models.KindAlbum, ID: 3},
		{Kind: models.KindArtist, ID: 2},
	}
	for _, k := range keys {
		_, _ = c.GetOrResolve(context.Background(), k, func(context.Context) (*models.CanonicalMetadata, error) {
			return radiohead(), nil
		})
	}
	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, Key{Kind: models.KindAlbum, ID: 3}, snap[0].Key)
	assert.Equal(t, Key{Kind: models.KindArtist, ID: 2}, snap[1].Key)
	assert.Equal(t, Key{Kind: models.KindArtist, ID: 9}, snap[2].Key)
}

func TestStateText(t *testing.T) {
	b, err := StateNotFound.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "not_found", string(b))

	var s State
	require.NoError(t, s.UnmarshalText([]byte("resolved")))
	assert.Equal(t, StateResolved, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}
