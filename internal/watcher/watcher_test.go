// file: internal/watcher/watcher_test.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7890-abcd-ef1234567890

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExtensions = []string{".mp3", "FLAC", ".m4a"}

// recorder collects callback invocations.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) callback(roots []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, roots)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func startWatcher(t *testing.T, rec *recorder, debounce time.Duration, roots ...string) *Watcher {
	t.Helper()
	w := New(rec.callback, debounce, testExtensions, nil)
	require.NoError(t, w.Start(roots...))
	t.Cleanup(w.Stop)
	return w
}

func TestIsAudioFile(t *testing.T) {
	w := New(nil, 0, testExtensions, nil)
	tests := []struct {
		name string
		want bool
	}{
		{"song.mp3", true},
		{"song.MP3", true},
		{"song.flac", true},
		{"song.m4a", true},
		{"song.ogg", false},
		{"cover.jpg", false},
		{"song", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.IsAudioFile(tt.name), tt.name)
	}
}

func TestDebounceCoalescesEvents(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, 200*time.Millisecond, dir)

	for i := 0; i < 5; i++ {
		f := filepath.Join(dir, "track"+string(rune('a'+i))+".mp3")
		require.NoError(t, os.WriteFile(f, []byte("data"), 0o644))
		time.Sleep(30 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{dir}, calls[0])
}

func TestNonAudioFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, 100*time.Millisecond, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("img"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestReportsChangedRootsOnly(t *testing.T) {
	music := t.TempDir()
	podcasts := t.TempDir()
	nested := filepath.Join(music, "Radiohead", "OK Computer")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	rec := &recorder{}
	w := startWatcher(t, rec, 100*time.Millisecond, music, podcasts, filepath.Join(music, "missing"))
	assert.Equal(t, []string{music, podcasts}, w.Roots())

	require.NoError(t, os.WriteFile(filepath.Join(nested, "01 Airbag.flac"), []byte("audio"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{music}, rec.snapshot()[0])
}

func TestNewDirectoryWithAudio(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, rec, 100*time.Millisecond, dir)

	// Moving a populated album folder in emits only a directory create.
	staging := t.TempDir()
	album := filepath.Join(staging, "Kid A")
	require.NoError(t, os.MkdirAll(album, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(album, "01.mp3"), []byte("audio"), 0o644))
	require.NoError(t, os.Rename(album, filepath.Join(dir, "Kid A")))

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestDeleteTriggers(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(f, []byte("data"), 0o644))

	rec := &recorder{}
	startWatcher(t, rec, 100*time.Millisecond, dir)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.Remove(f))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New(nil, 100*time.Millisecond, testExtensions, nil)
	require.NoError(t, w.Start(dir))
	require.NoError(t, w.Start(dir))
	w.Stop()
	w.Stop()
}

func TestStopDiscardsPendingCallback(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(rec.callback, 200*time.Millisecond, testExtensions, nil)
	require.NoError(t, w.Start(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "track.mp3"), []byte("data"), 0o644))
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
