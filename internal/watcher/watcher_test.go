package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, Options{}.WithDefaults().DebounceWindow)
	assert.Equal(t, time.Second, Options{DebounceWindow: time.Second}.WithDefaults().DebounceWindow)
}

func TestIndexWatcher_Relevant(t *testing.T) {
	w, err := NewIndexWatcher(t.TempDir(), Options{Files: []string{"vectors.hnsw"}})
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.relevant("vectors.hnsw"))
	assert.False(t, w.relevant("vectors.hnsw.tmp"))
	assert.False(t, w.relevant("index.lock"))
	assert.False(t, w.relevant("notes.txt"))
}

func TestNewIndexWatcher_MissingDir(t *testing.T) {
	_, err := NewIndexWatcher(filepath.Join(t.TempDir(), "nope"), DefaultOptions())
	assert.Error(t, err)
}

func TestIndexWatcher_ReloadsAfterAtomicSave(t *testing.T) {
	// Given: a watcher on the index directory
	dir := t.TempDir()
	w, err := NewIndexWatcher(dir, Options{DebounceWindow: 50 * time.Millisecond, Files: []string{"vectors.hnsw"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []FileEvent
	reloaded := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, events []FileEvent) error {
			mu.Lock()
			got = append(got, events...)
			mu.Unlock()
			select {
			case reloaded <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// When: the index is saved via temp file and rename
	tmp := filepath.Join(dir, "vectors.hnsw.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("graph"), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "vectors.hnsw")))

	// Then: the reload callback sees the final file only
	select {
	case <-reloaded:
	case <-ctx.Done():
		t.Fatal("timeout waiting for reload")
	}
	mu.Lock()
	require.NotEmpty(t, got)
	for _, e := range got {
		assert.Equal(t, "vectors.hnsw", e.Path)
	}
	mu.Unlock()
	assert.Eventually(t, func() bool { return w.Reloads() >= 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, <-done)
}

func TestIndexWatcher_FailedReloadKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	w, err := NewIndexWatcher(dir, Options{DebounceWindow: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	calls := make(chan struct{}, 4)
	go func() {
		_ = w.Run(ctx, func(context.Context, []FileEvent) error {
			calls <- struct{}{}
			return errors.New("corrupt index")
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.db"), []byte("x"), 0o644))
	<-calls
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.db"), []byte("y"), 0o644))
	select {
	case <-calls:
	case <-ctx.Done():
		t.Fatal("watcher stopped after a failed reload")
	}

	assert.Eventually(t, func() bool { return w.Failures() >= 2 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, w.Reloads())
	_ = w.Stop()
}

func TestIndexWatcher_RunRequiresReload(t *testing.T) {
	w, err := NewIndexWatcher(t.TempDir(), DefaultOptions())
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Run(context.Background(), nil))
}
