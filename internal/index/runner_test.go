package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russo2100/trading-analytics-rag/internal/embed"
	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/internal/ui"
)

type recordingRenderer struct {
	events []ui.ProgressEvent
	warns  []error
}

func (r *recordingRenderer) UpdateProgress(e ui.ProgressEvent) { r.events = append(r.events, e) }
func (r *recordingRenderer) Warn(err error)                    { r.warns = append(r.warns, err) }

type failingEmbedder struct{ embed.Embedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("ollama unreachable")
}

func seedStore(t *testing.T, n int) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	events := make([]*store.Event, n)
	for i := range events {
		events[i] = &store.Event{
			ID:            fmt.Sprintf("ev-%03d", i),
			Source:        "logs",
			EmbeddingText: fmt.Sprintf("Trading cycle %d: Signal HOLD, RSI %d", i, 40+i),
			Authority:     0.8,
			Freshness:     time.Date(2026, 1, 30, 9, i, 0, 0, time.UTC),
		}
	}
	require.NoError(t, s.SaveEvents(context.Background(), events))
	return s
}

func TestRunner_BuildsAndSavesVectorIndex(t *testing.T) {
	// Given: 10 stored events and an on-disk vector index
	ctx := context.Background()
	records := seedStore(t, 10)
	dir := t.TempDir()
	vector, err := store.OpenEmbeddingIndex(filepath.Join(dir, "vectors.hnsw"), embed.NewStaticEmbedder(64))
	require.NoError(t, err)
	defer vector.Close()
	lock, err := store.NewFileLock(filepath.Join(dir, "index.lock"))
	require.NoError(t, err)

	renderer := &recordingRenderer{}
	runner, err := NewRunner(RunnerDependencies{Renderer: renderer, Records: records, Vector: vector, Lock: lock})
	require.NoError(t, err)

	// When: building with batches of 4
	result, err := runner.Run(ctx, RunnerConfig{BatchSize: 4})

	// Then: all events are embedded in 3 batches and the index is saved
	require.NoError(t, err)
	assert.Equal(t, 10, result.Events)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 10, result.Vectors)
	assert.FileExists(t, filepath.Join(dir, "vectors.hnsw"))

	last := renderer.events[len(renderer.events)-1]
	assert.Equal(t, ui.StageSaving, last.Stage)
	assert.Equal(t, ui.ProgressEvent{Stage: ui.StageEmbedding, Current: 10, Total: 10, Message: "embedding events"},
		renderer.events[len(renderer.events)-2])

	// And: the reopened index answers queries
	reopened, err := store.OpenEmbeddingIndex(filepath.Join(dir, "vectors.hnsw"), embed.NewStaticEmbedder(64))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 10, reopened.Count())

	check, err := Check(ctx, records, reopened)
	require.NoError(t, err)
	assert.False(t, check.Stale())
}

func TestRunner_EmptyStoreWarns(t *testing.T) {
	records := seedStore(t, 0)
	vector, err := store.OpenEmbeddingIndex("", embed.NewStaticEmbedder(32))
	require.NoError(t, err)
	renderer := &recordingRenderer{}
	runner, err := NewRunner(RunnerDependencies{Renderer: renderer, Records: records, Vector: vector})
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), RunnerConfig{})

	require.NoError(t, err)
	assert.Zero(t, result.Events)
	require.Len(t, renderer.warns, 1)
	assert.Contains(t, renderer.warns[0].Error(), "tradingrag import")
}

func TestRunner_EmbeddingFailure(t *testing.T) {
	records := seedStore(t, 3)
	vector, err := store.OpenEmbeddingIndex("", failingEmbedder{embed.NewStaticEmbedder(32)})
	require.NoError(t, err)
	runner, err := NewRunner(RunnerDependencies{Renderer: &recordingRenderer{}, Records: records, Vector: vector})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), RunnerConfig{})

	var ragErr *ragerrors.RAGError
	require.ErrorAs(t, err, &ragErr)
	assert.Equal(t, ragerrors.ErrCodeEmbeddingFailed, ragErr.Code)
}

func TestRunner_LockHeld(t *testing.T) {
	// Given: another build holds the lock
	lockPath := filepath.Join(t.TempDir(), "index.lock")
	held, err := store.NewFileLock(lockPath)
	require.NoError(t, err)
	require.NoError(t, held.TryLock())
	defer held.Unlock()

	ours, err := store.NewFileLock(lockPath)
	require.NoError(t, err)
	vector, err := store.OpenEmbeddingIndex("", embed.NewStaticEmbedder(32))
	require.NoError(t, err)
	runner, err := NewRunner(RunnerDependencies{
		Renderer: &recordingRenderer{}, Records: seedStore(t, 1), Vector: vector, Lock: ours,
	})
	require.NoError(t, err)

	// When
	_, err = runner.Run(context.Background(), RunnerConfig{})

	// Then
	var ragErr *ragerrors.RAGError
	require.ErrorAs(t, err, &ragErr)
	assert.Equal(t, ragerrors.ErrCodeIndexLocked, ragErr.Code)
}

func TestNewRunner_RequiresDeps(t *testing.T) {
	_, err := NewRunner(RunnerDependencies{})
	assert.Error(t, err)
	_, err = NewRunner(RunnerDependencies{Renderer: &recordingRenderer{}})
	assert.Error(t, err)
	_, err = NewRunner(RunnerDependencies{Renderer: &recordingRenderer{}, Records: seedStore(t, 0)})
	assert.Error(t, err)
}

type fixedCount int

func (f fixedCount) Count() int { return int(f) }

func TestCheck_Stale(t *testing.T) {
	records := seedStore(t, 5)

	res, err := Check(context.Background(), records, fixedCount(3))

	require.NoError(t, err)
	assert.True(t, res.Stale())
	assert.Equal(t, "index stale: 5 events stored, 3 vectors indexed", res.String())
}
