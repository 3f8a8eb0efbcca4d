package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "index.lock")
	first, err := NewFileLock(path)
	require.NoError(t, err)
	second, err := NewFileLock(path)
	require.NoError(t, err)

	require.NoError(t, first.TryLock())

	err = second.TryLock()
	assert.Equal(t, ragerrors.ErrCodeIndexLocked, ragerrors.GetCode(err))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.Error(t, second.Lock(ctx))

	require.NoError(t, first.Unlock())
	require.NoError(t, second.Lock(context.Background()))
	require.NoError(t, second.Unlock())
}
