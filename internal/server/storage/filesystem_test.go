package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/hibana-share/hibana/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStore_PutGetDelete(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	fileID := uuid.NewString()
	data := []byte("opaque ciphertext bytes")

	require.NoError(t, store.Put(ctx, fileID, data))

	got, err := store.Get(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, fileID))

	_, err = store.Get(ctx, fileID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFilesystemStore_DeleteIdempotent(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), uuid.NewString()))
}

func TestFilesystemStore_ShardedLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	fileID := "550e8400-e29b-41d4-a716-446655440000"
	require.NoError(t, store.Put(ctx, fileID, []byte("x")))

	expected := filepath.Join(root, "55", "0e", fileID+".enc")
	_, statErr := os.Stat(expected)
	assert.NoError(t, statErr)
}

func TestFilesystemStore_DeletePrunesEmptyShards(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	fileID := "550e8400-e29b-41d4-a716-446655440000"
	require.NoError(t, store.Put(ctx, fileID, []byte("x")))
	require.NoError(t, store.Delete(ctx, fileID))

	_, statErr := os.Stat(filepath.Join(root, "55"))
	assert.True(t, os.IsNotExist(statErr))

	// root itself survives
	_, statErr = os.Stat(root)
	assert.NoError(t, statErr)
}

func TestFilesystemStore_Stats(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, uuid.NewString(), []byte("12345")))
	require.NoError(t, store.Put(ctx, uuid.NewString(), []byte("123")))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(8), stats.TotalBytes)
}

func TestFilesystemStore_FailedPutLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	fileID := uuid.NewString()
	require.NoError(t, store.Put(ctx, fileID, []byte("visible")))

	// no temp artifacts remain after a successful rename either
	var stray []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Ext(path) != ".enc" {
			stray = append(stray, path)
		}
		return nil
	})
	assert.Empty(t, stray)
}
