package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hibana-share/hibana/internal/common"
)

// ChunkStore stages the chunks of in-flight uploads on the local
// filesystem, one directory per session: chunks/<session_id>/chunk_000042.
// Staged data is plaintext and short-lived; it is discarded at finalize or
// reaped with the session.
type ChunkStore struct {
	root string
}

func NewChunkStore(root string) (*ChunkStore, error) {
	dir := filepath.Join(root, "chunks")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &ChunkStore{root: dir}, nil
}

func (s *ChunkStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *ChunkStore) chunkPath(sessionID string, index int32) string {
	return filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("chunk_%06d", index))
}

// StoreChunk stages one chunk. Writing the same index twice is accepted:
// the write is a plain overwrite of the same path, so a retried chunk with
// identical bytes cannot corrupt the assembled file.
func (s *ChunkStore) StoreChunk(ctx context.Context, sessionID string, index int32, data []byte) error {
	path := s.chunkPath(sessionID, index)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// HasChunk reports whether the chunk is already staged.
func (s *ChunkStore) HasChunk(ctx context.Context, sessionID string, index int32) bool {
	_, err := os.Stat(s.chunkPath(sessionID, index))
	return err == nil
}

// ChunkCount returns the number of distinct staged chunks.
func (s *ChunkStore) ChunkCount(ctx context.Context, sessionID string) (int32, error) {
	entries, err := os.ReadDir(s.sessionDir(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read session dir: %w", err)
	}
	return int32(len(entries)), nil
}

// Assemble concatenates all chunks in index order. A missing index fails
// with ErrIncompleteUpload.
func (s *ChunkStore) Assemble(ctx context.Context, sessionID string, totalChunks int32) ([]byte, error) {
	var buf bytes.Buffer

	for index := int32(0); index < totalChunks; index++ {
		data, err := os.ReadFile(s.chunkPath(sessionID, index))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("chunk %d: %w", index, common.ErrIncompleteUpload)
			}
			return nil, fmt.Errorf("read chunk %d: %w", index, err)
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// Discard removes every staged chunk of the session. Idempotent.
func (s *ChunkStore) Discard(ctx context.Context, sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("discard chunks: %w", err)
	}
	return nil
}

// SweepOrphans removes session directories older than maxAge whose session
// row is already gone. A dangling chunk dir is harmless until this catches
// it. Returns the number of directories removed.
func (s *ChunkStore) SweepOrphans(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read chunks root: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.RemoveAll(filepath.Join(s.root, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
