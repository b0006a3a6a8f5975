package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hibana-share/hibana/internal/common"
)

// FilesystemStore keeps blobs under root with a two-level shard layout,
// root/ab/cd/<file_id>.enc, so a directory never accumulates more than a
// few hundred entries.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) blobPath(fileID string) string {
	flat := strings.ReplaceAll(fileID, "-", "")
	return filepath.Join(s.root, flat[0:2], flat[2:4], fileID+".enc")
}

// Put writes to a temp file in the target directory and renames it into
// place, so a crashed or failed write never becomes visible to Get.
func (s *FilesystemStore) Put(ctx context.Context, fileID string, data []byte) error {
	path := s.blobPath(fileID)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return mapWriteError(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mapWriteError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return mapWriteError(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

func (s *FilesystemStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(fileID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob and prunes shard directories it leaves empty.
// An absent blob is success: cleanup retries must be safe.
func (s *FilesystemStore) Delete(ctx context.Context, fileID string) error {
	path := s.blobPath(fileID)

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}

	s.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

func (s *FilesystemStore) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Stats walks the shard tree counting .enc blobs.
func (s *FilesystemStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".enc") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.TotalFiles++
		stats.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage stats: %w", err)
	}
	return stats, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return common.ErrStorageFull
	}
	return fmt.Errorf("write blob: %w", err)
}
