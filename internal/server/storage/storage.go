// Package storage holds the blob backends for encrypted file content and
// the staging store for upload chunks. Blobs are opaque ciphertext; nothing
// in this package knows about keys or plaintext.
package storage

import "context"

// BlobStore stores ciphertext bytes under a file ID.
//
// Contract:
//   - Put is all-or-nothing: a failed Put leaves nothing visible to Get.
//     IDs are generated fresh at finalize and used exactly once, so there
//     is never more than one writer per ID.
//   - Get returns common.ErrNotFound for unknown IDs. Concurrent Gets on
//     the same ID are safe.
//   - Delete is idempotent: deleting an absent ID succeeds.
type BlobStore interface {
	Put(ctx context.Context, fileID string, data []byte) error
	Get(ctx context.Context, fileID string) ([]byte, error)
	Delete(ctx context.Context, fileID string) error
}

// Stats describes a backend's object population. Only the filesystem
// backend implements StatsReporter.
type Stats struct {
	TotalFiles int64 `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}

type StatsReporter interface {
	Stats(ctx context.Context) (*Stats, error)
}
