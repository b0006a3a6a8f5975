package files

import (
	"context"
	"time"

	"github.com/hibana-share/hibana/internal/server/models"
)

// Repository is the durable store for file metadata. The download counter
// must only ever change through ConsumeDownload, which implementations are
// required to execute as a single conditional update so concurrent
// downloads racing the last unit resolve to exactly one winner, even
// across multiple server instances.
type Repository interface {
	Create(ctx context.Context, record *models.FileRecord) error

	// Get returns the record or common.ErrNotFound. Records claimed by
	// cleanup (status deleted) are reported as not found.
	Get(ctx context.Context, fileID string) (*models.FileRecord, error)

	// ConsumeDownload atomically validates the record and consumes one
	// download unit. When the decrement spends the last unit the status
	// flips to exhausted in the same step. Failures are classified as
	// common.ErrNotFound, common.ErrExpired or
	// common.ErrDownloadLimitExceeded; a time-expired record is lazily
	// marked expired as a side effect.
	ConsumeDownload(ctx context.Context, fileID string, now time.Time) (*models.FileRecord, error)

	// MarkExpired flips an active record to expired. Losing the race to a
	// concurrent update is not an error.
	MarkExpired(ctx context.Context, fileID string) error

	// ClaimForCleanup transitions up to limit reapable records (expired,
	// exhausted, active past their expiry, or left in deleted by an
	// interrupted removal) to status deleted and returns their file IDs.
	// The conditional claim is what prevents cleanup from racing a grant
	// issued moments earlier; re-claiming a deleted row is idempotent.
	ClaimForCleanup(ctx context.Context, now time.Time, limit int) ([]string, error)

	// Delete removes the metadata row. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, fileID string) error
}
