package files

import (
	"context"
	"sync"
	"time"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/server/models"
)

// InMemoryRepository keeps records in a map guarded by one mutex. Every
// operation holds the lock for its full read-check-write cycle, which
// gives ConsumeDownload the same atomicity the guarded UPDATE gives the
// postgres variant. Used by tests and the dev storage profile.
type InMemoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.FileRecord
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*models.FileRecord)}
}

func (r *InMemoryRepository) Create(ctx context.Context, record *models.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *record
	r.records[record.FileID] = &clone
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, fileID string) (*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[fileID]
	if !ok || record.Status == models.FileStatusDeleted {
		return nil, common.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *InMemoryRepository) ConsumeDownload(ctx context.Context, fileID string, now time.Time) (*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[fileID]
	if !ok || record.Status == models.FileStatusDeleted {
		return nil, common.ErrNotFound
	}

	if record.Status == models.FileStatusExpired {
		return nil, common.ErrExpired
	}
	if record.IsExpired(now) {
		if record.Status == models.FileStatusActive {
			record.Status = models.FileStatusExpired
		}
		return nil, common.ErrExpired
	}
	if record.Status == models.FileStatusExhausted || record.IsExhausted() {
		return nil, common.ErrDownloadLimitExceeded
	}
	if record.Status != models.FileStatusActive {
		return nil, common.ErrNotFound
	}

	if record.MaxDownloads != nil {
		remaining := *record.DownloadsRemaining - 1
		record.DownloadsRemaining = &remaining
		if remaining == 0 {
			record.Status = models.FileStatusExhausted
		}
	}

	clone := *record
	if record.DownloadsRemaining != nil {
		remaining := *record.DownloadsRemaining
		clone.DownloadsRemaining = &remaining
	}
	return &clone, nil
}

func (r *InMemoryRepository) MarkExpired(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.records[fileID]; ok && record.Status == models.FileStatusActive {
		record.Status = models.FileStatusExpired
	}
	return nil
}

func (r *InMemoryRepository) ClaimForCleanup(ctx context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, record := range r.records {
		if len(ids) >= limit {
			break
		}
		// deleted rows are re-claimable so an interrupted removal is retried
		reapable := record.Status == models.FileStatusExpired ||
			record.Status == models.FileStatusExhausted ||
			record.Status == models.FileStatusDeleted ||
			(record.Status == models.FileStatusActive && record.IsExpired(now))
		if reapable {
			record.Status = models.FileStatusDeleted
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, fileID)
	return nil
}
