package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/logging"
	sc "github.com/hibana-share/hibana/internal/server/config"
	"github.com/hibana-share/hibana/internal/server/repositories/repomanager"
	"github.com/hibana-share/hibana/internal/server/storage"
)

// cleanupBatchSize bounds how many records one claim pulls, so a single
// pass cannot hold a large lock set on the files table.
const cleanupBatchSize = 100

// CleanupService reaps dead state: claimed file records and their blobs,
// abandoned upload sessions with their staged chunks, and orphaned chunk
// directories. Runs are serialized with an in-progress flag; a tick that
// lands during a slow pass is skipped, not queued.
type CleanupService struct {
	repos   repomanager.RepositoryManager
	blobs   storage.BlobStore
	chunks  *storage.ChunkStore
	config  *sc.Config
	log     logging.Logger
	running atomic.Bool
}

func NewCleanupService(repos repomanager.RepositoryManager, blobs storage.BlobStore,
	chunks *storage.ChunkStore, config *sc.Config, log logging.Logger) *CleanupService {
	return &CleanupService{
		repos:  repos,
		blobs:  blobs,
		chunks: chunks,
		config: config,
		log:    log.With("component", "cleanup"),
	}
}

// CleanupStats summarizes one sweep.
type CleanupStats struct {
	FilesRemoved     int  `json:"files_removed"`
	SessionsRemoved  int  `json:"sessions_removed"`
	ChunkDirsRemoved int  `json:"chunk_dirs_removed"`
	Skipped          bool `json:"skipped"`
}

// Run blocks, sweeping every CleanupInterval until ctx is cancelled.
func (s *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	s.log.Info(ctx, "cleanup loop started", "interval", s.config.CleanupInterval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "cleanup loop stopped")
			return
		case <-ticker.C:
			stats, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Error(ctx, "cleanup pass failed", "error", err)
				continue
			}
			if !stats.Skipped {
				s.log.Info(ctx, "cleanup pass done",
					"files_removed", stats.FilesRemoved,
					"sessions_removed", stats.SessionsRemoved,
					"chunk_dirs_removed", stats.ChunkDirsRemoved)
			}
		}
	}
}

// RunOnce performs a single sweep. If another sweep is in progress it
// returns immediately with Skipped set.
func (s *CleanupService) RunOnce(ctx context.Context) (*CleanupStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return &CleanupStats{Skipped: true}, nil
	}
	defer s.running.Store(false)

	stats := &CleanupStats{}
	now := time.Now().UTC()

	if err := s.reapFiles(ctx, now, stats); err != nil {
		return stats, err
	}
	if err := s.reapSessions(ctx, now, stats); err != nil {
		return stats, err
	}

	// chunk dirs whose session row vanished without a Discard; anything
	// older than the session timeout cannot belong to a live upload
	removed, err := s.chunks.SweepOrphans(ctx, s.config.SessionTimeout)
	if err != nil {
		return stats, err
	}
	stats.ChunkDirsRemoved = removed

	return stats, nil
}

// reapFiles claims reapable records in batches and removes blob first, row
// second. A record whose blob delete fails keeps its claimed row; the claim
// re-selects such rows, so the next pass retries the removal. Within one
// pass each record is attempted at most once to keep a persistently failing
// backend from looping forever.
func (s *CleanupService) reapFiles(ctx context.Context, now time.Time, stats *CleanupStats) error {
	filesRepo := s.repos.Files()
	attempted := make(map[string]bool)

	for {
		ids, err := filesRepo.ClaimForCleanup(ctx, now, cleanupBatchSize)
		if err != nil {
			return err
		}

		progress := false
		for _, fileID := range ids {
			if attempted[fileID] {
				continue
			}
			attempted[fileID] = true
			progress = true

			if err := s.blobs.Delete(ctx, fileID); err != nil && !errors.Is(err, common.ErrNotFound) {
				s.log.Error(ctx, "blob delete failed", "file_id", fileID, "error", err)
				continue
			}
			if err := filesRepo.Delete(ctx, fileID); err != nil {
				s.log.Error(ctx, "record delete failed", "file_id", fileID, "error", err)
				continue
			}
			stats.FilesRemoved++
		}

		if len(ids) < cleanupBatchSize || !progress {
			return nil
		}
	}
}

func (s *CleanupService) reapSessions(ctx context.Context, now time.Time, stats *CleanupStats) error {
	abandoned, err := s.repos.Sessions().SelectAbandoned(ctx, now)
	if err != nil {
		return err
	}

	for _, session := range abandoned {
		if err := s.chunks.Discard(ctx, session.SessionID); err != nil {
			s.log.Error(ctx, "chunk discard failed", "session_id", session.SessionID, "error", err)
			continue
		}
		if err := s.repos.Sessions().Delete(ctx, session.SessionID); err != nil {
			s.log.Error(ctx, "session delete failed", "session_id", session.SessionID, "error", err)
			continue
		}
		stats.SessionsRemoved++
	}
	return nil
}
