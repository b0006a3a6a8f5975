package services

import (
	"context"
	"time"

	"github.com/hibana-share/hibana/internal/logging"
	"github.com/hibana-share/hibana/internal/server/models"
	"github.com/hibana-share/hibana/internal/server/repositories/repomanager"
	"github.com/hibana-share/hibana/internal/server/storage"
)

// AccessService grants downloads and serves file metadata. It never sees
// keys or plaintext: grants carry the nonce and sizes, the blob it hands
// out is ciphertext, and decryption happens on the client.
type AccessService struct {
	repos repomanager.RepositoryManager
	blobs storage.BlobStore
	log   logging.Logger
}

func NewAccessService(repos repomanager.RepositoryManager, blobs storage.BlobStore, log logging.Logger) *AccessService {
	return &AccessService{
		repos: repos,
		blobs: blobs,
		log:   log.With("component", "access"),
	}
}

// Grant is the response to a successful download request. One download unit
// has already been consumed by the time a Grant is returned.
type Grant struct {
	Nonce            []byte
	ContentType      string
	OriginalFilename string
	SizeBytes        int64
	EncryptedSize    int64
}

// FileInfo is the non-consuming metadata view.
type FileInfo struct {
	FileID             string
	SizeBytes          int64
	EncryptedSize      int64
	ContentType        string
	OriginalFilename   string
	CreatedAt          time.Time
	ExpiresAt          *time.Time
	MaxDownloads       *int32
	DownloadsRemaining *int32
	Status             models.FileStatus
}

// CheckAndConsume validates the file and spends one download unit in a
// single atomic step. Errors: common.ErrNotFound, common.ErrExpired,
// common.ErrDownloadLimitExceeded.
func (s *AccessService) CheckAndConsume(ctx context.Context, fileID string) (*Grant, error) {
	record, err := s.repos.Files().ConsumeDownload(ctx, fileID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "download granted", "file_id", fileID)

	return &Grant{
		Nonce:            record.Nonce,
		ContentType:      record.ContentType,
		OriginalFilename: record.OriginalFilename,
		SizeBytes:        record.SizeBytes,
		EncryptedSize:    record.EncryptedSize,
	}, nil
}

// FetchBlob returns the ciphertext for a granted download.
func (s *AccessService) FetchBlob(ctx context.Context, fileID string) ([]byte, error) {
	return s.blobs.Get(ctx, fileID)
}

// Info returns metadata without consuming a download unit. A record whose
// validity window has passed is lazily flipped to expired so the reported
// status matches what a download attempt would see.
func (s *AccessService) Info(ctx context.Context, fileID string) (*FileInfo, error) {
	record, err := s.repos.Files().Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if record.Status == models.FileStatusActive && record.IsExpired(time.Now().UTC()) {
		if err := s.repos.Files().MarkExpired(ctx, fileID); err != nil {
			s.log.Warn(ctx, "lazy expiry marking failed", "file_id", fileID, "error", err)
		}
		record.Status = models.FileStatusExpired
	}

	return &FileInfo{
		FileID:             record.FileID,
		SizeBytes:          record.SizeBytes,
		EncryptedSize:      record.EncryptedSize,
		ContentType:        record.ContentType,
		OriginalFilename:   record.OriginalFilename,
		CreatedAt:          record.CreatedAt,
		ExpiresAt:          record.ExpiresAt,
		MaxDownloads:       record.MaxDownloads,
		DownloadsRemaining: record.DownloadsRemaining,
		Status:             record.Status,
	}, nil
}
