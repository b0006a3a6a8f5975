package models

import "time"

// FileStatus is the lifecycle state of a stored file record.
type FileStatus string

const (
	// FileStatusActive — the file may still be downloaded.
	FileStatusActive FileStatus = "active"
	// FileStatusExhausted — the download limit has been consumed.
	FileStatusExhausted FileStatus = "exhausted"
	// FileStatusExpired — the validity window has passed (marked lazily).
	FileStatusExpired FileStatus = "expired"
	// FileStatusDeleted — claimed by cleanup; the blob is being removed.
	FileStatusDeleted FileStatus = "deleted"
)

// FileRecord is the durable metadata for one encrypted file. The encryption
// key is deliberately absent: only the nonce is stored, the key lives in the
// share-link fragment held by the uploader.
type FileRecord struct {
	FileID             string
	SizeBytes          int64
	EncryptedSize      int64
	ContentType        string
	OriginalFilename   string
	Nonce              []byte
	CreatedAt          time.Time
	ExpiresAt          *time.Time // nil = never time-expires
	MaxDownloads       *int32     // nil = unlimited
	DownloadsRemaining *int32     // nil iff MaxDownloads is nil
	Status             FileStatus
}

// IsExpired reports whether the validity window has passed at now.
func (f *FileRecord) IsExpired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// IsExhausted reports whether the download budget is spent.
func (f *FileRecord) IsExhausted() bool {
	return f.DownloadsRemaining != nil && *f.DownloadsRemaining <= 0
}

// IsAccessible reports whether a download could be granted at now.
func (f *FileRecord) IsAccessible(now time.Time) bool {
	return f.Status == FileStatusActive && !f.IsExpired(now) && !f.IsExhausted()
}
