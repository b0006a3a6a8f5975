package models

import "time"

// SessionState is the lifecycle state of a chunked upload session.
type SessionState string

const (
	SessionStateReceiving  SessionState = "receiving"
	SessionStateFinalizing SessionState = "finalizing"
	SessionStateCommitted  SessionState = "committed"
	SessionStateAborted    SessionState = "aborted"
)

// UploadSession tracks one chunked upload until it is finalized into a
// FileRecord or reaped. Abandoned sessions are not cancelled actively;
// cleanup removes them once ExpiresAt has passed.
type UploadSession struct {
	SessionID        string
	OriginalFilename string
	ContentType      string
	TotalSize        int64
	ChunkSize        int32
	TotalChunks      int32
	ReceivedChunks   int32
	ExpiresIn        *time.Duration // validity horizon for the final file
	MaxDownloads     *int32
	State            SessionState
	CreatedAt        time.Time
	ExpiresAt        time.Time // session timeout, not file expiry
}

// IsExpired reports whether the session timed out at now.
func (s *UploadSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsComplete reports whether every chunk has been staged.
func (s *UploadSession) IsComplete() bool {
	return s.ReceivedChunks >= s.TotalChunks
}

// Progress returns upload progress in [0,1].
func (s *UploadSession) Progress() float32 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float32(s.ReceivedChunks) / float32(s.TotalChunks)
}
