// Package services implements the application logic that sits between the
// HTTP surface and the repositories/storage backends: uploads (single-shot
// and chunked), download grants and the background cleanup sweep.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/cryptox"
	"github.com/hibana-share/hibana/internal/logging"
	sc "github.com/hibana-share/hibana/internal/server/config"
	"github.com/hibana-share/hibana/internal/server/models"
	"github.com/hibana-share/hibana/internal/server/repositories/repomanager"
	"github.com/hibana-share/hibana/internal/server/storage"
)

// UploadService turns plaintext uploads into encrypted blobs plus metadata
// records. The encryption key exists only inside a single call: it is
// generated, sealed into the share fragment and wiped before returning.
type UploadService struct {
	repos  repomanager.RepositoryManager
	blobs  storage.BlobStore
	chunks *storage.ChunkStore
	config *sc.Config
	log    logging.Logger
}

func NewUploadService(repos repomanager.RepositoryManager, blobs storage.BlobStore,
	chunks *storage.ChunkStore, config *sc.Config, log logging.Logger) *UploadService {
	return &UploadService{
		repos:  repos,
		blobs:  blobs,
		chunks: chunks,
		config: config,
		log:    log.With("component", "upload"),
	}
}

// UploadRequest carries one single-shot upload.
type UploadRequest struct {
	Data         []byte
	Filename     string
	ContentType  string
	ExpiresIn    *time.Duration // nil = never expires
	MaxDownloads *int32         // nil = unlimited
}

// UploadResult is returned by Upload and Finalize. Fragment is the URL-safe
// key material the caller appends to the share URL after '#'; the server
// keeps no copy of it.
type UploadResult struct {
	FileID       string
	ShareURL     string
	Fragment     string
	ExpiresAt    *time.Time
	MaxDownloads *int32
}

// BeginRequest opens a chunked upload session.
type BeginRequest struct {
	Filename     string
	ContentType  string
	TotalSize    int64
	ChunkSize    int32 // 0 = server default
	ExpiresIn    *time.Duration
	MaxDownloads *int32
}

// SessionInfo describes a freshly opened session.
type SessionInfo struct {
	SessionID   string
	ChunkSize   int32
	TotalChunks int32
	ExpiresAt   time.Time
}

// ChunkProgress reports staging progress after a chunk is accepted.
type ChunkProgress struct {
	ReceivedChunks int32
	TotalChunks    int32
}

// SessionStatus is the progress report for the status endpoint.
type SessionStatus struct {
	SessionID      string
	State          models.SessionState
	ReceivedChunks int32
	TotalChunks    int32
	Progress       float32
	ExpiresAt      time.Time
}

// Upload encrypts data and stores it under a fresh file ID.
func (s *UploadService) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrValidation)
	}
	if int64(len(req.Data)) > s.config.MaxUploadSize {
		return nil, common.ErrSizeExceeded
	}
	if err := s.validateLimits(req.ExpiresIn, req.MaxDownloads); err != nil {
		return nil, err
	}
	return s.encryptAndStore(ctx, req.Data, req.Filename, req.ContentType, req.ExpiresIn, req.MaxDownloads)
}

// encryptAndStore is the shared tail of Upload and Finalize: key+nonce
// generation, sealing, blob Put, metadata Create and fragment assembly.
// A metadata failure after the blob is written triggers a compensating
// blob delete so no orphan ciphertext survives the error path.
func (s *UploadService) encryptAndStore(ctx context.Context, data []byte,
	filename, contentType string, expiresIn *time.Duration, maxDownloads *int32) (*UploadResult, error) {

	key, err := cryptox.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer cryptox.Zero(key)

	nonce, err := cryptox.GenerateNonce()
	if err != nil {
		return nil, err
	}

	ciphertext, err := cryptox.Encrypt(data, key, nonce)
	if err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	if err := s.blobs.Put(ctx, fileID, ciphertext); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if expiresIn != nil {
		t := now.Add(*expiresIn)
		expiresAt = &t
	}
	var remaining *int32
	if maxDownloads != nil {
		v := *maxDownloads
		remaining = &v
	}

	record := &models.FileRecord{
		FileID:             fileID,
		SizeBytes:          int64(len(data)),
		EncryptedSize:      int64(len(ciphertext)),
		ContentType:        contentType,
		OriginalFilename:   filename,
		Nonce:              nonce,
		CreatedAt:          now,
		ExpiresAt:          expiresAt,
		MaxDownloads:       maxDownloads,
		DownloadsRemaining: remaining,
		Status:             models.FileStatusActive,
	}

	if err := s.repos.Files().Create(ctx, record); err != nil {
		if derr := s.blobs.Delete(ctx, fileID); derr != nil {
			s.log.Error(ctx, "compensating blob delete failed", "file_id", fileID, "error", derr)
		}
		return nil, fmt.Errorf("create file record: %w", err)
	}

	fragment := cryptox.EncodeKeyMaterial(key, nonce)

	s.log.Info(ctx, "file stored", "file_id", fileID,
		"size", record.SizeBytes, "encrypted_size", record.EncryptedSize)

	return &UploadResult{
		FileID:       fileID,
		ShareURL:     fmt.Sprintf("%s/api/files/%s#%s", s.config.BaseURL, fileID, fragment),
		Fragment:     fragment,
		ExpiresAt:    expiresAt,
		MaxDownloads: maxDownloads,
	}, nil
}

// Begin opens a chunked upload session.
func (s *UploadService) Begin(ctx context.Context, req *BeginRequest) (*SessionInfo, error) {
	if req.TotalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive", common.ErrValidation)
	}
	if req.TotalSize > s.config.MaxUploadSize {
		return nil, common.ErrSizeExceeded
	}
	if err := s.validateLimits(req.ExpiresIn, req.MaxDownloads); err != nil {
		return nil, err
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.config.DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > s.config.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size out of bounds", common.ErrValidation)
	}

	totalChunks := int32((req.TotalSize + int64(chunkSize) - 1) / int64(chunkSize))

	now := time.Now().UTC()
	session := &models.UploadSession{
		SessionID:        uuid.NewString(),
		OriginalFilename: req.Filename,
		ContentType:      req.ContentType,
		TotalSize:        req.TotalSize,
		ChunkSize:        chunkSize,
		TotalChunks:      totalChunks,
		ExpiresIn:        req.ExpiresIn,
		MaxDownloads:     req.MaxDownloads,
		State:            models.SessionStateReceiving,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.config.SessionTimeout),
	}

	if err := s.repos.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info(ctx, "upload session opened", "session_id", session.SessionID,
		"total_size", session.TotalSize, "total_chunks", session.TotalChunks)

	return &SessionInfo{
		SessionID:   session.SessionID,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// AppendChunk stages one chunk. Re-sending an already staged index is
// accepted and does not change the received count.
func (s *UploadService) AppendChunk(ctx context.Context, sessionID string, index int32, data []byte) (*ChunkProgress, error) {
	session, err := s.repos.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != models.SessionStateReceiving {
		return nil, common.ErrSessionFinalized
	}
	if session.IsExpired(time.Now().UTC()) {
		return nil, common.ErrSessionExpired
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, common.ErrChunkOutOfRange
	}
	if int64(len(data)) != s.expectedChunkSize(session, index) {
		return nil, common.ErrSizeMismatch
	}

	if err := s.chunks.StoreChunk(ctx, sessionID, index, data); err != nil {
		return nil, err
	}

	// the staged-chunk count on disk is the source of truth, which keeps
	// duplicate sends from inflating the counter
	count, err := s.chunks.ChunkCount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Sessions().SetReceivedChunks(ctx, sessionID, count); err != nil {
		return nil, err
	}

	return &ChunkProgress{ReceivedChunks: count, TotalChunks: session.TotalChunks}, nil
}

// expectedChunkSize is ChunkSize for every chunk except the last, which
// carries the remainder.
func (s *UploadService) expectedChunkSize(session *models.UploadSession, index int32) int64 {
	if index < session.TotalChunks-1 {
		return int64(session.ChunkSize)
	}
	last := session.TotalSize - int64(session.ChunkSize)*int64(session.TotalChunks-1)
	return last
}

// Finalize assembles the staged chunks and runs them through the same
// encrypt-and-store pipeline as Upload. The receiving→finalizing claim makes
// concurrent completion requests resolve to a single winner.
func (s *UploadService) Finalize(ctx context.Context, sessionID string) (*UploadResult, error) {
	session, err := s.repos.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(time.Now().UTC()) {
		return nil, common.ErrSessionExpired
	}
	if !session.IsComplete() {
		return nil, common.ErrIncompleteUpload
	}

	if err := s.repos.Sessions().MarkFinalizing(ctx, sessionID); err != nil {
		return nil, err
	}

	data, err := s.chunks.Assemble(ctx, sessionID, session.TotalChunks)
	if err != nil {
		s.reopenSession(ctx, sessionID)
		return nil, err
	}
	if int64(len(data)) != session.TotalSize {
		// staged bytes disagree with the declared size even though every
		// chunk passed its size check; the staging is corrupt, no retry
		// of complete can salvage it
		if err := s.repos.Sessions().SetState(ctx, sessionID,
			models.SessionStateFinalizing, models.SessionStateAborted); err != nil {
			s.log.Warn(ctx, "session abort failed", "session_id", sessionID, "error", err)
		}
		return nil, fmt.Errorf("assembled %d bytes, declared %d: %w",
			len(data), session.TotalSize, common.ErrSizeMismatch)
	}

	result, err := s.encryptAndStore(ctx, data, session.OriginalFilename,
		session.ContentType, session.ExpiresIn, session.MaxDownloads)
	if err != nil {
		s.reopenSession(ctx, sessionID)
		return nil, err
	}

	if err := s.repos.Sessions().SetState(ctx, sessionID,
		models.SessionStateFinalizing, models.SessionStateCommitted); err != nil {
		s.log.Warn(ctx, "session commit failed", "session_id", sessionID, "error", err)
	}

	// staging is disposable once the record exists; failures here only
	// delay the reaper
	if err := s.chunks.Discard(ctx, sessionID); err != nil {
		s.log.Warn(ctx, "chunk discard failed", "session_id", sessionID, "error", err)
	}
	if err := s.repos.Sessions().Delete(ctx, sessionID); err != nil {
		s.log.Warn(ctx, "session delete failed", "session_id", sessionID, "error", err)
	}

	return result, nil
}

// reopenSession rolls a failed finalize back to receiving. The staged
// chunks are untouched, so the client may retry complete instead of
// restarting the whole upload.
func (s *UploadService) reopenSession(ctx context.Context, sessionID string) {
	if err := s.repos.Sessions().SetState(ctx, sessionID,
		models.SessionStateFinalizing, models.SessionStateReceiving); err != nil {
		s.log.Warn(ctx, "session reopen failed", "session_id", sessionID, "error", err)
	}
}

// Status reports chunked upload progress.
func (s *UploadService) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	session, err := s.repos.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		SessionID:      session.SessionID,
		State:          session.State,
		ReceivedChunks: session.ReceivedChunks,
		TotalChunks:    session.TotalChunks,
		Progress:       session.Progress(),
		ExpiresAt:      session.ExpiresAt,
	}, nil
}

func (s *UploadService) validateLimits(expiresIn *time.Duration, maxDownloads *int32) error {
	if expiresIn != nil {
		if *expiresIn <= 0 {
			return fmt.Errorf("%w: expiry must be positive", common.ErrValidation)
		}
		if *expiresIn > s.config.MaxExpiry {
			return fmt.Errorf("%w: expiry exceeds maximum", common.ErrValidation)
		}
	}
	if maxDownloads != nil {
		if *maxDownloads <= 0 {
			return fmt.Errorf("%w: download limit must be positive", common.ErrValidation)
		}
		if *maxDownloads > s.config.MaxDownloadLimit {
			return fmt.Errorf("%w: download limit exceeds maximum", common.ErrValidation)
		}
	}
	return nil
}
