package httpapi

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/server/services"
	"github.com/hibana-share/hibana/internal/server/storage"
)

type uploadResponse struct {
	FileID       string     `json:"file_id"`
	DownloadURL  string     `json:"download_url"`
	Fragment     string     `json:"fragment"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxDownloads *int32     `json:"max_downloads,omitempty"`
}

func toUploadResponse(r *services.UploadResult) *uploadResponse {
	return &uploadResponse{
		FileID:       r.FileID,
		DownloadURL:  r.ShareURL,
		Fragment:     r.Fragment,
		ExpiresAt:    r.ExpiresAt,
		MaxDownloads: r.MaxDownloads,
	}
}

// handleUpload accepts a single-shot multipart upload.
//
// Form fields: file (required), filename, content_type.
// Query/form: expires_in_hours, max_downloads.
func (h *Handler) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadSize+(1<<20))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.renderError(c, common.ErrValidation)
		return
	}

	data, err := readMultipartFile(fileHeader)
	if err != nil {
		h.renderError(c, err)
		return
	}

	filename := c.PostForm("filename")
	if filename == "" {
		filename = fileHeader.Filename
	}
	contentType := c.PostForm("content_type")
	if contentType == "" {
		contentType = fileHeader.Header.Get("Content-Type")
	}

	expiresIn, err := parseExpiry(c)
	if err != nil {
		h.renderError(c, err)
		return
	}
	maxDownloads, err := parseMaxDownloads(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	result, err := h.upload.Upload(c.Request.Context(), &services.UploadRequest{
		Data:         data,
		Filename:     filename,
		ContentType:  contentType,
		ExpiresIn:    expiresIn,
		MaxDownloads: maxDownloads,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUploadResponse(result))
}

type uploadStartRequest struct {
	Filename       string `json:"filename" binding:"required"`
	ContentType    string `json:"content_type"`
	TotalSize      int64  `json:"total_size" binding:"required"`
	ChunkSize      int32  `json:"chunk_size"`
	ExpiresInHours int64  `json:"expires_in_hours"`
	MaxDownloads   int32  `json:"max_downloads"`
}

func (h *Handler) handleUploadStart(c *gin.Context) {
	var req uploadStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.renderError(c, common.ErrValidation)
		return
	}

	begin := &services.BeginRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalSize:   req.TotalSize,
		ChunkSize:   req.ChunkSize,
	}
	if req.ExpiresInHours > 0 {
		d := time.Duration(req.ExpiresInHours) * time.Hour
		begin.ExpiresIn = &d
	}
	if req.MaxDownloads > 0 {
		v := req.MaxDownloads
		begin.MaxDownloads = &v
	}

	info, err := h.upload.Begin(c.Request.Context(), begin)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":   info.SessionID,
		"chunk_size":   info.ChunkSize,
		"total_chunks": info.TotalChunks,
		"expires_at":   info.ExpiresAt,
	})
}

func (h *Handler) handleUploadChunk(c *gin.Context) {
	sessionID := c.Param("session_id")
	index, err := strconv.ParseInt(c.Param("index"), 10, 32)
	if err != nil {
		h.renderError(c, common.ErrValidation)
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		h.renderError(c, common.ErrValidation)
		return
	}
	data, err := readMultipartFile(fileHeader)
	if err != nil {
		h.renderError(c, err)
		return
	}

	progress, err := h.upload.AppendChunk(c.Request.Context(), sessionID, int32(index), data)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received_chunks": progress.ReceivedChunks,
		"total_chunks":    progress.TotalChunks,
	})
}

func (h *Handler) handleUploadComplete(c *gin.Context) {
	result, err := h.upload.Finalize(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUploadResponse(result))
}

func (h *Handler) handleUploadStatus(c *gin.Context) {
	status, err := h.upload.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":      status.SessionID,
		"state":           status.State,
		"received_chunks": status.ReceivedChunks,
		"total_chunks":    status.TotalChunks,
		"progress":        status.Progress,
		"expires_at":      status.ExpiresAt,
	})
}

// handleDownload consumes one download unit and streams the ciphertext.
// The nonce and original metadata travel in response headers; decryption is
// the client's job.
func (h *Handler) handleDownload(c *gin.Context) {
	fileID := c.Param("file_id")

	grant, err := h.access.CheckAndConsume(c.Request.Context(), fileID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	blob, err := h.access.FetchBlob(c.Request.Context(), fileID)
	if err != nil {
		// grant consumed but blob gone: storage drifted from metadata
		h.log.Error(c.Request.Context(), "blob missing for granted download", "file_id", fileID, "error", err)
		h.renderError(c, common.ErrInternal)
		return
	}

	c.Header("X-Nonce", base64.StdEncoding.EncodeToString(grant.Nonce))
	c.Header("X-Content-Type", grant.ContentType)
	c.Header("X-Filename", grant.OriginalFilename)
	c.Header("X-Original-Size", strconv.FormatInt(grant.SizeBytes, 10))
	c.Data(http.StatusOK, "application/octet-stream", blob)
}

func (h *Handler) handleInfo(c *gin.Context) {
	info, err := h.access.Info(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file_id":             info.FileID,
		"size_bytes":          info.SizeBytes,
		"encrypted_size":      info.EncryptedSize,
		"content_type":        info.ContentType,
		"original_filename":   info.OriginalFilename,
		"created_at":          info.CreatedAt,
		"expires_at":          info.ExpiresAt,
		"max_downloads":       info.MaxDownloads,
		"downloads_remaining": info.DownloadsRemaining,
		"status":              info.Status,
	})
}

func (h *Handler) handleAdminCleanup(c *gin.Context) {
	stats, err := h.cleanup.RunOnce(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) handleAdminStorage(c *gin.Context) {
	reporter, ok := h.blobs.(storage.StatsReporter)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "stats not supported by this backend"})
		return
	}
	stats, err := reporter.Stats(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderError maps service errors onto HTTP statuses. Internal failures get
// a generic body; details stay in the log.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "file expired"})
	case errors.Is(err, common.ErrDownloadLimitExceeded):
		c.JSON(http.StatusGone, gin.H{"error": "download limit exceeded"})
	case errors.Is(err, common.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "upload session expired"})
	case errors.Is(err, common.ErrSizeExceeded):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
	case errors.Is(err, common.ErrSessionFinalized):
		c.JSON(http.StatusConflict, gin.H{"error": "upload already finalized"})
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrChunkOutOfRange),
		errors.Is(err, common.ErrSizeMismatch),
		errors.Is(err, common.ErrIncompleteUpload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrStorageFull):
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": "storage full"})
	default:
		h.log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseExpiry(c *gin.Context) (*time.Duration, error) {
	raw := c.Query("expires_in_hours")
	if raw == "" {
		raw = c.PostForm("expires_in_hours")
	}
	if raw == "" {
		return nil, nil
	}
	hours, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || hours <= 0 {
		return nil, common.ErrValidation
	}
	d := time.Duration(hours) * time.Hour
	return &d, nil
}

func parseMaxDownloads(c *gin.Context) (*int32, error) {
	raw := c.Query("max_downloads")
	if raw == "" {
		raw = c.PostForm("max_downloads")
	}
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v <= 0 {
		return nil, common.ErrValidation
	}
	n := int32(v)
	return &n, nil
}
