// Package common defines shared constants and sentinel errors used across
// hibana components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Validity failures surfaced on download attempts. Terminal: once a
	// file is expired or exhausted it never becomes accessible again.
	ErrExpired               = errors.New("file expired")
	ErrDownloadLimitExceeded = errors.New("download limit exceeded")

	// Upload-session errors.
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrSessionExpired   = errors.New("upload session expired")
	ErrSessionFinalized = errors.New("upload session already finalized")
	ErrIncompleteUpload = errors.New("incomplete upload")
	ErrSizeMismatch     = errors.New("assembled size mismatch")
	ErrSizeExceeded     = errors.New("size limit exceeded")
	ErrChunkOutOfRange  = errors.New("chunk index out of range")

	// ErrValidation marks client requests refused before any state change.
	ErrValidation = errors.New("invalid request")

	// Crypto errors.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidKeyFormat     = errors.New("invalid key material")

	// Infrastructure errors.
	ErrStorageFull = errors.New("storage full")
	ErrInternal    = errors.New("internal error")
)
