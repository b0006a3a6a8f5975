package sessions

import (
	"context"
	"time"

	"github.com/hibana-share/hibana/internal/server/models"
)

// Repository is the durable store for chunked upload sessions.
type Repository interface {
	Create(ctx context.Context, session *models.UploadSession) error

	// Get returns the session or common.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*models.UploadSession, error)

	// SetReceivedChunks records the number of distinct staged chunks.
	// Only sessions still in the receiving state accept updates.
	SetReceivedChunks(ctx context.Context, sessionID string, count int32) error

	// MarkFinalizing conditionally moves receiving→finalizing. Exactly one
	// caller wins; losers get common.ErrSessionFinalized. This is what
	// makes finalize single-entry under concurrent completion requests.
	MarkFinalizing(ctx context.Context, sessionID string) error

	// SetState moves the session from one state to another. The update is
	// conditional on the current state; losing the race to a concurrent
	// transition is not an error.
	SetState(ctx context.Context, sessionID string, from, to models.SessionState) error

	// Delete removes the session. Absent IDs are a no-op.
	Delete(ctx context.Context, sessionID string) error

	// SelectAbandoned lists sessions whose timeout passed before they
	// were committed, for the cleanup sweep.
	SelectAbandoned(ctx context.Context, olderThan time.Time) ([]*models.UploadSession, error)
}
