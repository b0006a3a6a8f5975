package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/server/models"
)

// InMemoryRepository keeps sessions in a mutex-guarded map, mirroring the
// conditional-update contract of the postgres variant.
type InMemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]*models.UploadSession)}
}

func (r *InMemoryRepository) Create(ctx context.Context, session *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *session
	r.sessions[session.SessionID] = &clone
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (r *InMemoryRepository) SetReceivedChunks(ctx context.Context, sessionID string, count int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[sessionID]; ok && session.State == models.SessionStateReceiving {
		session.ReceivedChunks = count
	}
	return nil
}

func (r *InMemoryRepository) MarkFinalizing(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return common.ErrSessionNotFound
	}
	if session.State != models.SessionStateReceiving {
		return common.ErrSessionFinalized
	}
	session.State = models.SessionStateFinalizing
	return nil
}

func (r *InMemoryRepository) SetState(ctx context.Context, sessionID string, from, to models.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[sessionID]; ok && session.State == from {
		session.State = to
	}
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}

func (r *InMemoryRepository) SelectAbandoned(ctx context.Context, olderThan time.Time) ([]*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.UploadSession
	for _, session := range r.sessions {
		if session.ExpiresAt.Before(olderThan) && session.State != models.SessionStateCommitted {
			clone := *session
			result = append(result, &clone)
		}
	}
	return result, nil
}
