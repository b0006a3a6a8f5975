package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/logging"
	sc "github.com/hibana-share/hibana/internal/server/config"
	"github.com/hibana-share/hibana/internal/server/models"
	"github.com/hibana-share/hibana/internal/server/repositories/files"
	"github.com/hibana-share/hibana/internal/server/repositories/repomanager"
	"github.com/hibana-share/hibana/internal/server/repositories/sessions"
	"github.com/hibana-share/hibana/internal/server/storage"
)

func testLogger() logging.Logger {
	return logging.NewNopLogger()
}

// fakeRepoManager lets tests swap individual repositories, e.g. to inject
// failures, while keeping the rest in-memory.
type fakeRepoManager struct {
	files    files.Repository
	sessions sessions.Repository
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		files:    files.NewInMemoryRepository(),
		sessions: sessions.NewInMemoryRepository(),
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context) error { return nil }
func (m *fakeRepoManager) Conn() *sql.DB                           { return nil }
func (m *fakeRepoManager) Files() files.Repository                 { return m.files }
func (m *fakeRepoManager) Sessions() sessions.Repository           { return m.sessions }
func (m *fakeRepoManager) Close() error                            { return nil }

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

// failingFilesRepo fails Create while delegating everything else.
type failingFilesRepo struct {
	files.Repository
	createErr error
}

func (r *failingFilesRepo) Create(ctx context.Context, record *models.FileRecord) error {
	return r.createErr
}

// stickySessionsRepo refuses to delete sessions so tests can observe the
// state a finalize leaves behind.
type stickySessionsRepo struct {
	sessions.Repository
}

func (r *stickySessionsRepo) Delete(ctx context.Context, sessionID string) error {
	return errors.New("delete refused")
}

// memBlobStore is a map-backed BlobStore with failure injection.
type memBlobStore struct {
	mu             sync.Mutex
	blobs          map[string][]byte
	putErr         error
	deleteFailures int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Put(ctx context.Context, fileID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	clone := make([]byte, len(data))
	copy(clone, data)
	s.blobs[fileID] = clone
	return nil
}

func (s *memBlobStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := make([]byte, len(data))
	copy(clone, data)
	return clone, nil
}

func (s *memBlobStore) Delete(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteFailures > 0 {
		s.deleteFailures--
		return errors.New("blob backend unavailable")
	}
	delete(s.blobs, fileID)
	return nil
}

func (s *memBlobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

var _ storage.BlobStore = (*memBlobStore)(nil)

func testConfig() *sc.Config {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	cfg.MaxUploadSize = 1024 * 1024
	return cfg
}

type testEnv struct {
	repos   *fakeRepoManager
	blobs   *memBlobStore
	chunks  *storage.ChunkStore
	config  *sc.Config
	upload  *UploadService
	access  *AccessService
	cleanup *CleanupService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	chunks, err := storage.NewChunkStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		repos:  newFakeRepoManager(),
		blobs:  newMemBlobStore(),
		chunks: chunks,
		config: testConfig(),
	}
	log := testLogger()
	env.upload = NewUploadService(env.repos, env.blobs, env.chunks, env.config, log)
	env.access = NewAccessService(env.repos, env.blobs, log)
	env.cleanup = NewCleanupService(env.repos, env.blobs, env.chunks, env.config, log)
	return env
}

func durationPtr(d time.Duration) *time.Duration { return &d }
func int32Ptr(v int32) *int32                    { return &v }
