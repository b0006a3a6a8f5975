package files

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func recordColumns() []string {
	return []string{"file_id", "size_bytes", "encrypted_size", "content_type", "original_filename",
		"nonce", "created_at", "expires_at", "max_downloads", "downloads_remaining", "status"}
}

func TestPostgres_Create(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`INSERT INTO files`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	max := int32(3)
	err := repo.Create(context.Background(), &models.FileRecord{
		FileID:             uuid.NewString(),
		SizeBytes:          10,
		EncryptedSize:      26,
		OriginalFilename:   "a.bin",
		Nonce:              make([]byte, 12),
		CreatedAt:          time.Now(),
		MaxDownloads:       &max,
		DownloadsRemaining: &max,
		Status:             models.FileStatusActive,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ConsumeDownload_Granted(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)
	fileID := uuid.NewString()
	now := time.Now()

	rows := sqlmock.NewRows(recordColumns()).
		AddRow(fileID, int64(10), int64(26), "text/plain", "a.txt",
			[]byte("0123456789ab"), now, nil, int32(2), int32(1), "active")

	// the decrement, status flip and validity predicate live in one UPDATE
	mock.ExpectQuery(`UPDATE files SET\s+downloads_remaining = CASE`).
		WithArgs(fileID, sqlmock.AnyArg()).
		WillReturnRows(rows)

	record, err := repo.ConsumeDownload(context.Background(), fileID, now)
	require.NoError(t, err)
	assert.Equal(t, int32(1), *record.DownloadsRemaining)
	assert.Equal(t, "a.txt", record.OriginalFilename)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ConsumeDownload_Exhausted(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)
	fileID := uuid.NewString()
	now := time.Now()

	mock.ExpectQuery(`UPDATE files SET`).
		WithArgs(fileID, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(`SELECT .+ FROM files WHERE file_id=\$1`).
		WithArgs(fileID).
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow(fileID, int64(10), int64(26), nil, "a.txt",
				[]byte("0123456789ab"), now, nil, int32(1), int32(0), "exhausted"))

	_, err := repo.ConsumeDownload(context.Background(), fileID, now)
	assert.ErrorIs(t, err, common.ErrDownloadLimitExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ConsumeDownload_LazyExpiry(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)
	fileID := uuid.NewString()
	now := time.Now()
	past := now.Add(-time.Hour)

	mock.ExpectQuery(`UPDATE files SET`).
		WithArgs(fileID, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(`SELECT .+ FROM files WHERE file_id=\$1`).
		WithArgs(fileID).
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow(fileID, int64(10), int64(26), nil, "a.txt",
				[]byte("0123456789ab"), past, past, nil, nil, "active"))

	mock.ExpectExec(`UPDATE files SET status='expired'`).
		WithArgs(fileID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.ConsumeDownload(context.Background(), fileID, now)
	assert.ErrorIs(t, err, common.ErrExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ConsumeDownload_NotFound(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)
	fileID := uuid.NewString()

	mock.ExpectQuery(`UPDATE files SET`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM files`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ConsumeDownload(context.Background(), fileID, time.Now())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgres_ClaimForCleanup(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)
	id1, id2 := uuid.NewString(), uuid.NewString()

	// 'deleted' stays in the claim predicate so interrupted removals retry
	mock.ExpectQuery(`UPDATE files SET status='deleted'[\s\S]+status IN \('expired', 'exhausted', 'deleted'\)`).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows([]string{"file_id"}).AddRow(id1).AddRow(id2))

	ids, err := repo.ClaimForCleanup(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{id1, id2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Delete(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`DELETE FROM files WHERE file_id=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// absent row is not an error for the cleanup caller
	assert.NoError(t, repo.Delete(context.Background(), uuid.NewString()))
}
