package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/dbx"
	"github.com/hibana-share/hibana/internal/server/models"
)

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) error {
	query := `
		INSERT INTO files (file_id, size_bytes, encrypted_size, content_type, original_filename,
			nonce, created_at, expires_at, max_downloads, downloads_remaining, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	res, err := r.db.ExecContext(ctx, query,
		record.FileID, record.SizeBytes, record.EncryptedSize, nullString(record.ContentType),
		record.OriginalFilename, record.Nonce, record.CreatedAt, record.ExpiresAt,
		record.MaxDownloads, record.DownloadsRemaining, record.Status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

const selectColumns = `file_id, size_bytes, encrypted_size, content_type, original_filename,
		nonce, created_at, expires_at, max_downloads, downloads_remaining, status`

func (r *PostgresRepository) Get(ctx context.Context, fileID string) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE file_id=$1 AND status <> 'deleted'`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return record, nil
}

// ConsumeDownload runs the whole validity predicate and counter decrement
// as one guarded UPDATE. Unbounded records pass through untouched; bounded
// ones decrement and flip to exhausted when the last unit is spent.
func (r *PostgresRepository) ConsumeDownload(ctx context.Context, fileID string, now time.Time) (*models.FileRecord, error) {
	query := `
		UPDATE files SET
			downloads_remaining = CASE WHEN max_downloads IS NULL
				THEN downloads_remaining ELSE downloads_remaining - 1 END,
			status = CASE WHEN max_downloads IS NOT NULL AND downloads_remaining = 1
				THEN 'exhausted' ELSE status END
		WHERE file_id = $1
			AND status = 'active'
			AND (expires_at IS NULL OR expires_at > $2)
			AND (max_downloads IS NULL OR downloads_remaining > 0)
		RETURNING ` + selectColumns

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, fileID, now))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume download: %w", err)
	}

	return nil, r.classifyRefusal(ctx, fileID, now)
}

// classifyRefusal explains why the conditional update matched no row.
func (r *PostgresRepository) classifyRefusal(ctx context.Context, fileID string, now time.Time) error {
	record, err := r.Get(ctx, fileID)
	if err != nil {
		return err
	}

	switch {
	case record.Status == models.FileStatusExpired:
		return common.ErrExpired
	case record.IsExpired(now):
		// lazy expiry marking
		if err := r.MarkExpired(ctx, fileID); err != nil {
			return err
		}
		return common.ErrExpired
	case record.Status == models.FileStatusExhausted || record.IsExhausted():
		return common.ErrDownloadLimitExceeded
	default:
		return common.ErrNotFound
	}
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, fileID string) error {
	query := `UPDATE files SET status='expired' WHERE file_id=$1 AND status='active'`
	if _, err := r.db.ExecContext(ctx, query, fileID); err != nil {
		return fmt.Errorf("failed to mark expired: %w", err)
	}
	return nil
}

// ClaimForCleanup also re-selects rows already in 'deleted': a claim whose
// blob delete failed, or a crash between claim and delete, leaves such a
// row behind, and re-claiming it is idempotent.
func (r *PostgresRepository) ClaimForCleanup(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		UPDATE files SET status='deleted'
		WHERE id IN (
			SELECT id FROM files
			WHERE status IN ('expired', 'exhausted', 'deleted')
				OR (status='active' AND expires_at IS NOT NULL AND expires_at < $1)
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING file_id
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim cleanup candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE file_id=$1`, fileID); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.FileRecord, error) {
	var record models.FileRecord
	var contentType sql.NullString
	if err := row.Scan(&record.FileID, &record.SizeBytes, &record.EncryptedSize, &contentType,
		&record.OriginalFilename, &record.Nonce, &record.CreatedAt, &record.ExpiresAt,
		&record.MaxDownloads, &record.DownloadsRemaining, &record.Status); err != nil {
		return nil, err
	}
	record.ContentType = contentType.String
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
