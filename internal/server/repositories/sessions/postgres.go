package sessions

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

// PostgresRepository implements session storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.UploadSession) error {
	query := `
		INSERT INTO upload_sessions (session_id, original_filename, content_type, total_size,
			chunk_size, total_chunks, received_chunks, expires_in_seconds, max_downloads,
			state, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var expiresIn *int64
	if session.ExpiresIn != nil {
		v := int64(session.ExpiresIn.Seconds())
		expiresIn = &v
	}
	_, err := r.db.ExecContext(ctx, query,
		session.SessionID, session.OriginalFilename, nullString(session.ContentType),
		session.TotalSize, session.ChunkSize, session.TotalChunks, session.ReceivedChunks,
		expiresIn, session.MaxDownloads, session.State, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, original_filename, content_type, total_size, chunk_size,
		total_chunks, received_chunks, expires_in_seconds, max_downloads, state, created_at, expires_at`

func (r *PostgresRepository) Get(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE session_id=$1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) SetReceivedChunks(ctx context.Context, sessionID string, count int32) error {
	query := `UPDATE upload_sessions SET received_chunks=$2 WHERE session_id=$1 AND state='receiving'`
	if _, err := r.db.ExecContext(ctx, query, sessionID, count); err != nil {
		return fmt.Errorf("failed to update received chunks: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkFinalizing(ctx context.Context, sessionID string) error {
	query := `UPDATE upload_sessions SET state='finalizing' WHERE session_id=$1 AND state='receiving'`
	res, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark finalizing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrSessionFinalized
	}
	return nil
}

func (r *PostgresRepository) SetState(ctx context.Context, sessionID string, from, to models.SessionState) error {
	query := `UPDATE upload_sessions SET state=$3 WHERE session_id=$1 AND state=$2`
	if _, err := r.db.ExecContext(ctx, query, sessionID, from, to); err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SelectAbandoned(ctx context.Context, olderThan time.Time) ([]*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions
		WHERE expires_at < $1 AND state <> 'committed'`

	rows, err := r.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to select abandoned sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.UploadSession, error) {
	var session models.UploadSession
	var contentType sql.NullString
	var expiresIn sql.NullInt64
	if err := row.Scan(&session.SessionID, &session.OriginalFilename, &contentType,
		&session.TotalSize, &session.ChunkSize, &session.TotalChunks, &session.ReceivedChunks,
		&expiresIn, &session.MaxDownloads, &session.State, &session.CreatedAt, &session.ExpiresAt); err != nil {
		return nil, err
	}
	session.ContentType = contentType.String
	if expiresIn.Valid {
		d := time.Duration(expiresIn.Int64) * time.Second
		session.ExpiresIn = &d
	}
	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
