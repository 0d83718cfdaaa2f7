// Package sessions provides a PostgreSQL-backed repository for login
// sessions and their rotating access/refresh token pairs.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new active session.
func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (session_id, user_id, started_at, finished_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query,
		session.SessionID, session.UserID, session.StartedAt, session.FinishedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Finish closes a session. Sessions are never deleted.
func (r *PostgresRepository) Finish(ctx context.Context, sessionID uuid.UUID, finishedAt time.Time) error {
	query := `
		UPDATE sessions
		SET finished_at = $1
		WHERE session_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, finishedAt, sessionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetIDByAccessTokenHash resolves a non-expired access token digest to its
// session id, or common.ErrorNotFound.
func (r *PostgresRepository) GetIDByAccessTokenHash(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	query := `
		SELECT s.session_id
		FROM sessions s
			JOIN access_tokens t ON s.session_id = t.session_id
		WHERE t.token = $1 AND t.expired_at > $2
	`
	var sessionID uuid.UUID
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, common.ErrorNotFound
		}
		return uuid.Nil, fmt.Errorf("db error: %w", err)
	}
	return sessionID, nil
}

// InsertAccessToken stores the digest of a freshly issued access token.
func (r *PostgresRepository) InsertAccessToken(ctx context.Context, token *models.SessionToken) error {
	return r.insertToken(ctx, "access_tokens", token)
}

// InsertRefreshToken stores the digest of a freshly issued refresh token.
// The unique constraint on session_id enforces at most one live refresh
// token per session.
func (r *PostgresRepository) InsertRefreshToken(ctx context.Context, token *models.SessionToken) error {
	return r.insertToken(ctx, "refresh_tokens", token)
}

func (r *PostgresRepository) insertToken(ctx context.Context, table string, token *models.SessionToken) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (token, session_id, created_at, expired_at)
		VALUES ($1, $2, $3, $4)
	`, table)
	if _, err := r.db.ExecContext(ctx, query, token.Hash, token.SessionID, token.CreatedAt, token.ExpiredAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteAccessTokens removes every access token of a session (logout).
func (r *PostgresRepository) DeleteAccessTokens(ctx context.Context, sessionID uuid.UUID) error {
	return r.deleteTokens(ctx, "access_tokens", sessionID)
}

// DeleteRefreshTokens removes every refresh token of a session (logout).
func (r *PostgresRepository) DeleteRefreshTokens(ctx context.Context, sessionID uuid.UUID) error {
	return r.deleteTokens(ctx, "refresh_tokens", sessionID)
}

func (r *PostgresRepository) deleteTokens(ctx context.Context, table string, sessionID uuid.UUID) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE session_id = $1
	`, table)
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteValidRefreshToken atomically consumes a non-expired refresh token,
// returning the session it belonged to. The delete-returning form makes the
// token single-use: a second presentation finds no row and gets
// common.ErrorNotFound.
func (r *PostgresRepository) DeleteValidRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = $1 AND expired_at > $2
		RETURNING session_id
	`
	var sessionID uuid.UUID
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, common.ErrorNotFound
		}
		return uuid.Nil, fmt.Errorf("db error: %w", err)
	}
	return sessionID, nil
}
