// Package passwordtokens provides a PostgreSQL-backed repository for
// password-reset tokens.
package passwordtokens

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

// Insert stores the digest of a freshly issued password-reset token.
func (r *PostgresRepository) Insert(ctx context.Context, token *models.PasswordToken) error {
	query := `
		INSERT INTO password_tokens (token, user_id, created_at, expired_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query,
		token.Hash, token.UserID, token.CreatedAt, token.ExpiredAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// CountActiveByUser counts non-expired reset tokens issued to the user.
func (r *PostgresRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM password_tokens
		WHERE user_id = $1 AND expired_at > $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// DeleteValid atomically consumes a non-expired token, returning its owner.
// A second presentation of the same token finds no row and gets
// common.ErrorNotFound.
func (r *PostgresRepository) DeleteValid(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	query := `
		DELETE FROM password_tokens
		WHERE token = $1 AND expired_at > $2
		RETURNING user_id
	`
	var userID uuid.UUID
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, common.ErrorNotFound
		}
		return uuid.Nil, fmt.Errorf("db error: %w", err)
	}
	return userID, nil
}
