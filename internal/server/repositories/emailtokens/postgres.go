// Package emailtokens provides a PostgreSQL-backed repository for pending
// email-change tokens. The email column holds the proposed new address; it
// is only checked against users at verification time.
package emailtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

// Insert stores the digest of a freshly issued email-change token.
func (r *PostgresRepository) Insert(ctx context.Context, token *models.ChangeEmailToken) error {
	query := `
		INSERT INTO email_tokens (token, user_id, email, created_at, expired_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		token.Hash, token.UserID, token.Email, token.CreatedAt, token.ExpiredAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// CountActiveByEmail counts non-expired change requests targeting the email.
func (r *PostgresRepository) CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM email_tokens
		WHERE email = $1 AND expired_at > $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, email, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// GetValid returns a non-expired token by digest, or common.ErrorNotFound.
func (r *PostgresRepository) GetValid(ctx context.Context, tokenHash string, now time.Time) (*models.ChangeEmailToken, error) {
	query := `
		SELECT token, user_id, email, created_at, expired_at
		FROM email_tokens
		WHERE token = $1 AND expired_at > $2
	`
	token := &models.ChangeEmailToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).
		Scan(&token.Hash, &token.UserID, &token.Email, &token.CreatedAt, &token.ExpiredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

// Delete consumes a token by digest.
func (r *PostgresRepository) Delete(ctx context.Context, tokenHash string) error {
	query := `
		DELETE FROM email_tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
