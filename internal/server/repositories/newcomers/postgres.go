// Package newcomers provides a PostgreSQL-backed repository for pending
// registrations and their single-use registration tokens.
package newcomers

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

// Insert stores a pending registration and returns its public fields.
func (r *PostgresRepository) Insert(ctx context.Context, newcomer *models.NewcomerFull) (*models.Newcomer, error) {
	query := `
		INSERT INTO newcomers (user_id, name, email, password, created_at, marketing_agree)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id, name, email, created_at, marketing_agree
	`
	created := &models.Newcomer{}
	err := r.db.QueryRowContext(ctx, query,
		newcomer.UserID, newcomer.Name, newcomer.Email, newcomer.PasswordHash, newcomer.CreatedAt, newcomer.MarketingAgree).
		Scan(&created.UserID, &created.Name, &created.Email, &created.CreatedAt, &created.MarketingAgree)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

// CountActiveByEmail counts pending newcomers sharing the email whose
// registration token has not expired. Newcomers whose tokens lapsed do not
// count against the registration bound.
func (r *PostgresRepository) CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM newcomers n
			JOIN registration_tokens rt ON n.user_id = rt.user_id
		WHERE n.email = $1 AND rt.expired_at > $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, email, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// GetByRegistrationTokenHash returns the newcomer owning a non-expired
// registration token, or common.ErrorNotFound. Expired and absent tokens are
// indistinguishable to the caller.
func (r *PostgresRepository) GetByRegistrationTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.NewcomerFull, error) {
	query := `
		SELECT n.user_id, n.name, n.email, n.password, n.created_at, n.marketing_agree
		FROM newcomers n
			JOIN registration_tokens rt ON n.user_id = rt.user_id
		WHERE rt.token = $1 AND rt.expired_at > $2
	`
	newcomer := &models.NewcomerFull{}
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).
		Scan(&newcomer.UserID, &newcomer.Name, &newcomer.Email, &newcomer.PasswordHash, &newcomer.CreatedAt, &newcomer.MarketingAgree)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return newcomer, nil
}

// InsertRegistrationToken stores the digest of a freshly issued token.
func (r *PostgresRepository) InsertRegistrationToken(ctx context.Context, token *models.RegistrationToken) error {
	query := `
		INSERT INTO registration_tokens (token, user_id, created_at, expired_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, token.Hash, token.UserID, token.CreatedAt, token.ExpiredAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteRegistrationToken consumes a token by digest. Deleting an absent
// token is not an error; the lookup preceding it decides the outcome.
func (r *PostgresRepository) DeleteRegistrationToken(ctx context.Context, tokenHash string) error {
	query := `
		DELETE FROM registration_tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
