// Package users provides a PostgreSQL-backed repository for verified user
// accounts.
package users

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

const userColumns = "user_id, name, email, created_at, verified_at, role, marketing_agree"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.UserID, &user.Name, &user.Email, &user.CreatedAt, &user.VerifiedAt, &user.Role, &user.MarketingAgree)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// CountByEmail returns the number of verified users holding the email.
// The unique index keeps this at 0 or 1; the count form matches the
// check-then-insert queries the service runs under serializable isolation.
func (r *PostgresRepository) CountByEmail(ctx context.Context, email string) (int, error) {
	query := `
		SELECT count(*)
		FROM users
		WHERE email = $1
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Insert creates a verified user row from newcomer data.
func (r *PostgresRepository) Insert(ctx context.Context, user *models.User, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, name, email, password, created_at, verified_at, role, marketing_agree)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, query,
		user.UserID, user.Name, user.Email, passwordHash, user.CreatedAt, user.VerifiedAt, user.Role, user.MarketingAgree)
	return scanUser(row)
}

// GetByID returns the user with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE user_id = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

// GetByEmail returns the user holding the email or common.ErrorNotFound.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetIDAndPasswordByEmail returns the id and stored password hash for the
// login flow.
func (r *PostgresRepository) GetIDAndPasswordByEmail(ctx context.Context, email string) (uuid.UUID, string, error) {
	query := `
		SELECT user_id, password
		FROM users
		WHERE email = $1
	`
	var (
		userID uuid.UUID
		hash   string
	)
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&userID, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, "", common.ErrorNotFound
		}
		return uuid.Nil, "", fmt.Errorf("db error: %w", err)
	}
	return userID, hash, nil
}

// GetPasswordHash returns the stored password hash for the user.
func (r *PostgresRepository) GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error) {
	query := `
		SELECT password
		FROM users
		WHERE user_id = $1
	`
	var hash string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return hash, nil
}

// UpdateInfo sets the editable profile fields and returns the updated row.
func (r *PostgresRepository) UpdateInfo(ctx context.Context, userID uuid.UUID, name string, marketingAgree bool) (*models.User, error) {
	query := `
		UPDATE users
		SET name = $1, marketing_agree = $2
		WHERE user_id = $3
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, name, marketingAgree, userID))
}

// UpdateEmail sets the email and returns the updated row.
func (r *PostgresRepository) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (*models.User, error) {
	query := `
		UPDATE users
		SET email = $1
		WHERE user_id = $2
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRowContext(ctx, query, email, userID))
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password = $1
		WHERE user_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, passwordHash, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByAccessTokenHash resolves a non-expired access token digest to its
// owning user, or common.ErrorNotFound.
func (r *PostgresRepository) GetByAccessTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	query := `
		SELECT u.user_id, u.name, u.email, u.created_at, u.verified_at, u.role, u.marketing_agree
		FROM users u
			JOIN sessions s ON u.user_id = s.user_id
			JOIN access_tokens t ON s.session_id = t.session_id
		WHERE t.token = $1 AND t.expired_at > $2
	`
	return scanUser(r.db.QueryRowContext(ctx, query, tokenHash, now))
}
