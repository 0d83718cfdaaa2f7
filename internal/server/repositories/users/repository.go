package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository exposes point lookups and atomic update primitives over the
// users table. Business rules (bounds, uniqueness windows) live in the
// service layer; the repository only runs single statements.
type Repository interface {
	CountByEmail(ctx context.Context, email string) (int, error)
	Insert(ctx context.Context, user *models.User, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetIDAndPasswordByEmail(ctx context.Context, email string) (uuid.UUID, string, error)
	GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error)
	UpdateInfo(ctx context.Context, userID uuid.UUID, name string, marketingAgree bool) (*models.User, error)
	UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	GetByAccessTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
}
