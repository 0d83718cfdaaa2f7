package passwordtokens

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository manages single-use password-reset tokens.
type Repository interface {
	Insert(ctx context.Context, token *models.PasswordToken) error
	CountActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	DeleteValid(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
}
