package emailtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository manages pending email-change tokens.
type Repository interface {
	Insert(ctx context.Context, token *models.ChangeEmailToken) error
	CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error)
	GetValid(ctx context.Context, tokenHash string, now time.Time) (*models.ChangeEmailToken, error)
	Delete(ctx context.Context, tokenHash string) error
}
