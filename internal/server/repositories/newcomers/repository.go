package newcomers

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository manages pending registrations together with their registration
// tokens; the two tables form one aggregate (a newcomer is only "active"
// while a still-valid token points at it).
type Repository interface {
	Insert(ctx context.Context, newcomer *models.NewcomerFull) (*models.Newcomer, error)
	CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error)
	GetByRegistrationTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.NewcomerFull, error)
	InsertRegistrationToken(ctx context.Context, token *models.RegistrationToken) error
	DeleteRegistrationToken(ctx context.Context, tokenHash string) error
}
