package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository manages sessions and the access/refresh tokens they own.
type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Finish(ctx context.Context, sessionID uuid.UUID, finishedAt time.Time) error
	GetIDByAccessTokenHash(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	InsertAccessToken(ctx context.Context, token *models.SessionToken) error
	InsertRefreshToken(ctx context.Context, token *models.SessionToken) error
	DeleteAccessTokens(ctx context.Context, sessionID uuid.UUID) error
	DeleteRefreshTokens(ctx context.Context, sessionID uuid.UUID) error
	DeleteValidRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
}
