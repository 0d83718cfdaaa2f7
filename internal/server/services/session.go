package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// TokenPair is the result of a login or a refresh: plaintext access and
// refresh token strings together with their expiry instants.
type TokenPair struct {
	AccessToken      string
	AccessExpiredAt  time.Time
	RefreshToken     string
	RefreshExpiredAt time.Time
}

// SessionService manages login sessions and their access/refresh tokens.
type SessionService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
	cfg    *config.Config
}

func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger, cfg *config.Config) *SessionService {
	return &SessionService{db: db, repos: repos, logger: logger, cfg: cfg}
}

func (s *SessionService) retryPolicy() dbx.RetryPolicy {
	return dbx.RetryPolicy{
		Retries:        s.cfg.TransactionRetries,
		IntervalFirst:  s.cfg.TransactionRetryIntervalFirst,
		IntervalFactor: s.cfg.TransactionRetryIntervalFactor,
	}
}

// issueTokenPair creates and stores one access and one refresh token for the
// session and returns the plaintext pair.
func (s *SessionService) issueTokenPair(ctx context.Context, tx dbx.DBTX, sessionID uuid.UUID, now time.Time) (*TokenPair, error) {
	accessString, accessToken, err := makeToken(s.cfg.AccessTokenLifetime, now)
	if err != nil {
		return nil, err
	}
	refreshString, refreshToken, err := makeToken(s.cfg.RefreshTokenLifetime, now)
	if err != nil {
		return nil, err
	}

	sessions := s.repos.Sessions(tx)
	if err := sessions.InsertAccessToken(ctx, &models.SessionToken{Token: accessToken, SessionID: sessionID}); err != nil {
		return nil, err
	}
	if err := sessions.InsertRefreshToken(ctx, &models.SessionToken{Token: refreshToken, SessionID: sessionID}); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessString,
		AccessExpiredAt:  accessToken.ExpiredAt,
		RefreshToken:     refreshString,
		RefreshExpiredAt: refreshToken.ExpiredAt,
	}, nil
}

// Login verifies the credentials and opens a new session with a fresh token
// pair. Unknown email and wrong password both map to
// common.ErrorInvalidCredentials so the response does not reveal which one
// failed.
func (s *SessionService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = models.NormalizeEmail(email)
	now := time.Now().UTC()

	userID, passwordHash, err := s.repos.Users(s.db).GetIDAndPasswordByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInvalidCredentials
		}
		return nil, err
	}
	if !cryptox.VerifyPassword(password, passwordHash) {
		return nil, common.ErrorInvalidCredentials
	}

	session := &models.Session{SessionID: uuid.New(), UserID: userID, StartedAt: now}

	var pair *TokenPair
	err = dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Sessions(tx).Create(ctx, session); err != nil {
			return err
		}
		var txErr error
		pair, txErr = s.issueTokenPair(ctx, tx, session.SessionID, now)
		return txErr
	})
	if err != nil {
		if errors.Is(err, common.ErrorTransaction) {
			s.logger.Error(ctx, "transaction retry budget exhausted", "op", "login")
		}
		return nil, err
	}

	return pair, nil
}

// Logout finishes the session owning the access token and revokes all of the
// session's tokens, access and refresh alike.
func (s *SessionService) Logout(ctx context.Context, accessTokenString string) error {
	tokenHash := cryptox.HashTokenString(accessTokenString)
	now := time.Now().UTC()

	err := dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		sessions := s.repos.Sessions(tx)

		sessionID, err := sessions.GetIDByAccessTokenHash(ctx, tokenHash, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorTokenNotFound
			}
			return err
		}
		if err := sessions.DeleteAccessTokens(ctx, sessionID); err != nil {
			return err
		}
		if err := sessions.DeleteRefreshTokens(ctx, sessionID); err != nil {
			return err
		}
		return sessions.Finish(ctx, sessionID, now)
	})
	if err != nil {
		if errors.Is(err, common.ErrorTransaction) {
			s.logger.Error(ctx, "transaction retry budget exhausted", "op", "logout")
		}
		return err
	}
	return nil
}

// Refresh consumes a valid refresh token and issues a new token pair on the
// same session. The consumed refresh token is deleted, so it is single-use;
// access tokens issued earlier are left in place to expire on their own.
func (s *SessionService) Refresh(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	tokenHash := cryptox.HashTokenString(refreshTokenString)
	now := time.Now().UTC()

	var pair *TokenPair
	err := dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		sessionID, err := s.repos.Sessions(tx).DeleteValidRefreshToken(ctx, tokenHash, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorTokenNotFound
			}
			return err
		}
		pair, err = s.issueTokenPair(ctx, tx, sessionID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorTransaction) {
			s.logger.Error(ctx, "transaction retry budget exhausted", "op", "refresh")
		}
		return nil, err
	}

	return pair, nil
}

// GetUserByAccessToken resolves an unexpired access token to its user.
func (s *SessionService) GetUserByAccessToken(ctx context.Context, accessTokenString string) (*models.User, error) {
	tokenHash := cryptox.HashTokenString(accessTokenString)
	now := time.Now().UTC()

	user, err := s.repos.Users(s.db).GetByAccessTokenHash(ctx, tokenHash, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUserNotExists
		}
		return nil, err
	}
	return user, nil
}
