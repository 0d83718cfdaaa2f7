// Package services contains the server-side business logic: the
// transactional identity state machine (registration, verification, email
// and password changes) and the session service (login, logout, token
// rotation).
//
// Every mutating multi-step operation runs inside a serializable-isolation
// transaction wrapped by a bounded retry loop (dbx.WithSerializableTx).
// Count-then-insert bound checks are only correct under that isolation
// level; do not move them out of the transaction closures.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// IdentityService implements the account lifecycle: newcomer registration,
// verification into a user, profile updates, email changes, and password
// resets.
type IdentityService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
	cfg    *config.Config
}

// NewIdentityService constructs an IdentityService over the pooled
// connection, a repository manager, and server config.
func NewIdentityService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger, cfg *config.Config) *IdentityService {
	return &IdentityService{db: db, repos: repos, logger: logger, cfg: cfg}
}

func (s *IdentityService) retryPolicy() dbx.RetryPolicy {
	return dbx.RetryPolicy{
		Retries:        s.cfg.TransactionRetries,
		IntervalFirst:  s.cfg.TransactionRetryIntervalFirst,
		IntervalFactor: s.cfg.TransactionRetryIntervalFactor,
	}
}

// makeToken issues a fresh opaque token: the plaintext string for the caller
// and the stored form (digest + validity window).
func makeToken(lifetime time.Duration, now time.Time) (string, models.Token, error) {
	tokenString, err := cryptox.GenerateTokenString()
	if err != nil {
		return "", models.Token{}, err
	}
	token := models.Token{
		Hash:      cryptox.HashTokenString(tokenString),
		CreatedAt: now,
		ExpiredAt: now.Add(lifetime),
	}
	return tokenString, token, nil
}

// IsPasswordAcceptable reports whether the password reaches the configured
// minimum zxcvbn strength.
func (s *IdentityService) IsPasswordAcceptable(password string) bool {
	return cryptox.IsPasswordAcceptable(password, s.cfg.MinPasswordStrength)
}

// checkEmailAvailable enforces the three registration-side invariants on an
// email: not held by a verified user, pending newcomers below the bound, and
// pending email-change requests below the bound. Must run inside a
// serializable transaction.
func (s *IdentityService) checkEmailAvailable(ctx context.Context, tx dbx.DBTX, email string, now time.Time) error {
	nUsers, err := s.repos.Users(tx).CountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if nUsers > 0 {
		return common.ErrorUserAlreadyExists
	}

	nNewcomers, err := s.repos.Newcomers(tx).CountActiveByEmail(ctx, email, now)
	if err != nil {
		return err
	}
	if nNewcomers >= s.cfg.MaxActiveNewcomersWithSameEmail {
		return common.ErrorTooManyNewcomersWithSameEmail
	}

	nChanges, err := s.repos.EmailTokens(tx).CountActiveByEmail(ctx, email, now)
	if err != nil {
		return err
	}
	if nChanges >= s.cfg.MaxActiveChangeSameEmailRequests {
		return common.ErrorTooManyChangeSameEmailRequests
	}

	return nil
}

// RegisterNewcomer creates a pending registration and its registration
// token. It returns the created newcomer (without the password hash) and
// the plaintext token string for the verification mail; the plaintext is
// never persisted.
func (s *IdentityService) RegisterNewcomer(ctx context.Context, name, email, password string, marketingAgree bool) (*models.Newcomer, string, error) {
	name = models.NormalizeName(name)
	email = models.NormalizeEmail(email)
	now := time.Now().UTC()

	passwordHash, err := cryptox.HashPassword(password, s.cfg.PasswordSaltSize, s.cfg.PasswordHashRounds)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	tokenString, token, err := makeToken(s.cfg.RegistrationTokenLifetime, now)
	if err != nil {
		return nil, "", err
	}

	newcomer := &models.NewcomerFull{
		Newcomer: models.Newcomer{
			UserID:         uuid.New(),
			Name:           name,
			Email:          email,
			CreatedAt:      now,
			MarketingAgree: marketingAgree,
		},
		PasswordHash: passwordHash,
	}
	registrationToken := &models.RegistrationToken{Token: token, UserID: newcomer.UserID}

	var created *models.Newcomer
	err = dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkEmailAvailable(ctx, tx, email, now); err != nil {
			return err
		}
		var txErr error
		created, txErr = s.repos.Newcomers(tx).Insert(ctx, newcomer)
		if txErr != nil {
			return txErr
		}
		return s.repos.Newcomers(tx).InsertRegistrationToken(ctx, registrationToken)
	})
	if err != nil {
		return nil, "", s.reportTxError(ctx, "register newcomer", err)
	}

	return created, tokenString, nil
}

// VerifyNewcomer consumes a registration token and promotes its newcomer to
// a verified user. The newcomer row is intentionally left behind as a
// historical record; only the token is deleted, so the newcomer stops
// counting against the registration bound.
func (s *IdentityService) VerifyNewcomer(ctx context.Context, tokenString string) (*models.User, error) {
	tokenHash := cryptox.HashTokenString(tokenString)
	now := time.Now().UTC()

	var user *models.User
	err := dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		newcomer, err := s.repos.Newcomers(tx).GetByRegistrationTokenHash(ctx, tokenHash, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorTokenNotFound
			}
			return err
		}

		// Closes the race window between two newcomers sharing an email:
		// the second verification must fail even though its token is valid.
		nUsers, err := s.repos.Users(tx).CountByEmail(ctx, newcomer.Email)
		if err != nil {
			return err
		}
		if nUsers > 0 {
			return common.ErrorUserAlreadyExists
		}

		if err := s.repos.Newcomers(tx).DeleteRegistrationToken(ctx, tokenHash); err != nil {
			return err
		}

		user, err = s.repos.Users(tx).Insert(ctx, &models.User{
			UserID:         newcomer.UserID,
			Name:           newcomer.Name,
			Email:          newcomer.Email,
			CreatedAt:      newcomer.CreatedAt,
			VerifiedAt:     now,
			Role:           models.RoleUser,
			MarketingAgree: newcomer.MarketingAgree,
		}, newcomer.PasswordHash)
		return err
	})
	if err != nil {
		return nil, s.reportTxError(ctx, "verify newcomer", err)
	}

	return user, nil
}

// UpdateUserInfo changes the user's display name and marketing consent.
func (s *IdentityService) UpdateUserInfo(ctx context.Context, userID uuid.UUID, name string, marketingAgree bool) (*models.User, error) {
	user, err := s.repos.Users(s.db).UpdateInfo(ctx, userID, models.NormalizeName(name), marketingAgree)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUserNotExists
		}
		return nil, err
	}
	return user, nil
}

// ChangePasswordIfOldValid atomically replaces the user's password hash if
// the caller-supplied predicate accepts the currently stored hash. The
// read-then-conditionally-write pair stays inside one serializable
// transaction so a concurrent change cannot slip between check and update.
func (s *IdentityService) ChangePasswordIfOldValid(ctx context.Context, userID uuid.UUID, newHash string, isOldValid func(storedHash string) bool) error {
	err := dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		storedHash, err := s.repos.Users(tx).GetPasswordHash(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUserNotExists
			}
			return err
		}
		if !isOldValid(storedHash) {
			return common.ErrorPasswordInvalid
		}
		return s.repos.Users(tx).UpdatePassword(ctx, userID, newHash)
	})
	return s.reportTxError(ctx, "change password", err)
}

// ChangePassword verifies the old password and stores a hash of the new one.
func (s *IdentityService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	newHash, err := cryptox.HashPassword(newPassword, s.cfg.PasswordSaltSize, s.cfg.PasswordHashRounds)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	return s.ChangePasswordIfOldValid(ctx, userID, newHash, func(storedHash string) bool {
		return cryptox.VerifyPassword(oldPassword, storedHash)
	})
}

// RequestEmailChange issues a change-email token for the proposed address,
// applying the same availability checks as registration. Returns the
// plaintext token for the confirmation mail.
func (s *IdentityService) RequestEmailChange(ctx context.Context, userID uuid.UUID, newEmail string) (string, error) {
	newEmail = models.NormalizeEmail(newEmail)
	now := time.Now().UTC()

	tokenString, token, err := makeToken(s.cfg.ChangeEmailTokenLifetime, now)
	if err != nil {
		return "", err
	}

	changeToken := &models.ChangeEmailToken{Token: token, UserID: userID, Email: newEmail}

	err = dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkEmailAvailable(ctx, tx, newEmail, now); err != nil {
			return err
		}
		return s.repos.EmailTokens(tx).Insert(ctx, changeToken)
	})
	if err != nil {
		return "", s.reportTxError(ctx, "request email change", err)
	}

	return tokenString, nil
}

// VerifyEmailChange consumes a change-email token and moves the owning user
// to the proposed address, re-checking that no verified user claimed it in
// the meantime.
func (s *IdentityService) VerifyEmailChange(ctx context.Context, tokenString string) (*models.User, error) {
	tokenHash := cryptox.HashTokenString(tokenString)
	now := time.Now().UTC()

	var user *models.User
	err := dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repos.EmailTokens(tx).GetValid(ctx, tokenHash, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorTokenNotFound
			}
			return err
		}

		nUsers, err := s.repos.Users(tx).CountByEmail(ctx, token.Email)
		if err != nil {
			return err
		}
		if nUsers > 0 {
			return common.ErrorUserAlreadyExists
		}

		if err := s.repos.EmailTokens(tx).Delete(ctx, tokenHash); err != nil {
			return err
		}

		user, err = s.repos.Users(tx).UpdateEmail(ctx, token.UserID, token.Email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUserNotExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.reportTxError(ctx, "verify email change", err)
	}

	return user, nil
}

// RequestPasswordReset issues a password-reset token for the account holding
// the email. Lookup misses and exhausted bounds surface as
// common.ErrorUserNotExists / common.ErrorTooManyPasswordTokens; the
// boundary is expected to swallow both into a generic success so the flow
// never confirms whether an email is registered.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email string) (string, *models.User, error) {
	email = models.NormalizeEmail(email)
	now := time.Now().UTC()

	tokenString, token, err := makeToken(s.cfg.PasswordTokenLifetime, now)
	if err != nil {
		return "", nil, err
	}

	var user *models.User
	err = dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		var txErr error
		user, txErr = s.repos.Users(tx).GetByEmail(ctx, email)
		if txErr != nil {
			if errors.Is(txErr, common.ErrorNotFound) {
				return common.ErrorUserNotExists
			}
			return txErr
		}

		nTokens, txErr := s.repos.PasswordTokens(tx).CountActiveByUser(ctx, user.UserID, now)
		if txErr != nil {
			return txErr
		}
		if nTokens >= s.cfg.MaxActiveUserPasswordTokens {
			return common.ErrorTooManyPasswordTokens
		}
		return s.repos.PasswordTokens(tx).Insert(ctx, &models.PasswordToken{Token: token, UserID: user.UserID})
	})
	if err != nil {
		return "", nil, s.reportTxError(ctx, "request password reset", err)
	}

	return tokenString, user, nil
}

// ResetPassword consumes a password-reset token and stores a hash of the new
// password. The delete-returning consumption makes the token single-use.
func (s *IdentityService) ResetPassword(ctx context.Context, tokenString, newPassword string) error {
	tokenHash := cryptox.HashTokenString(tokenString)
	now := time.Now().UTC()

	newHash, err := cryptox.HashPassword(newPassword, s.cfg.PasswordSaltSize, s.cfg.PasswordHashRounds)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	err = dbx.WithSerializableTx(ctx, s.db, s.retryPolicy(), func(ctx context.Context, tx dbx.DBTX) error {
		userID, err := s.repos.PasswordTokens(tx).DeleteValid(ctx, tokenHash, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorTokenNotFound
			}
			return err
		}
		return s.repos.Users(tx).UpdatePassword(ctx, userID, newHash)
	})
	return s.reportTxError(ctx, "reset password", err)
}

// GetUserByID returns the user with the given id. Admin-gated at the
// boundary.
func (s *IdentityService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUserNotExists
		}
		return nil, err
	}
	return user, nil
}

// reportTxError logs retry exhaustion and unexpected store faults; expected
// client-triggerable business errors pass through silently.
func (s *IdentityService) reportTxError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrorTransaction) {
		s.logger.Error(ctx, "transaction retry budget exhausted", "op", op)
	}
	return err
}
