package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	emailtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/emailtokens"
	newcomersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/newcomers"
	passwordtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordtokens"
	sessionsrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

// testConfig keeps the hash cost low so tests stay fast; bounds and retry
// settings mirror the production defaults.
func testConfig() *config.Config {
	return &config.Config{
		MinPasswordStrength: 3,
		PasswordHashRounds:  10,
		PasswordSaltSize:    16,

		RegistrationTokenLifetime: 7 * 24 * time.Hour,
		ChangeEmailTokenLifetime:  24 * time.Hour,
		PasswordTokenLifetime:     24 * time.Hour,
		AccessTokenLifetime:       10 * time.Minute,
		RefreshTokenLifetime:      24 * time.Hour,

		MaxActiveNewcomersWithSameEmail:  3,
		MaxActiveChangeSameEmailRequests: 2,
		MaxActiveUserPasswordTokens:      2,

		TransactionRetries:             2,
		TransactionRetryIntervalFirst:  time.Millisecond,
		TransactionRetryIntervalFactor: 2.0,
	}
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

// --- fake repositories ---

type fakeUsersRepo struct {
	countByEmail    int
	countByEmailErr error

	insertedUser *models.User
	insertedHash string
	insertErr    error

	getByIDOut *models.User
	getByIDErr error

	getByEmailOut *models.User
	getByEmailErr error

	loginID   uuid.UUID
	loginHash string
	loginErr  error

	storedHash    string
	storedHashErr error

	updateInfoName  string
	updateInfoAgree bool
	updateInfoOut   *models.User
	updateInfoErr   error

	updateEmailID  uuid.UUID
	updateEmailTo  string
	updateEmailOut *models.User
	updateEmailErr error

	updatedPasswordFor  uuid.UUID
	updatedPasswordHash string
	updatePasswordErr   error

	accessUser *models.User
	accessErr  error
}

func (f *fakeUsersRepo) CountByEmail(ctx context.Context, email string) (int, error) {
	return f.countByEmail, f.countByEmailErr
}

func (f *fakeUsersRepo) Insert(ctx context.Context, user *models.User, passwordHash string) (*models.User, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.insertedUser = user
	f.insertedHash = passwordHash
	return user, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return f.getByIDOut, f.getByIDErr
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.getByEmailOut, f.getByEmailErr
}

func (f *fakeUsersRepo) GetIDAndPasswordByEmail(ctx context.Context, email string) (uuid.UUID, string, error) {
	if f.loginErr != nil {
		return uuid.Nil, "", f.loginErr
	}
	return f.loginID, f.loginHash, nil
}

func (f *fakeUsersRepo) GetPasswordHash(ctx context.Context, userID uuid.UUID) (string, error) {
	return f.storedHash, f.storedHashErr
}

func (f *fakeUsersRepo) UpdateInfo(ctx context.Context, userID uuid.UUID, name string, marketingAgree bool) (*models.User, error) {
	if f.updateInfoErr != nil {
		return nil, f.updateInfoErr
	}
	f.updateInfoName = name
	f.updateInfoAgree = marketingAgree
	return f.updateInfoOut, nil
}

func (f *fakeUsersRepo) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) (*models.User, error) {
	if f.updateEmailErr != nil {
		return nil, f.updateEmailErr
	}
	f.updateEmailID = userID
	f.updateEmailTo = email
	return f.updateEmailOut, nil
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if f.updatePasswordErr != nil {
		return f.updatePasswordErr
	}
	f.updatedPasswordFor = userID
	f.updatedPasswordHash = passwordHash
	return nil
}

func (f *fakeUsersRepo) GetByAccessTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	return f.accessUser, f.accessErr
}

type fakeNewcomersRepo struct {
	countActive    int
	countActiveErr error

	inserted  *models.NewcomerFull
	insertErr error

	getByTokenOut *models.NewcomerFull
	getByTokenErr error

	insertedToken  *models.RegistrationToken
	insertTokenErr error

	deletedTokenHash string
	deleteTokenErr   error
}

func (f *fakeNewcomersRepo) Insert(ctx context.Context, newcomer *models.NewcomerFull) (*models.Newcomer, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = newcomer
	created := newcomer.Newcomer
	return &created, nil
}

func (f *fakeNewcomersRepo) CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error) {
	return f.countActive, f.countActiveErr
}

func (f *fakeNewcomersRepo) GetByRegistrationTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.NewcomerFull, error) {
	return f.getByTokenOut, f.getByTokenErr
}

func (f *fakeNewcomersRepo) InsertRegistrationToken(ctx context.Context, token *models.RegistrationToken) error {
	if f.insertTokenErr != nil {
		return f.insertTokenErr
	}
	f.insertedToken = token
	return nil
}

func (f *fakeNewcomersRepo) DeleteRegistrationToken(ctx context.Context, tokenHash string) error {
	if f.deleteTokenErr != nil {
		return f.deleteTokenErr
	}
	f.deletedTokenHash = tokenHash
	return nil
}

type fakeSessionsRepo struct {
	created   *models.Session
	createErr error

	finishedID uuid.UUID
	finishErr  error

	sessionID    uuid.UUID
	sessionIDErr error

	accessTokens  []*models.SessionToken
	refreshTokens []*models.SessionToken
	insertErr     error

	deletedAccessFor  []uuid.UUID
	deletedRefreshFor []uuid.UUID
	deleteErr         error

	consumedSessionID uuid.UUID
	consumeErr        error
}

func (f *fakeSessionsRepo) Create(ctx context.Context, session *models.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = session
	return nil
}

func (f *fakeSessionsRepo) Finish(ctx context.Context, sessionID uuid.UUID, finishedAt time.Time) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finishedID = sessionID
	return nil
}

func (f *fakeSessionsRepo) GetIDByAccessTokenHash(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	return f.sessionID, f.sessionIDErr
}

func (f *fakeSessionsRepo) InsertAccessToken(ctx context.Context, token *models.SessionToken) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.accessTokens = append(f.accessTokens, token)
	return nil
}

func (f *fakeSessionsRepo) InsertRefreshToken(ctx context.Context, token *models.SessionToken) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.refreshTokens = append(f.refreshTokens, token)
	return nil
}

func (f *fakeSessionsRepo) DeleteAccessTokens(ctx context.Context, sessionID uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedAccessFor = append(f.deletedAccessFor, sessionID)
	return nil
}

func (f *fakeSessionsRepo) DeleteRefreshTokens(ctx context.Context, sessionID uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedRefreshFor = append(f.deletedRefreshFor, sessionID)
	return nil
}

func (f *fakeSessionsRepo) DeleteValidRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	if f.consumeErr != nil {
		return uuid.Nil, f.consumeErr
	}
	return f.consumedSessionID, nil
}

type fakeEmailTokensRepo struct {
	countActive    int
	countActiveErr error

	inserted  *models.ChangeEmailToken
	insertErr error

	getValidOut *models.ChangeEmailToken
	getValidErr error

	deletedHash string
	deleteErr   error
}

func (f *fakeEmailTokensRepo) Insert(ctx context.Context, token *models.ChangeEmailToken) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = token
	return nil
}

func (f *fakeEmailTokensRepo) CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error) {
	return f.countActive, f.countActiveErr
}

func (f *fakeEmailTokensRepo) GetValid(ctx context.Context, tokenHash string, now time.Time) (*models.ChangeEmailToken, error) {
	return f.getValidOut, f.getValidErr
}

func (f *fakeEmailTokensRepo) Delete(ctx context.Context, tokenHash string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedHash = tokenHash
	return nil
}

type fakePasswordTokensRepo struct {
	countActive    int
	countActiveErr error

	inserted  *models.PasswordToken
	insertErr error

	consumedUserID uuid.UUID
	consumeErr     error
}

func (f *fakePasswordTokensRepo) Insert(ctx context.Context, token *models.PasswordToken) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = token
	return nil
}

func (f *fakePasswordTokensRepo) CountActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	return f.countActive, f.countActiveErr
}

func (f *fakePasswordTokensRepo) DeleteValid(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	if f.consumeErr != nil {
		return uuid.Nil, f.consumeErr
	}
	return f.consumedUserID, nil
}

type fakeRepoManager struct {
	u  *fakeUsersRepo
	n  *fakeNewcomersRepo
	s  *fakeSessionsRepo
	et *fakeEmailTokensRepo
	pt *fakePasswordTokensRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u:  &fakeUsersRepo{},
		n:  &fakeNewcomersRepo{},
		s:  &fakeSessionsRepo{},
		et: &fakeEmailTokensRepo{},
		pt: &fakePasswordTokensRepo{},
	}
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                   { return m.u }
func (m *fakeRepoManager) Newcomers(db dbx.DBTX) newcomersrepo.Repository           { return m.n }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository             { return m.s }
func (m *fakeRepoManager) EmailTokens(db dbx.DBTX) emailtokensrepo.Repository       { return m.et }
func (m *fakeRepoManager) PasswordTokens(db dbx.DBTX) passwordtokensrepo.Repository { return m.pt }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error             { return nil }

// --- contended store ---

// contendedNewcomerStore emulates first-committer-wins for the newcomers
// table: a transaction whose insert lands after another transaction inserted
// between its read and its write gets SQLSTATE 40001, the same conflict a
// serializable postgres reports.
type contendedNewcomerStore struct {
	mu              sync.Mutex
	count           int
	readCounts      map[dbx.DBTX]int
	forcedConflicts int
	conflicts       int
}

func newContendedNewcomerStore(forcedConflicts int) *contendedNewcomerStore {
	return &contendedNewcomerStore{
		readCounts:      map[dbx.DBTX]int{},
		forcedConflicts: forcedConflicts,
	}
}

func serializationConflict() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}

// contendedNewcomersRepo is the per-transaction view over the store; the tx
// handle identifies which read a later insert belongs to.
type contendedNewcomersRepo struct {
	store *contendedNewcomerStore
	tx    dbx.DBTX
}

func (r *contendedNewcomersRepo) CountActiveByEmail(ctx context.Context, email string, now time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.readCounts[r.tx] = r.store.count
	return r.store.count, nil
}

func (r *contendedNewcomersRepo) Insert(ctx context.Context, newcomer *models.NewcomerFull) (*models.Newcomer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.forcedConflicts > 0 {
		r.store.forcedConflicts--
		r.store.conflicts++
		return nil, serializationConflict()
	}
	if readAt, ok := r.store.readCounts[r.tx]; ok && readAt != r.store.count {
		r.store.conflicts++
		return nil, serializationConflict()
	}
	r.store.count++
	created := newcomer.Newcomer
	return &created, nil
}

func (r *contendedNewcomersRepo) GetByRegistrationTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.NewcomerFull, error) {
	return nil, common.ErrorNotFound
}

func (r *contendedNewcomersRepo) InsertRegistrationToken(ctx context.Context, token *models.RegistrationToken) error {
	return nil
}

func (r *contendedNewcomersRepo) DeleteRegistrationToken(ctx context.Context, tokenHash string) error {
	return nil
}

type contendedRepoManager struct {
	*fakeRepoManager
	store *contendedNewcomerStore
}

func (m *contendedRepoManager) Newcomers(db dbx.DBTX) newcomersrepo.Repository {
	return &contendedNewcomersRepo{store: m.store, tx: db}
}
