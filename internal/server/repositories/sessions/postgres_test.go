package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreateAndFinish(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	s := &models.Session{SessionID: uuid.New(), UserID: uuid.New(), StartedAt: now}

	qCreate := `(?s)^\s*INSERT\s+INTO\s+sessions\s*\(session_id,\s*user_id,\s*started_at,\s*finished_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*$`
	mock.ExpectExec(qCreate).
		WithArgs(s.SessionID, s.UserID, s.StartedAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	qFinish := `(?s)^\s*UPDATE\s+sessions\s+SET\s+finished_at\s*=\s*\$1\s+WHERE\s+session_id\s*=\s*\$2\s*$`
	mock.ExpectExec(qFinish).
		WithArgs(now, s.SessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Finish(context.Background(), s.SessionID, now); err != nil {
		t.Fatalf("Finish error: %v", err)
	}
}

func TestGetIDByAccessTokenHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+s\.session_id\s+FROM\s+sessions\s+s\s+JOIN\s+access_tokens\s+t\s+ON\s+s\.session_id\s*=\s*t\.session_id\s+WHERE\s+t\.token\s*=\s*\$1\s+AND\s+t\.expired_at\s*>\s*\$2\s*$`

	now := time.Now().UTC()
	sessionID := uuid.New()
	mock.ExpectQuery(q).
		WithArgs("digest", now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow(sessionID))

	got, err := repo.GetIDByAccessTokenHash(context.Background(), "digest", now)
	if err != nil {
		t.Fatalf("GetIDByAccessTokenHash error: %v", err)
	}
	if got != sessionID {
		t.Fatalf("session id = %v, want %v", got, sessionID)
	}

	mock.ExpectQuery(q).
		WithArgs("expired", now).
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetIDByAccessTokenHash(context.Background(), "expired", now); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestInsertTokens(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	tok := &models.SessionToken{
		Token:     models.Token{Hash: "digest", CreatedAt: now, ExpiredAt: now.Add(time.Hour)},
		SessionID: uuid.New(),
	}

	qAccess := `(?s)^\s*INSERT\s+INTO\s+access_tokens\s*\(token,\s*session_id,\s*created_at,\s*expired_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*$`
	mock.ExpectExec(qAccess).
		WithArgs(tok.Hash, tok.SessionID, tok.CreatedAt, tok.ExpiredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.InsertAccessToken(context.Background(), tok); err != nil {
		t.Fatalf("InsertAccessToken error: %v", err)
	}

	qRefresh := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(token,\s*session_id,\s*created_at,\s*expired_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*$`
	mock.ExpectExec(qRefresh).
		WithArgs(tok.Hash, tok.SessionID, tok.CreatedAt, tok.ExpiredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.InsertRefreshToken(context.Background(), tok); err != nil {
		t.Fatalf("InsertRefreshToken error: %v", err)
	}
}

func TestDeleteTokens(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	sessionID := uuid.New()

	qAccess := `(?s)^\s*DELETE\s+FROM\s+access_tokens\s+WHERE\s+session_id\s*=\s*\$1\s*$`
	mock.ExpectExec(qAccess).
		WithArgs(sessionID).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.DeleteAccessTokens(context.Background(), sessionID); err != nil {
		t.Fatalf("DeleteAccessTokens error: %v", err)
	}

	qRefresh := `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+session_id\s*=\s*\$1\s*$`
	mock.ExpectExec(qRefresh).
		WithArgs(sessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteRefreshTokens(context.Background(), sessionID); err != nil {
		t.Fatalf("DeleteRefreshTokens error: %v", err)
	}
}

func TestDeleteValidRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s+AND\s+expired_at\s*>\s*\$2\s+RETURNING\s+session_id\s*$`

	now := time.Now().UTC()
	sessionID := uuid.New()
	mock.ExpectQuery(q).
		WithArgs("digest", now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow(sessionID))

	got, err := repo.DeleteValidRefreshToken(context.Background(), "digest", now)
	if err != nil {
		t.Fatalf("DeleteValidRefreshToken error: %v", err)
	}
	if got != sessionID {
		t.Fatalf("session id = %v, want %v", got, sessionID)
	}

	// Second presentation: the row is gone.
	mock.ExpectQuery(q).
		WithArgs("digest", now).
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.DeleteValidRefreshToken(context.Background(), "digest", now); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}
