package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/emailtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/newcomers"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/passwordtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can run the same repositories against the pooled connection or
// against an open transaction.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Newcomers(db dbx.DBTX) newcomers.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	EmailTokens(db dbx.DBTX) emailtokens.Repository
	PasswordTokens(db dbx.DBTX) passwordtokens.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
