// Package repomanager wires repository constructors to a concrete database
// and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/avolkov/postdrop/internal/dbx"
	"github.com/avolkov/postdrop/internal/server/repositories/blobs"
	"github.com/avolkov/postdrop/internal/server/repositories/messages"
	"github.com/avolkov/postdrop/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to the provided DBTX, so a
// service can use the same repository implementation inside and outside a
// transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Blobs(db dbx.DBTX) blobs.Repository
	Messages(db dbx.DBTX) messages.Repository
}
