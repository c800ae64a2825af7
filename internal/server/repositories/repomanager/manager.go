package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tierkeeper/internal/server/repositories/users"
)

// RepositoryManager owns the database handle and vends repositories bound
// to it.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() *users.Store
	DB() *sql.DB
	Close() error
}
