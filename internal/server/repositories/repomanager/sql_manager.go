// Package repomanager opens the configured database/sql driver and wires the
// user store to it with the matching placeholder style and schema dialect.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tierkeeper/internal/dbx"
	"github.com/dmitrijs2005/tierkeeper/internal/filex"
	"github.com/dmitrijs2005/tierkeeper/internal/logging"
	"github.com/dmitrijs2005/tierkeeper/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Driver names registered by the blank imports above.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// SQLRepositoryManager serves repositories from a single *sql.DB pool.
type SQLRepositoryManager struct {
	db     *sql.DB
	driver string
	users  *users.Store
}

var _ RepositoryManager = (*SQLRepositoryManager)(nil)

// BindType returns the placeholder style for driver. Drivers sqlx does not
// know (modernc registers itself as "sqlite") get "?" placeholders.
func BindType(driver string) int {
	if bt := sqlx.BindType(driver); bt != sqlx.UNKNOWN {
		return bt
	}
	return sqlx.QUESTION
}

// sqliteFilePath returns the file behind a SQLite DSN, if there is one.
func sqliteFilePath(dsn string) (string, bool) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return "", false
	}
	return path, true
}

// Open opens dsn with driver and checks that the database answers. For a
// file-backed SQLite DSN the parent directory is created first.
func Open(ctx context.Context, driver, dsn string, logger logging.Logger) (*SQLRepositoryManager, error) {
	if path, ok := sqliteFilePath(dsn); ok && driver == DriverSQLite {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("db dir error: %w", err)
		}
	}

	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", dbx.TranslateError(err))
	}
	return NewSQLRepositoryManager(db, driver, logger), nil
}

// NewSQLRepositoryManager wraps an already opened pool.
func NewSQLRepositoryManager(db *sql.DB, driver string, logger logging.Logger) *SQLRepositoryManager {
	store := users.NewStore(
		dbx.NewPoolSource(db),
		users.WithBindType(BindType(driver)),
		users.WithLogger(logger),
	)
	return &SQLRepositoryManager{db: db, driver: driver, users: store}
}

// Users returns the user store.
func (m *SQLRepositoryManager) Users() *users.Store {
	return m.users
}

// DB returns the underlying pool.
func (m *SQLRepositoryManager) DB() *sql.DB {
	return m.db
}

// RunMigrations creates missing tables.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context) error {
	if err := m.users.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%s: %w", m.driver, err)
	}
	return nil
}

func (m *SQLRepositoryManager) Close() error {
	return m.db.Close()
}
