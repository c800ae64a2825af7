package users

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tierkeeper/internal/dbx"
	"github.com/jmoiron/sqlx"
)

// seq keeps insertion order for GetAll; id is the business key.
const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS users (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT    NOT NULL UNIQUE,
		name            TEXT    NOT NULL,
		credential      TEXT    NOT NULL,
		tier            INTEGER NOT NULL CHECK (tier BETWEEN 1 AND 3),
		login_count     INTEGER NOT NULL DEFAULT 0 CHECK (login_count >= 0),
		recommend_count INTEGER NOT NULL DEFAULT 0 CHECK (recommend_count >= 0)
	)`

	postgresSchema = `CREATE TABLE IF NOT EXISTS users (
		seq             BIGSERIAL PRIMARY KEY,
		id              TEXT    NOT NULL UNIQUE,
		name            TEXT    NOT NULL,
		credential      TEXT    NOT NULL,
		tier            INTEGER NOT NULL CHECK (tier BETWEEN 1 AND 3),
		login_count     INTEGER NOT NULL DEFAULT 0 CHECK (login_count >= 0),
		recommend_count INTEGER NOT NULL DEFAULT 0 CHECK (recommend_count >= 0)
	)`
)

// EnsureSchema creates the users table when it does not exist yet. It does
// not alter an existing table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := sqliteSchema
	if s.bindType == sqlx.DOLLAR {
		ddl = postgresSchema
	}
	err := s.withConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		_, err := db.ExecContext(ctx, ddl)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure schema: %w", dbx.TranslateError(err))
	}
	return nil
}
