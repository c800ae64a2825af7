package dbx

import (
	"context"
	"database/sql"
)

// ConnSource hands out dedicated connections. Every connection obtained from
// Acquire must be given back through Release exactly once.
type ConnSource interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
	Release(conn *sql.Conn) error
}

// PoolSource is a ConnSource backed by the *sql.DB connection pool.
// Releasing a connection returns it to the pool.
type PoolSource struct {
	db *sql.DB
}

// NewPoolSource wraps db.
func NewPoolSource(db *sql.DB) *PoolSource {
	return &PoolSource{db: db}
}

func (s *PoolSource) Acquire(ctx context.Context) (*sql.Conn, error) {
	return s.db.Conn(ctx)
}

func (s *PoolSource) Release(conn *sql.Conn) error {
	return conn.Close()
}

// DB exposes the underlying pool, e.g. for Close on shutdown.
func (s *PoolSource) DB() *sql.DB {
	return s.db
}
