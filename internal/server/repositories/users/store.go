package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/dmitrijs2005/tierkeeper/internal/dbx"
	"github.com/dmitrijs2005/tierkeeper/internal/logging"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
	"github.com/jmoiron/sqlx"
)

const (
	selectUserByIDQuery = `SELECT id, name, credential, tier, login_count, recommend_count
		FROM users WHERE id = ?`

	selectAllUsersQuery = `SELECT id, name, credential, tier, login_count, recommend_count
		FROM users ORDER BY seq`

	countUsersQuery = `SELECT COUNT(*) FROM users`
)

// Store is the user record store. It owns connection acquisition and release
// for every call; statement construction is delegated to strategies.
type Store struct {
	source   dbx.ConnSource
	bindType int
	logger   logging.Logger

	// tx is set on the transaction-bound view handed out by InTx.
	tx dbx.DBTX
}

// Option configures a Store.
type Option func(*Store)

// WithBindType selects the placeholder style, see sqlx.BindType.
func WithBindType(bindType int) Option {
	return func(s *Store) { s.bindType = bindType }
}

// WithLogger sets the logger used for resource cleanup failures.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store drawing connections from source.
func NewStore(source dbx.ConnSource, opts ...Option) *Store {
	s := &Store{
		source:   source,
		bindType: sqlx.QUESTION,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Repository = (*Store)(nil)

func (s *Store) acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", common.ErrTransientIO, err)
	}
	return conn, nil
}

func (s *Store) release(ctx context.Context, conn *sql.Conn) {
	if err := s.source.Release(conn); err != nil {
		s.logger.Warn(ctx, "failed to release connection", "error", err)
	}
}

// withConn runs fn against a connection scoped to this call. A
// transaction-bound store runs fn against its transaction instead.
func (s *Store) withConn(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	if s.tx != nil {
		return fn(ctx, s.tx)
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(ctx, conn)
	return fn(ctx, conn)
}

func (s *Store) rebind(query string) string {
	return sqlx.Rebind(s.bindType, query)
}

// rebindPreparer rewrites placeholders before preparing, so strategies can
// stay driver agnostic.
type rebindPreparer struct {
	p        dbx.Preparer
	bindType int
}

func (r rebindPreparer) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return r.p.PrepareContext(ctx, sqlx.Rebind(r.bindType, query))
}

// ExecuteStrategy acquires a connection, lets st build a statement on it,
// executes the statement and releases both handles on every path. It
// returns the number of affected rows.
func (s *Store) ExecuteStrategy(ctx context.Context, st StatementStrategy) (int64, error) {
	var affected int64
	err := s.withConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		stmt, err := st.MakeStatement(ctx, rebindPreparer{p: db, bindType: s.bindType})
		if err != nil {
			return fmt.Errorf("make statement: %w", err)
		}
		defer func() {
			if err := stmt.Close(); err != nil {
				s.logger.Warn(ctx, "failed to close statement", "error", err)
			}
		}()

		res, err := stmt.Stmt.ExecContext(ctx, stmt.Args...)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	return affected, dbx.TranslateError(err)
}

// Create inserts u. The caller's struct is not modified.
func (s *Store) Create(ctx context.Context, u *models.User) error {
	row := *u
	if row.Tier == models.TierUnset {
		row.Tier = models.TierBasic
	}
	if _, err := s.ExecuteStrategy(ctx, InsertUser(row)); err != nil {
		return fmt.Errorf("create user %q: %w", row.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*models.User, error) {
	u := &models.User{}
	var tier int
	if err := sc.Scan(&u.ID, &u.Name, &u.Credential, &tier, &u.LoginCount, &u.RecommendCount); err != nil {
		return nil, err
	}
	u.Tier = models.Tier(tier)
	return u, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := s.withConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		user, err = scanUser(db.QueryRowContext(ctx, s.rebind(selectUserByIDQuery), id))
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", id, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("get user %q: %w", id, dbx.TranslateError(err))
	}
	return user, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*models.User, error) {
	result := make([]*models.User, 0)
	err := s.withConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		rows, err := db.QueryContext(ctx, s.rebind(selectAllUsersQuery))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			result = append(result, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get all users: %w", dbx.TranslateError(err))
	}
	return result, nil
}

// Update overwrites the row with u.ID. Zero affected rows is reported as
// common.ErrorNotFound, matching Get.
func (s *Store) Update(ctx context.Context, u *models.User) error {
	affected, err := s.ExecuteStrategy(ctx, UpdateUser(*u))
	if err != nil {
		return fmt.Errorf("update user %q: %w", u.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update user %q: %w", u.ID, common.ErrorNotFound)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.ExecuteStrategy(ctx, DeleteAllUsers()); err != nil {
		return fmt.Errorf("delete all users: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.withConn(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return db.QueryRowContext(ctx, countUsersQuery).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", dbx.TranslateError(err))
	}
	return n, nil
}

// InTx runs fn inside one transaction on one acquired connection. The
// repository passed to fn executes every call in that transaction. The
// transaction commits when fn returns nil and rolls back otherwise, including
// on panic; the connection is released in all cases. Calling InTx on a
// transaction-bound store joins the running transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(ctx, conn)

	err = dbx.WithTx(ctx, conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.bound(tx))
	})
	return dbx.TranslateError(err)
}

func (s *Store) bound(tx dbx.DBTX) *Store {
	return &Store{
		source:   s.source,
		bindType: s.bindType,
		logger:   s.logger,
		tx:       tx,
	}
}
