package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tierkeeper/internal/dbx"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
)

// Statement is a prepared statement together with the arguments to execute
// it with.
type Statement struct {
	Stmt *sql.Stmt
	Args []any
}

// Close releases the prepared statement.
func (s *Statement) Close() error {
	return s.Stmt.Close()
}

// StatementStrategy decides what to run. Implementations prepare a statement
// on the given handle and bind its arguments; they must neither execute it
// nor close the handle. Queries use '?' placeholders; the store rewrites them
// for the configured driver.
type StatementStrategy interface {
	MakeStatement(ctx context.Context, p dbx.Preparer) (*Statement, error)
}

// StatementFunc adapts a plain function to StatementStrategy.
type StatementFunc func(ctx context.Context, p dbx.Preparer) (*Statement, error)

func (f StatementFunc) MakeStatement(ctx context.Context, p dbx.Preparer) (*Statement, error) {
	return f(ctx, p)
}

const (
	insertUserQuery = `INSERT INTO users (id, name, credential, tier, login_count, recommend_count)
		VALUES (?, ?, ?, ?, ?, ?)`

	updateUserQuery = `UPDATE users
		SET name = ?, credential = ?, tier = ?, login_count = ?, recommend_count = ?
		WHERE id = ?`

	deleteAllUsersQuery = `DELETE FROM users`
)

// prepare is shared by the built-in strategies.
func prepare(ctx context.Context, p dbx.Preparer, query string, args ...any) (*Statement, error) {
	stmt, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	return &Statement{Stmt: stmt, Args: args}, nil
}

// InsertUser inserts one row. The field values are captured when the
// strategy is built.
func InsertUser(u models.User) StatementStrategy {
	return StatementFunc(func(ctx context.Context, p dbx.Preparer) (*Statement, error) {
		return prepare(ctx, p, insertUserQuery,
			u.ID, u.Name, u.Credential, int(u.Tier), u.LoginCount, u.RecommendCount)
	})
}

// UpdateUser overwrites every mutable column of the row with u.ID.
func UpdateUser(u models.User) StatementStrategy {
	return StatementFunc(func(ctx context.Context, p dbx.Preparer) (*Statement, error) {
		return prepare(ctx, p, updateUserQuery,
			u.Name, u.Credential, int(u.Tier), u.LoginCount, u.RecommendCount, u.ID)
	})
}

// DeleteAllUsers truncates the table.
func DeleteAllUsers() StatementStrategy {
	return StatementFunc(func(ctx context.Context, p dbx.Preparer) (*Statement, error) {
		return prepare(ctx, p, deleteAllUsersQuery)
	})
}
