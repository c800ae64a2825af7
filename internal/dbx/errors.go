package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pgIntegrityClass is the SQLSTATE class for integrity constraint violations
// (23505 unique_violation, 23514 check_violation, ...).
const pgIntegrityClass = "23"

// TranslateError maps driver errors onto the common error taxonomy.
// Constraint violations become common.ErrConstraintViolation and connection
// level failures become common.ErrTransientIO. The original error stays in
// the chain. Already classified errors and unknown errors are returned as is.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if classified(err) {
		return err
	}
	switch {
	case IsConstraintViolation(err):
		return fmt.Errorf("%w: %w", common.ErrConstraintViolation, err)
	case IsTransient(err):
		return fmt.Errorf("%w: %w", common.ErrTransientIO, err)
	}
	return err
}

func classified(err error) bool {
	return errors.Is(err, common.ErrConstraintViolation) ||
		errors.Is(err, common.ErrTransientIO) ||
		errors.Is(err, common.ErrorNotFound)
}

// IsConstraintViolation reports whether err was raised by the engine for a
// violated integrity constraint.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgIntegrityClass)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// IsTransient reports whether err indicates a connection or I/O failure that
// may succeed when retried.
func IsTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR:
			return true
		}
	}
	return false
}
