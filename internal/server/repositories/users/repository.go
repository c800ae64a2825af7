package users

import (
	"context"

	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
)

// Repository describes the operations over user records. Store implements
// it both directly and, inside InTx, bound to a running transaction.
type Repository interface {
	// Create inserts u. A missing tier is stored as BASIC. A duplicate id
	// fails with common.ErrConstraintViolation.
	Create(ctx context.Context, u *models.User) error

	// Get returns the user with the given id or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.User, error)

	// GetAll returns every user in insertion order; never nil.
	GetAll(ctx context.Context) ([]*models.User, error)

	// Update overwrites the row with u.ID. A missing row fails with
	// common.ErrorNotFound.
	Update(ctx context.Context, u *models.User) error

	// DeleteAll removes every row.
	DeleteAll(ctx context.Context) error

	// Count returns the number of rows.
	Count(ctx context.Context) (int, error)
}
