// Package users provides the persistence layer for user records.
//
// # Overview
//
// Store implements Repository over a dbx.ConnSource. Every call acquires a
// connection, runs, and releases it before returning, on success and failure
// alike. What to run is decided by a StatementStrategy (InsertUser,
// UpdateUser, DeleteAllUsers or a caller-supplied StatementFunc); how to run
// it, including cleanup and driver error translation, stays in the Store.
//
// # Transactions
//
// InTx binds one connection and one transaction to a callback. The
// repository handed to the callback runs every operation in that
// transaction, so a batch of updates commits or rolls back together.
//
// # Concurrency
//
// A Store is safe for concurrent use when its ConnSource is (PoolSource is).
// The repository passed to an InTx callback must not outlive the callback or
// be shared between goroutines.
//
// Typical Usage
//
//	store := users.NewStore(dbx.NewPoolSource(db), users.WithBindType(sqlx.BindType("pgx")))
//	_ = store.EnsureSchema(ctx)
//	_ = store.Create(ctx, &models.User{ID: "bumjin", Name: "Bumjin", Credential: "p1"})
//	u, _ := store.Get(ctx, "bumjin")
//	err := store.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
//	    u.LoginCount++
//	    return repo.Update(ctx, u)
//	})
package users
