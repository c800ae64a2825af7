package users

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/dmitrijs2005/tierkeeper/internal/dbx"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// countingSource tracks how many acquired connections were not released yet.
type countingSource struct {
	inner    dbx.ConnSource
	acquired int
	released int
	failWith error
}

func (c *countingSource) Acquire(ctx context.Context) (*sql.Conn, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	conn, err := c.inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	c.acquired++
	return conn, nil
}

func (c *countingSource) Release(conn *sql.Conn) error {
	c.released++
	return c.inner.Release(conn)
}

func (c *countingSource) open() int { return c.acquired - c.released }

func newSQLiteStore(t *testing.T) (*Store, *countingSource) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	src := &countingSource{inner: dbx.NewPoolSource(db)}
	store := NewStore(src)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store, src
}

func fixtureUsers() []*models.User {
	return []*models.User{
		{ID: "bumjin", Name: "Park Bumjin", Credential: "p1", Tier: models.TierBasic, LoginCount: 49},
		{ID: "joytouch", Name: "Kang Myungsung", Credential: "p2", Tier: models.TierBasic, LoginCount: 51},
		{ID: "erwins", Name: "Shin Seunghan", Credential: "p3", Tier: models.TierSilver, LoginCount: 60, RecommendCount: 29},
		{ID: "madnite1", Name: "Lee Sangho", Credential: "p4", Tier: models.TierSilver, LoginCount: 60, RecommendCount: 30},
		{ID: "green", Name: "Oh Mingyu", Credential: "p5", Tier: models.TierGold, LoginCount: 100, RecommendCount: math.MaxInt32},
	}
}

func TestCreateGet_RoundTrip(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()

	for _, u := range fixtureUsers() {
		require.NoError(t, store.Create(ctx, u))

		got, err := store.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(u, got))
	}
	assert.Equal(t, 0, src.open())
}

func TestCreate_DefaultsMissingTier(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	u := &models.User{ID: "bumjin", Name: "Park Bumjin", Credential: "p1", LoginCount: 3}
	require.NoError(t, store.Create(ctx, u))
	assert.Equal(t, models.TierUnset, u.Tier, "caller struct must not be modified")

	got, err := store.Get(ctx, "bumjin")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, got.Tier)
	assert.Equal(t, 3, got.LoginCount)
}

func TestCreate_DuplicateID(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()

	u := fixtureUsers()[0]
	require.NoError(t, store.Create(ctx, u))

	err := store.Create(ctx, u)
	require.ErrorIs(t, err, common.ErrConstraintViolation)
	assert.Equal(t, 0, src.open())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreate_NegativeCounterRejected(t *testing.T) {
	store, _ := newSQLiteStore(t)

	err := store.Create(context.Background(), &models.User{ID: "x", Name: "x", Credential: "x", LoginCount: -1})
	require.ErrorIs(t, err, common.ErrConstraintViolation)
}

func TestGet_NotFoundLeavesStoreUnchanged(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, fixtureUsers()[0]))

	_, err := store.Get(ctx, "ghost")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 0, src.open(), "connection must be released on the not-found path")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetAll_EmptyStore(t *testing.T) {
	store, _ := newSQLiteStore(t)

	got, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetAll_InsertionOrder(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	// ids inserted out of lexical order
	want := []string{"zed", "alpha", "mike"}
	for _, id := range want {
		require.NoError(t, store.Create(ctx, &models.User{ID: id, Name: id, Credential: "c"}))
	}

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, u := range got {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, want, ids)
}

func TestUpdate_OverwritesRow(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, fixtureUsers()[0]))

	changed := &models.User{ID: "bumjin", Name: "Bumjin", Credential: "new", Tier: models.TierSilver, LoginCount: 70, RecommendCount: 2}
	require.NoError(t, store.Update(ctx, changed))

	got, err := store.Get(ctx, "bumjin")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(changed, got))
}

func TestUpdate_MissingRow(t *testing.T) {
	store, _ := newSQLiteStore(t)

	err := store.Update(context.Background(), &models.User{ID: "ghost", Name: "g", Credential: "c", Tier: models.TierBasic})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteAllAndCount(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()

	for _, u := range fixtureUsers() {
		require.NoError(t, store.Create(ctx, u))
	}
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.NoError(t, store.DeleteAll(ctx))

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, src.open())
}

func TestExecuteStrategy_FailingStrategyReleasesConnection(t *testing.T) {
	store, src := newSQLiteStore(t)
	boom := errors.New("boom")

	_, err := store.ExecuteStrategy(context.Background(), StatementFunc(func(ctx context.Context, p dbx.Preparer) (*Statement, error) {
		return nil, boom
	}))

	require.ErrorIs(t, err, boom)
	assert.Positive(t, src.acquired)
	assert.Equal(t, 0, src.open())
}

func TestExecuteStrategy_CustomStrategy(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	for _, u := range fixtureUsers() {
		require.NoError(t, store.Create(ctx, u))
	}

	resetLogins := StatementFunc(func(ctx context.Context, p dbx.Preparer) (*Statement, error) {
		stmt, err := p.PrepareContext(ctx, `UPDATE users SET login_count = ? WHERE tier = ?`)
		if err != nil {
			return nil, err
		}
		return &Statement{Stmt: stmt, Args: []any{0, int(models.TierBasic)}}, nil
	})

	affected, err := store.ExecuteStrategy(ctx, resetLogins)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	got, err := store.Get(ctx, "joytouch")
	require.NoError(t, err)
	assert.Equal(t, 0, got.LoginCount)
}

func TestAcquireFailure_IsTransient(t *testing.T) {
	store, src := newSQLiteStore(t)
	src.failWith = errors.New("pool exhausted")

	_, err := store.Get(context.Background(), "x")
	require.ErrorIs(t, err, common.ErrTransientIO)

	err = store.InTx(context.Background(), func(ctx context.Context, repo Repository) error { return nil })
	require.ErrorIs(t, err, common.ErrTransientIO)
}

func TestInTx_CommitsAllUpdates(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()
	for _, u := range fixtureUsers() {
		require.NoError(t, store.Create(ctx, u))
	}
	before := src.acquired

	err := store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		all, err := repo.GetAll(ctx)
		if err != nil {
			return err
		}
		for _, u := range all {
			u.LoginCount++
			if err := repo.Update(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, src.acquired, "a transaction uses exactly one connection")
	assert.Equal(t, 0, src.open())

	got, err := store.Get(ctx, "green")
	require.NoError(t, err)
	assert.Equal(t, 101, got.LoginCount)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()
	for _, u := range fixtureUsers() {
		require.NoError(t, store.Create(ctx, u))
	}
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		u, err := repo.Get(ctx, "bumjin")
		if err != nil {
			return err
		}
		u.Tier = models.TierGold
		if err := repo.Update(ctx, u); err != nil {
			return err
		}
		if err := repo.Create(ctx, &models.User{ID: "late", Name: "l", Credential: "c"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, src.open())

	got, err := store.Get(ctx, "bumjin")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, got.Tier)

	_, err = store.Get(ctx, "late")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInTx_ReleasesOnPanic(t *testing.T) {
	store, src := newSQLiteStore(t)

	require.Panics(t, func() {
		_ = store.InTx(context.Background(), func(ctx context.Context, repo Repository) error {
			panic("kaput")
		})
	})
	assert.Equal(t, 0, src.open())
}

func TestInTx_NestedJoinsTransaction(t *testing.T) {
	store, src := newSQLiteStore(t)
	ctx := context.Background()
	before := src.acquired

	err := store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		inner, ok := repo.(*Store)
		require.True(t, ok)
		return inner.InTx(ctx, func(ctx context.Context, repo Repository) error {
			return repo.Create(ctx, &models.User{ID: "n", Name: "n", Credential: "c"})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, src.acquired)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
