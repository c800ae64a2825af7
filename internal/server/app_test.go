package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/dmitrijs2005/tierkeeper/internal/server/config"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
	"github.com/dmitrijs2005/tierkeeper/internal/server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = filepath.Join(t.TempDir(), "users.db")
	c.RetryBaseDelay = time.Millisecond
	return c
}

func newTestApp(t *testing.T, c *config.Config) *App {
	t.Helper()
	var buf bytes.Buffer
	orig := logOutput
	logOutput = &buf
	t.Cleanup(func() { logOutput = orig })

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	return app
}

type scriptedRunner struct {
	errs  []error
	calls int
}

func (r *scriptedRunner) RunPass(ctx context.Context) error {
	r.calls++
	if r.calls <= len(r.errs) {
		return r.errs[r.calls-1]
	}
	return nil
}

func TestNewApp_PromotesThroughSQLite(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, testConfig(t))

	store := app.Manager().Users()
	require.NoError(t, store.Create(ctx, &models.User{ID: "bumjin", Name: "Park", Credential: "p1", LoginCount: 49}))
	require.NoError(t, store.Create(ctx, &models.User{ID: "joytouch", Name: "Kim", Credential: "p2", LoginCount: 50}))

	require.NoError(t, app.Run(ctx))

	// Run closes the database; reopen to inspect.
	app2 := newTestApp(t, app.config)
	t.Cleanup(func() { _ = app2.Close() })

	u, err := app2.Manager().Users().Get(ctx, "bumjin")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, u.Tier)

	u, err = app2.Manager().Users().Get(ctx, "joytouch")
	require.NoError(t, err)
	assert.Equal(t, models.TierSilver, u.Tier)
}

func TestNewApp_CustomThresholds(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	c.MinLoginForSilver = 1
	app := newTestApp(t, c)
	t.Cleanup(func() { _ = app.Close() })

	require.NoError(t, app.Manager().Users().Create(ctx, &models.User{ID: "a", Name: "A", Credential: "x", LoginCount: 1}))
	require.NoError(t, app.RunOnce(ctx))

	u, err := app.Manager().Users().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.TierSilver, u.Tier)
}

func TestNewApp_BadDriver(t *testing.T) {
	c := testConfig(t)
	c.DatabaseDriver = "nope"

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}

func TestNewApp_S3NotifierWired(t *testing.T) {
	var got notify.S3Options
	orig := newS3Client
	newS3Client = func(ctx context.Context, opts notify.S3Options) (notify.PutObjectAPI, error) {
		got = opts
		return nil, nil
	}
	defer func() { newS3Client = orig }()

	c := testConfig(t)
	c.S3Bucket = "promotions"
	app := newTestApp(t, c)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, c.S3Region, got.Region)
	assert.Equal(t, c.S3RootUser, got.AccessKey)
	assert.Equal(t, c.S3RootPassword, got.SecretKey)
	assert.Equal(t, c.S3BaseEndpoint, got.BaseEndpoint)
}

func TestNewApp_S3ClientError(t *testing.T) {
	orig := newS3Client
	newS3Client = func(ctx context.Context, opts notify.S3Options) (notify.PutObjectAPI, error) {
		return nil, errors.New("no creds")
	}
	defer func() { newS3Client = orig }()

	c := testConfig(t)
	c.S3Bucket = "promotions"

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier init error")
}

func TestRunOnce_RetriesTransient(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	t.Cleanup(func() { _ = app.Close() })

	transient := fmt.Errorf("promotion pass: %w", common.ErrTransientIO)
	r := &scriptedRunner{errs: []error{transient, transient}}
	app.engine = r

	require.NoError(t, app.RunOnce(context.Background()))
	assert.Equal(t, 3, r.calls)
}

func TestRunOnce_GivesUpAfterMaxRetries(t *testing.T) {
	c := testConfig(t)
	c.RetryAttempts = 2
	app := newTestApp(t, c)
	t.Cleanup(func() { _ = app.Close() })

	transient := fmt.Errorf("promotion pass: %w", common.ErrTransientIO)
	r := &scriptedRunner{errs: []error{transient, transient, transient, transient}}
	app.engine = r

	err := app.RunOnce(context.Background())
	require.ErrorIs(t, err, common.ErrTransientIO)
	assert.Equal(t, 3, r.calls)
}

func TestRunOnce_DoesNotRetryOtherErrors(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	t.Cleanup(func() { _ = app.Close() })

	r := &scriptedRunner{errs: []error{common.ErrConstraintViolation}}
	app.engine = r

	err := app.RunOnce(context.Background())
	require.ErrorIs(t, err, common.ErrConstraintViolation)
	assert.Equal(t, 1, r.calls)
}

func TestRun_InvalidSchedule(t *testing.T) {
	c := testConfig(t)
	c.Schedule = "every now and then"
	app := newTestApp(t, c)

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestRun_ScheduledUntilCancelled(t *testing.T) {
	c := testConfig(t)
	c.Schedule = "@every 1s"
	app := newTestApp(t, c)

	r := &scriptedRunner{}
	app.engine = r

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	require.NoError(t, app.Run(ctx))
	assert.GreaterOrEqual(t, r.calls, 1)
}

func TestRun_ScheduledPassFailureDoesNotStopScheduler(t *testing.T) {
	c := testConfig(t)
	c.Schedule = "@every 1s"
	app := newTestApp(t, c)

	r := &scriptedRunner{errs: []error{common.ErrConstraintViolation}}
	app.engine = r

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	require.NoError(t, app.Run(ctx))
	assert.GreaterOrEqual(t, r.calls, 2)
}

func TestNewApp_LogFile(t *testing.T) {
	c := testConfig(t)
	c.LogFile = filepath.Join(t.TempDir(), "logs", "promoter.log")
	app := newTestApp(t, c)

	app.engine = &scriptedRunner{}
	require.NoError(t, app.Run(context.Background()))

	b, err := os.ReadFile(c.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Promotion pass finished")
}
