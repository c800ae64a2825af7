// Package promotion promotes users between tiers. A pass evaluates every
// user against a Rule and persists all promotions in one transaction.
package promotion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/dmitrijs2005/tierkeeper/internal/logging"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
	"github.com/dmitrijs2005/tierkeeper/internal/server/notify"
	"github.com/dmitrijs2005/tierkeeper/internal/server/repositories/users"
)

// TxRunner runs fn inside one transaction; users.Store implements it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error
}

// Engine runs promotion passes. Passes on the same Engine are serialized;
// running passes from several processes against one database requires
// external serialization.
type Engine struct {
	mu       sync.Mutex
	runner   TxRunner
	rule     Rule
	notifier notify.Notifier
	logger   logging.Logger
	now      func() time.Time
}

func NewEngine(runner TxRunner, rule Rule, notifier notify.Notifier, logger logging.Logger) *Engine {
	return &Engine{
		runner:   runner,
		rule:     rule,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// RunPass evaluates all users in store order and promotes the eligible ones
// by exactly one tier. Each promotion is persisted and then announced to the
// notifier. Any persistence or rule error rolls back the whole pass and is
// returned; notifier failures are logged and ignored.
func (e *Engine) RunPass(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var evaluated, promoted int
	err := e.runner.InTx(ctx, func(ctx context.Context, repo users.Repository) error {
		evaluated, promoted = 0, 0

		all, err := repo.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}

		for _, u := range all {
			evaluated++
			next, ok, err := e.rule.Evaluate(u)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := e.promote(ctx, repo, u, next); err != nil {
				return err
			}
			promoted++
		}
		return nil
	})
	if err != nil {
		e.logger.Error(ctx, "promotion pass rolled back", "evaluated", evaluated, "error", err)
		return fmt.Errorf("promotion pass: %w", err)
	}

	e.logger.Info(ctx, "promotion pass committed", "evaluated", evaluated, "promoted", promoted)
	return nil
}

func (e *Engine) promote(ctx context.Context, repo users.Repository, u *models.User, next models.Tier) error {
	from := u.Tier
	u.Tier = next
	if err := repo.Update(ctx, u); err != nil {
		return fmt.Errorf("promote user %q: %w", u.ID, err)
	}
	e.logger.Debug(ctx, "user promoted", "user_id", u.ID, "from", from.String(), "to", next.String())

	if err := e.notify(ctx, notify.NewEvent(u, e.now())); err != nil {
		e.logger.Warn(ctx, "promotion notice not delivered", "user_id", u.ID,
			"error", fmt.Errorf("%w: %w", common.ErrNotifierFailure, err))
	}
	return nil
}

// notify shields the pass from notifier panics.
func (e *Engine) notify(ctx context.Context, ev notify.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
	}()
	return e.notifier.Notify(ctx, ev)
}
