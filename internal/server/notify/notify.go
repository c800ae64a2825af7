// Package notify delivers promotion events to side channels. Delivery is
// best effort: the promotion engine logs notifier errors and moves on.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tierkeeper/internal/logging"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
	"github.com/google/uuid"
)

// Event announces that a user reached a new tier.
type Event struct {
	EventID    uuid.UUID
	UserID     string
	Name       string
	NewTier    models.Tier
	PromotedAt time.Time
}

// NewEvent builds the event for u, which already carries its new tier.
func NewEvent(u *models.User, at time.Time) Event {
	return Event{
		EventID:    uuid.New(),
		UserID:     u.ID,
		Name:       u.Name,
		NewTier:    u.Tier,
		PromotedAt: at.UTC(),
	}
}

// Notifier receives promotion events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, ev Event) error

func (f Func) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Multi delivers every event to each notifier in order. All notifiers are
// tried; their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes the upgrade notice to the log instead of a mail server.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.logger.Info(ctx, "Sending upgrade email",
		"event_id", ev.EventID.String(),
		"user_id", ev.UserID,
		"name", ev.Name,
		"tier", ev.NewTier.String(),
	)
	return nil
}
