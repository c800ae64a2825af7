package promotion

import (
	"fmt"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
)

// Rule decides whether a user is promoted and to which tier. It must be a
// pure function of the user's tier and counters.
type Rule interface {
	// Evaluate returns the next tier and true when u qualifies for
	// promotion. An unknown tier yields an error wrapping
	// common.ErrInvalidState.
	Evaluate(u *models.User) (models.Tier, bool, error)
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc func(u *models.User) (models.Tier, bool, error)

func (f RuleFunc) Evaluate(u *models.User) (models.Tier, bool, error) {
	return f(u)
}

// ThresholdRule promotes BASIC users by login count and SILVER users by
// recommendation count. GOLD is terminal. A user advances at most one tier
// per evaluation.
type ThresholdRule struct {
	thresholds models.Thresholds
}

func NewThresholdRule(t models.Thresholds) *ThresholdRule {
	return &ThresholdRule{thresholds: t}
}

// Thresholds returns a copy of the configured thresholds.
func (r *ThresholdRule) Thresholds() models.Thresholds {
	return r.thresholds
}

func (r *ThresholdRule) Evaluate(u *models.User) (models.Tier, bool, error) {
	var eligible bool
	switch u.Tier {
	case models.TierBasic:
		eligible = u.LoginCount >= r.thresholds.MinLoginForSilver
	case models.TierSilver:
		eligible = u.RecommendCount >= r.thresholds.MinRecommendForGold
	case models.TierGold:
		return u.Tier, false, nil
	default:
		return u.Tier, false, fmt.Errorf("%w: user %q has unknown tier %s", common.ErrInvalidState, u.ID, u.Tier)
	}

	if !eligible {
		return u.Tier, false, nil
	}
	next, _ := u.Tier.Next()
	return next, true, nil
}
