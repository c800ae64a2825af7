// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"strings"
)

// Tier is a user's ordered promotion level. It is persisted as its integer
// value.
type Tier int

const (
	// TierUnset is only meaningful on the creation path; the store replaces
	// it with TierBasic before persisting.
	TierUnset Tier = iota
	TierBasic
	TierSilver
	TierGold
)

var tierNames = map[Tier]string{
	TierBasic:  "BASIC",
	TierSilver: "SILVER",
	TierGold:   "GOLD",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	if t == TierUnset {
		return "UNSET"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// Valid reports whether t is one of the persisted tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// Next returns the tier following t. GOLD is terminal and reports false,
// as does any invalid value.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierBasic:
		return TierSilver, true
	case TierSilver:
		return TierGold, true
	}
	return t, false
}

// ParseTier converts a tier name (case-insensitive) back to a Tier.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return TierUnset, fmt.Errorf("unknown tier %q", s)
}

// User is a row of the users table.
type User struct {
	ID             string
	Name           string
	Credential     string
	Tier           Tier
	LoginCount     int
	RecommendCount int
}

// Thresholds are the activity counters a user has to reach to be promoted.
// The value is immutable once handed to the promotion rule.
type Thresholds struct {
	MinLoginForSilver   int
	MinRecommendForGold int
}

// DefaultThresholds returns the stock promotion thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{MinLoginForSilver: 50, MinRecommendForGold: 30}
}
