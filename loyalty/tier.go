/*
tier.go - Pure tier qualification rule

An account qualifies for a tier iff its lifetime aggregates meet both the
points and spend thresholds; among qualifying active tiers the one with the
highest SortOrder applies. Assignment is monotonic: the ledger only applies
the result when it ranks above the current tier, and only re-evaluates after
balance-increasing operations.
*/
package loyalty

// EvaluateTier returns the highest-ordered active tier the account
// qualifies for, or nil when none qualifies. Pure function over the
// account's lifetime aggregates and the tier catalog.
func EvaluateTier(a *Account, tiers []Tier) *Tier {
	var best *Tier
	for i := range tiers {
		t := &tiers[i]
		if !t.IsActive || !t.Qualifies(a) {
			continue
		}
		if best == nil || t.SortOrder > best.SortOrder {
			best = t
		}
	}
	return best
}

// tierByID finds a tier in the catalog. Returns nil when absent or inactive.
func tierByID(tiers []Tier, id TierID) *Tier {
	for i := range tiers {
		if tiers[i].ID == id && tiers[i].IsActive {
			return &tiers[i]
		}
	}
	return nil
}

// sortRank returns the SortOrder of the account's current tier, or a rank
// below every real tier when unassigned. Used to enforce monotonic
// assignment.
func sortRank(tiers []Tier, id *TierID) int {
	if id == nil {
		return -1 << 31
	}
	for i := range tiers {
		if tiers[i].ID == *id {
			return tiers[i].SortOrder
		}
	}
	return -1 << 31
}
