package domain

import "github.com/google/uuid"

// Strategy selects how a pool picks among its available owners.
type Strategy string

const (
	// StrategyRoundRobin cycles through active owners with a persistent cursor.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyLeastLoaded picks the owner with the fewest open leads.
	StrategyLeastLoaded Strategy = "least_loaded"
	// StrategyWeightedRandom samples proportionally to remaining capacity.
	StrategyWeightedRandom Strategy = "weighted_random"
)

// Valid reports whether s is a defined strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyWeightedRandom:
		return true
	}
	return false
}

// Owner is a salesperson eligible for lead assignment. OpenLeads is an
// advisory snapshot taken at call time, not a lock.
type Owner struct {
	ID        uuid.UUID
	Name      string
	Active    bool
	Capacity  int
	OpenLeads int
}

// Available reports whether the owner can take another lead.
func (o Owner) Available() bool {
	return o.Active && o.OpenLeads < o.Capacity
}

// Pool is a named, strategy-tagged group of owners. Membership is derived per
// call from capacity-band classification; only the name and strategy are
// stored tenant configuration.
type Pool struct {
	Name     string
	Strategy Strategy
	Owners   []Owner
}
