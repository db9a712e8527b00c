// Package pools classifies owners into capacity-band pools and picks an
// assignee according to the pool's load-balancing strategy.
package pools

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/config"
)

// Bands are named after capacity tiers. POOL_A holds high-capacity closers,
// POOL_B mid-capacity reps, and everyone else lands in the configured default
// pool.
const (
	PoolA = "POOL_A"
	PoolB = "POOL_B"
)

// Assigner resolves an assignment target (a pool name or a direct owner ID)
// to a concrete owner.
type Assigner struct {
	state       StateStore
	defaultPool string
	poolAMin    int
	poolBMin    int
}

// NewAssigner creates an assigner with capacity bands from configuration.
func NewAssigner(state StateStore, cfg config.RoutingConfig) *Assigner {
	return &Assigner{
		state:       state,
		defaultPool: cfg.GetDefaultPool(),
		poolAMin:    cfg.GetPoolAMinCapacity(),
		poolBMin:    cfg.GetPoolBMinCapacity(),
	}
}

// DefaultPool returns the configured catch-all pool name.
func (a *Assigner) DefaultPool() string {
	return a.defaultPool
}

// IsDirectOwner reports whether an assignment target names a specific owner
// rather than a pool. Owner targets are UUIDs; pool names never parse as one.
func IsDirectOwner(target string) (uuid.UUID, bool) {
	id, err := uuid.Parse(target)
	return id, err == nil
}

// ClassifyPool returns the capacity band an owner belongs to.
func (a *Assigner) ClassifyPool(o domain.Owner) string {
	switch {
	case o.Capacity >= a.poolAMin:
		return PoolA
	case o.Capacity >= a.poolBMin:
		return PoolB
	default:
		return a.defaultPool
	}
}

// Members returns the owners that belong to the named pool, in input order.
// Availability is not filtered here; Pick does that so the trace can tell
// "empty pool" apart from "pool full".
func (a *Assigner) Members(owners []domain.Owner, pool string) []domain.Owner {
	var members []domain.Owner
	for _, o := range owners {
		if a.ClassifyPool(o) == pool {
			members = append(members, o)
		}
	}
	return members
}

// Pick selects an available owner from the pool using its strategy. Returns
// nil with a trace entry when nobody in the pool can take the lead.
func (a *Assigner) Pick(ctx context.Context, organizationID uuid.UUID, pool domain.Pool) (*domain.Owner, domain.TraceEntry, error) {
	available := make([]domain.Owner, 0, len(pool.Owners))
	for _, o := range pool.Owners {
		if o.Available() {
			available = append(available, o)
		}
	}
	if len(available) == 0 {
		return nil, domain.TraceEntry{
			Step:   domain.StepPool,
			Pool:   pool.Name,
			Result: false,
			Reason: "no available owners",
		}, nil
	}

	strategy := pool.Strategy
	if !strategy.Valid() {
		strategy = domain.StrategyRoundRobin
	}

	var chosen domain.Owner
	switch strategy {
	case domain.StrategyLeastLoaded:
		chosen = leastLoaded(available)
	case domain.StrategyWeightedRandom:
		chosen = weightedRandom(available)
	default:
		idx, err := a.state.NextIndex(ctx, organizationID, pool.Name, len(available))
		if err != nil {
			return nil, domain.TraceEntry{}, fmt.Errorf("advance pool cursor: %w", err)
		}
		chosen = available[idx]
	}

	return &chosen, domain.TraceEntry{
		Step:   domain.StepPool,
		Pool:   pool.Name,
		Result: true,
		Reason: fmt.Sprintf("selected owner %s via %s (%d/%d open)", chosen.ID, strategy, chosen.OpenLeads, chosen.Capacity),
	}, nil
}

// leastLoaded picks the owner with the fewest open leads. Ties go to the
// earlier owner in the list so results are deterministic for a given snapshot.
func leastLoaded(owners []domain.Owner) domain.Owner {
	best := owners[0]
	for _, o := range owners[1:] {
		if o.OpenLeads < best.OpenLeads {
			best = o
		}
	}
	return best
}

// weightedRandom samples owners proportionally to remaining capacity, so an
// owner with 40 free slots is twice as likely as one with 20.
func weightedRandom(owners []domain.Owner) domain.Owner {
	total := 0
	for _, o := range owners {
		total += o.Capacity - o.OpenLeads
	}
	if total <= 0 {
		return owners[rand.IntN(len(owners))]
	}
	n := rand.IntN(total)
	for _, o := range owners {
		n -= o.Capacity - o.OpenLeads
		if n < 0 {
			return o
		}
	}
	return owners[len(owners)-1]
}
