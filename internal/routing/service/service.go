// Package service orchestrates routing decisions: rule evaluation, pool
// assignment, the fallback chain and decision auditing.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/internal/routing/pools"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/internal/routing/rules"
	"leadflow_backend/platform/logger"
)

// OwnerStore is the roster access the orchestrator needs.
type OwnerStore interface {
	ListOwners(ctx context.Context, organizationID uuid.UUID) ([]domain.Owner, error)
	GetPoolStrategy(ctx context.Context, organizationID uuid.UUID, pool string) (domain.Strategy, error)
	// GetDefaultPool returns the tenant-designated fallback pool, or
	// repository.ErrPoolNotFound when the tenant has not designated one.
	GetDefaultPool(ctx context.Context, organizationID uuid.UUID) (string, error)
}

// AlertDispatcher pushes resolved alerts onto the task queue.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, organizationID, leadID uuid.UUID, ruleID string, resolved []domain.Alert)
}

// RoutingService decides where a lead goes. Decisions are pure with respect to
// the lead itself; the caller persists the resulting assignment.
type RoutingService struct {
	engine     *rules.Engine
	assigner   *pools.Assigner
	store      OwnerStore
	dispatcher AlertDispatcher
	bus        events.Bus
	log        *logger.Logger
}

func NewRoutingService(
	engine *rules.Engine,
	assigner *pools.Assigner,
	store OwnerStore,
	dispatcher AlertDispatcher,
	bus events.Bus,
	log *logger.Logger,
) *RoutingService {
	return &RoutingService{
		engine:     engine,
		assigner:   assigner,
		store:      store,
		dispatcher: dispatcher,
		bus:        bus,
		log:        log,
	}
}

// Route evaluates the tenant's rules against the lead and picks an owner.
// Every call produces a Result with a full trace, even when the outcome is
// "unassigned". Store failures degrade to the fallback chain instead of
// surfacing; the returned error is reserved for caller misuse.
func (s *RoutingService) Route(ctx context.Context, lead leads.Lead, ruleSet []domain.Rule) (*domain.Result, error) {
	log := s.log.WithContext(ctx)

	record := lead.Record()
	rule, trace := s.engine.Evaluate(record, ruleSet)

	result := &domain.Result{Trace: trace}

	owners, err := s.store.ListOwners(ctx, lead.OrganizationID)
	if err != nil {
		log.StoreError("list owners", err)
		result.Reason = "owner roster unavailable, lead left unassigned"
		result.Trace = append(result.Trace, domain.TraceEntry{
			Step:   domain.StepFallback,
			Result: false,
			Reason: result.Reason,
		})
		if rule != nil {
			result.RuleID = rule.ID
			result.Priority = rule.Then.Priority
			result.SLAMinutes = rule.Then.SLA
			result.Alerts = resolveAlerts(lead, *rule)
		}
		s.finish(ctx, lead, result)
		return result, nil
	}

	if rule != nil {
		result.RuleID = rule.ID
		result.Priority = rule.Then.Priority
		result.SLAMinutes = rule.Then.SLA
		result.Alerts = resolveAlerts(lead, *rule)

		owner, entry := s.assignTarget(ctx, lead.OrganizationID, owners, rule.Then.Assign)
		result.Trace = append(result.Trace, entry)
		if owner != nil {
			result.OwnerID = &owner.ID
			result.Pool = s.assigner.ClassifyPool(*owner)
			result.Reason = fmt.Sprintf("rule %s matched, assigned to %s", rule.ID, owner.Name)
			s.finish(ctx, lead, result)
			return result, nil
		}
	}

	s.fallback(ctx, lead.OrganizationID, owners, result)
	s.finish(ctx, lead, result)
	return result, nil
}

// assignTarget resolves a rule's assignment target, which is either a direct
// owner UUID or a pool name.
func (s *RoutingService) assignTarget(ctx context.Context, organizationID uuid.UUID, owners []domain.Owner, target string) (*domain.Owner, domain.TraceEntry) {
	if ownerID, ok := pools.IsDirectOwner(target); ok {
		for _, o := range owners {
			if o.ID != ownerID {
				continue
			}
			if o.Available() {
				return &o, domain.TraceEntry{
					Step:   domain.StepPool,
					Result: true,
					Reason: fmt.Sprintf("direct assignment to owner %s", o.Name),
				}
			}
			return nil, domain.TraceEntry{
				Step:   domain.StepPool,
				Result: false,
				Reason: fmt.Sprintf("owner %s at capacity or inactive", o.Name),
			}
		}
		return nil, domain.TraceEntry{
			Step:   domain.StepPool,
			Result: false,
			Reason: fmt.Sprintf("owner %s not found in roster", ownerID),
		}
	}
	return s.pickFromPool(ctx, organizationID, owners, target)
}

// pickFromPool selects from the named pool. Store and cursor failures degrade:
// a missing strategy falls back to round robin and a cursor failure yields no
// owner with a failing trace entry, engaging the fallback chain.
func (s *RoutingService) pickFromPool(ctx context.Context, organizationID uuid.UUID, owners []domain.Owner, poolName string) (*domain.Owner, domain.TraceEntry) {
	strategy, err := s.store.GetPoolStrategy(ctx, organizationID, poolName)
	if err != nil {
		s.log.StoreError("pool strategy lookup", err)
		strategy = domain.StrategyRoundRobin
	}
	pool := domain.Pool{
		Name:     poolName,
		Strategy: strategy,
		Owners:   s.assigner.Members(owners, poolName),
	}
	owner, entry, err := s.assigner.Pick(ctx, organizationID, pool)
	if err != nil {
		s.log.StoreError("pool cursor", err)
		return nil, domain.TraceEntry{
			Step:   domain.StepPool,
			Pool:   poolName,
			Result: false,
			Reason: "pool state unavailable",
		}
	}
	return owner, entry
}

// fallback walks the degradation chain: the tenant's default pool first, then
// any available owner tenant-wide, and finally an explicit unassigned outcome.
func (s *RoutingService) fallback(ctx context.Context, organizationID uuid.UUID, owners []domain.Owner, result *domain.Result) {
	defaultPool := s.defaultPool(ctx, organizationID)
	owner, entry := s.pickFromPool(ctx, organizationID, owners, defaultPool)
	entry.Step = domain.StepFallback
	result.Trace = append(result.Trace, entry)
	if owner != nil {
		result.OwnerID = &owner.ID
		result.Pool = defaultPool
		result.Reason = fmt.Sprintf("no rule assigned an owner, fell back to pool %s", defaultPool)
		return
	}

	for _, o := range owners {
		if !o.Available() {
			continue
		}
		result.OwnerID = &o.ID
		result.Pool = s.assigner.ClassifyPool(o)
		result.Reason = fmt.Sprintf("default pool exhausted, assigned first available owner %s", o.Name)
		result.Trace = append(result.Trace, domain.TraceEntry{
			Step:   domain.StepFallback,
			Pool:   result.Pool,
			Result: true,
			Reason: result.Reason,
		})
		return
	}

	result.OwnerID = nil
	result.Pool = ""
	result.Reason = "no owners available, lead left unassigned"
	result.Trace = append(result.Trace, domain.TraceEntry{
		Step:   domain.StepFallback,
		Result: false,
		Reason: result.Reason,
	})
}

// defaultPool resolves the tenant-designated default pool, degrading to the
// configured process-wide default when the tenant has none or the lookup
// fails.
func (s *RoutingService) defaultPool(ctx context.Context, organizationID uuid.UUID) string {
	name, err := s.store.GetDefaultPool(ctx, organizationID)
	if err != nil {
		if !errors.Is(err, repository.ErrPoolNotFound) {
			s.log.StoreError("default pool lookup", err)
		}
		return s.assigner.DefaultPool()
	}
	if name == "" {
		return s.assigner.DefaultPool()
	}
	return name
}

// finish emits the side effects of a completed decision: alert dispatch, the
// domain event, and the decision log line.
func (s *RoutingService) finish(ctx context.Context, lead leads.Lead, result *domain.Result) {
	if len(result.Alerts) > 0 && s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, lead.OrganizationID, lead.ID, result.RuleID, result.Alerts)
	}

	ownerRef := "unassigned"
	if result.OwnerID != nil {
		ownerRef = result.OwnerID.String()
	}
	s.log.WithContext(ctx).RoutingDecision(lead.ID.String(), ownerRef, result.Pool, result.Reason)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadRouted{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  lead.OrganizationID,
			LeadRef:   lead.ID.String(),
			OwnerID:   result.OwnerID,
			Pool:      result.Pool,
			RuleID:    result.RuleID,
			Reason:    result.Reason,
			Priority:  result.Priority,
			SLA:       result.SLAMinutes,
		})
	}
}

// resolveAlerts renders the matched rule's alert directives against the lead.
func resolveAlerts(lead leads.Lead, rule domain.Rule) []domain.Alert {
	var alerts []domain.Alert
	if rule.Then.Alert != nil {
		message := rule.Then.Alert.Message
		if message == "" {
			message = fmt.Sprintf("lead %s (%s) matched rule %s", lead.Name, lead.Email, rule.ID)
		}
		alerts = append(alerts, domain.Alert{
			Channel: rule.Then.Alert.Channel,
			Message: message,
		})
	}
	if rule.Then.Webhook != "" {
		alerts = append(alerts, domain.Alert{
			Channel: "webhook",
			Webhook: rule.Then.Webhook,
		})
	}
	return alerts
}
