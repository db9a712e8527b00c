// Package routing provides the lead routing bounded context.
// This file defines the public API of the context. Only types and interfaces
// defined here should be imported by other domains.
package routing

import (
	"context"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/routing/domain"
)

// Re-export the context's rule and result types for callers.
type (
	Rule       = domain.Rule
	Condition  = domain.Condition
	ThenClause = domain.ThenClause
	Operator   = domain.Operator
	Owner      = domain.Owner
	Pool       = domain.Pool
	Strategy   = domain.Strategy
	Result     = domain.Result
	TraceEntry = domain.TraceEntry
	Alert      = domain.Alert
)

// Service defines the public interface for routing operations.
// Other domains should depend on this interface, not on concrete
// implementations.
type Service interface {
	// Route evaluates the tenant's rule set against a lead and returns the
	// assignment decision with its full trace.
	Route(ctx context.Context, lead leads.Lead, ruleSet []Rule) (*Result, error)
}
