// Package dedupe provides the deduplication bounded context.
// This file defines the public API of the context. Only types and interfaces
// defined here should be imported by other domains.
package dedupe

import (
	"context"

	"leadflow_backend/internal/dedupe/finder"
	"leadflow_backend/internal/dedupe/keys"
	"leadflow_backend/internal/dedupe/merge"
	"leadflow_backend/internal/dedupe/service"
	"leadflow_backend/internal/leads"

	"github.com/google/uuid"
)

// Re-export the context's result and configuration types for callers.
type (
	Action      = service.Action
	Options     = service.Options
	Outcome     = service.Outcome
	MergeResult = service.MergeResult
	KeySet      = keys.KeySet
	Policy      = finder.Policy
	Strategy    = merge.Strategy
)

const (
	ActionCreated = service.ActionCreated
	ActionMerged  = service.ActionMerged
	ActionSkipped = service.ActionSkipped
)

// DefaultOptions returns the standard policy and merge strategy.
func DefaultOptions() Options {
	return Options{
		Policy:   finder.DefaultPolicy(),
		Strategy: merge.DefaultStrategy(),
	}
}

// Service defines the public interface for deduplication operations.
// Other domains should depend on this interface, not on concrete
// implementations.
type Service interface {
	// BuildKeys derives the dedupe fingerprint for a lead.
	BuildKeys(lead leads.IncomingLead) KeySet
	// DeduplicateLead ingests one lead, creating or merging as needed.
	DeduplicateLead(ctx context.Context, lead leads.IncomingLead, organizationID uuid.UUID, opts Options) (Outcome, error)
}
