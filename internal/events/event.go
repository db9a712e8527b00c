// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Dedupe Domain Events
// =============================================================================

// LeadDeduplicated is published after every deduplication run, whatever the outcome.
type LeadDeduplicated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Action   string    `json:"action"` // "created", "merged", "skipped"
}

func (e LeadDeduplicated) EventName() string { return "dedupe.lead.deduplicated" }

// LeadsMerged is published when a duplicate contact is folded into a primary.
type LeadsMerged struct {
	BaseEvent
	PrimaryID     uuid.UUID `json:"primaryId"`
	DuplicateID   uuid.UUID `json:"duplicateId"`
	TenantID      uuid.UUID `json:"tenantId"`
	PreviousScore int       `json:"previousScore"`
	NewScore      int       `json:"newScore"`
	MessagesMoved int       `json:"messagesMoved"`
	EventsMoved   int       `json:"eventsMoved"`
}

func (e LeadsMerged) EventName() string { return "dedupe.leads.merged" }

// =============================================================================
// Routing Domain Events
// =============================================================================

// LeadRouted is published when a routing decision has been made for a lead.
type LeadRouted struct {
	BaseEvent
	TenantID uuid.UUID  `json:"tenantId"`
	LeadRef  string     `json:"leadRef"`
	OwnerID  *uuid.UUID `json:"ownerId,omitempty"`
	Pool     string     `json:"pool,omitempty"`
	RuleID   string     `json:"ruleId,omitempty"`
	Reason   string     `json:"reason"`
	Priority *int       `json:"priority,omitempty"`
	SLA      *int       `json:"slaMinutes,omitempty"`
}

func (e LeadRouted) EventName() string { return "routing.lead.routed" }
