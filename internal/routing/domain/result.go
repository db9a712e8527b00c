package domain

import "github.com/google/uuid"

// TraceStep identifies the kind of decision a trace entry records.
type TraceStep string

const (
	StepRule      TraceStep = "rule"
	StepCondition TraceStep = "condition"
	StepPool      TraceStep = "pool"
	StepFallback  TraceStep = "fallback"
)

// TraceEntry is one step in the decision trace. Entries are appended in
// evaluation order and kept regardless of outcome so a decision can be
// replayed from its audit log.
type TraceEntry struct {
	Step   TraceStep `json:"step"`
	RuleID string    `json:"ruleId,omitempty"`
	Field  string    `json:"field,omitempty"`
	Op     Operator  `json:"op,omitempty"`
	Value  any       `json:"value,omitempty"`
	Pool   string    `json:"pool,omitempty"`
	Result bool      `json:"result"`
	Reason string    `json:"reason"`
}

// Alert is a resolved alert directive ready for dispatch.
type Alert struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
	Webhook string `json:"webhook,omitempty"`
}

// Result is the outcome of one routing call. Produced fresh per call and
// never persisted by the engine itself.
type Result struct {
	OwnerID    *uuid.UUID   `json:"ownerId"`
	Pool       string       `json:"pool,omitempty"`
	RuleID     string       `json:"ruleId,omitempty"`
	Reason     string       `json:"reason"`
	Priority   *int         `json:"priority,omitempty"`
	SLAMinutes *int         `json:"slaMinutes,omitempty"`
	Alerts     []Alert      `json:"alerts,omitempty"`
	Trace      []TraceEntry `json:"trace"`
}
