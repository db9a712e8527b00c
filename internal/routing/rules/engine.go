package rules

import (
	"fmt"
	"sort"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Engine evaluates a tenant's ordered routing rules against a lead record.
type Engine struct {
	val *validator.Validator
	log *logger.Logger
}

// NewEngine creates a rule engine.
func NewEngine(val *validator.Validator, log *logger.Logger) *Engine {
	return &Engine{val: val, log: log}
}

// Evaluate walks the enabled rules ascending by order and returns the first
// rule whose conditions all hold, or nil when none match. Every rule and
// condition evaluated is traced regardless of outcome. Structurally invalid
// rules are skipped, not fatal.
func (e *Engine) Evaluate(record map[string]any, ruleSet []domain.Rule) (*domain.Rule, []domain.TraceEntry) {
	ordered := make([]domain.Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	var trace []domain.TraceEntry
	for i := range ordered {
		rule := ordered[i]
		if !rule.Enabled {
			trace = append(trace, domain.TraceEntry{
				Step:   domain.StepRule,
				RuleID: rule.ID,
				Result: false,
				Reason: "rule disabled, skipped",
			})
			continue
		}
		if err := e.validateRule(rule); err != nil {
			e.log.Warn("malformed routing rule skipped", "ruleId", rule.ID, "error", err)
			trace = append(trace, domain.TraceEntry{
				Step:   domain.StepRule,
				RuleID: rule.ID,
				Result: false,
				Reason: fmt.Sprintf("malformed rule skipped: %v", err),
			})
			continue
		}

		matched, conditionTrace := EvaluateAll(record, rule.If)
		trace = append(trace, conditionTraceWithRule(conditionTrace, rule.ID)...)
		trace = append(trace, domain.TraceEntry{
			Step:   domain.StepRule,
			RuleID: rule.ID,
			Result: matched,
			Reason: ruleReason(rule, matched),
		})
		if matched {
			return &rule, trace
		}
	}
	return nil, trace
}

// validateRule checks the structural shape of a rule: a non-empty assignment
// target and known operators throughout.
func (e *Engine) validateRule(rule domain.Rule) error {
	if err := e.val.Struct(rule); err != nil {
		return err
	}
	for _, c := range rule.If {
		if !c.Op.Valid() {
			return fmt.Errorf("unknown operator %q", c.Op)
		}
	}
	return nil
}

func conditionTraceWithRule(entries []domain.TraceEntry, ruleID string) []domain.TraceEntry {
	for i := range entries {
		entries[i].RuleID = ruleID
	}
	return entries
}

func ruleReason(rule domain.Rule, matched bool) string {
	label := rule.Label
	if label == "" {
		label = rule.ID
	}
	if matched {
		return fmt.Sprintf("rule %q matched, assigning to %s", label, rule.Then.Assign)
	}
	return fmt.Sprintf("rule %q did not match", label)
}
