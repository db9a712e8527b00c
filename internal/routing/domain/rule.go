// Package domain defines the routing bounded context's core types: rules,
// conditions, owners, pools and decision results.
package domain

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpGreaterEqual Operator = "greater_equal"
	OpLessEqual    Operator = "less_equal"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpRegex        Operator = "regex"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not_exists"
)

// Valid reports whether op is one of the defined operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterEqual,
		OpLessEqual, OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpRegex, OpIn, OpNotIn, OpExists, OpNotExists:
		return true
	}
	return false
}

// Condition is one field/operator/value predicate. Field is a dot-delimited
// path into the lead record.
type Condition struct {
	Field string   `json:"field" yaml:"field" validate:"required"`
	Op    Operator `json:"op" yaml:"op" validate:"required"`
	Value any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// AlertSpec describes an alert to dispatch when a rule fires.
type AlertSpec struct {
	Channel string `json:"channel" yaml:"channel" validate:"required"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ThenClause is the consequence of a matched rule.
type ThenClause struct {
	// Assign is a pool name or a direct owner reference.
	Assign   string     `json:"assign" yaml:"assign" validate:"required"`
	Priority *int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	Alert    *AlertSpec `json:"alert,omitempty" yaml:"alert,omitempty"`
	Webhook  string     `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	// SLA is the response target in minutes.
	SLA *int `json:"sla,omitempty" yaml:"sla,omitempty"`
}

// Rule is one tenant-owned routing rule. Rules are evaluated ascending by
// Order; the first rule whose conditions all hold wins.
type Rule struct {
	ID      string      `json:"id" yaml:"id" validate:"required"`
	Label   string      `json:"label,omitempty" yaml:"label,omitempty"`
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Order   int         `json:"order" yaml:"order"`
	If      []Condition `json:"if" yaml:"if" validate:"dive"`
	Then    ThenClause  `json:"then" yaml:"then"`
}
