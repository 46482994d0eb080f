package domain

import "fmt"

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals       Operator = "="
	OpNotEquals    Operator = "!="
	OpLessThan     Operator = "<"
	OpGreaterThan  Operator = ">"
	OpLessOrEqual  Operator = "<="
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT IN"
	OpContains     Operator = "contains"
)

// Logic combines a rule's conditions.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Flag is the outcome attached to a record by a fired risk rule.
type Flag string

const (
	FlagAtRisk   Flag = "at-risk"
	FlagCritical Flag = "critical"
	FlagWarning  Flag = "warning"
)

// Condition is an atomic comparison of one record field against a literal.
// Value is a scalar for comparison operators and a list for IN / NOT IN.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// RiskRule is an admin-authored rule that attaches a Flag to matching records.
// Condition order is preserved for display; AND/OR evaluation is commutative.
type RiskRule struct {
	ID         string      `json:"id"`
	OrgID      string      `json:"orgId,omitempty"`
	Name       string      `json:"name"`
	ObjectType ObjectType  `json:"objectType"`
	Conditions []Condition `json:"conditions"`
	Logic      Logic       `json:"logic"`
	Flag       Flag        `json:"flag"`
	Active     bool        `json:"active"`
}

// Validate enforces the write-time invariants for a risk rule. Evaluation
// itself tolerates anything that slips past this (malformed conditions
// evaluate to false), so validation only has to gate the admin API.
func (r *RiskRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidConfig)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidConfig)
	}
	if !r.ObjectType.Valid() {
		return fmt.Errorf("%w: objectType must be Account or Opportunity, got %q", ErrInvalidConfig, r.ObjectType)
	}
	if r.Logic != LogicAnd && r.Logic != LogicOr {
		return fmt.Errorf("%w: logic must be AND or OR, got %q", ErrInvalidConfig, r.Logic)
	}
	switch r.Flag {
	case FlagAtRisk, FlagCritical, FlagWarning:
	default:
		return fmt.Errorf("%w: unknown flag %q", ErrInvalidConfig, r.Flag)
	}
	if r.Active {
		if len(r.Conditions) == 0 {
			return fmt.Errorf("%w: active rule %s has no conditions", ErrInvalidConfig, r.ID)
		}
		for i, c := range r.Conditions {
			if c.Field == "" {
				return fmt.Errorf("%w: rule %s condition %d has an empty field", ErrInvalidConfig, r.ID, i)
			}
		}
	}
	return nil
}
