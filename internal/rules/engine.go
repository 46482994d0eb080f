package rules

import (
	"github.com/opensource-crm/kestrel/internal/domain"
)

// EvaluateRules evaluates a rule set against one record and collects the
// flags of every rule that fires. Only active rules whose objectType matches
// are considered; duplicate flags across rules collapse. The result is
// deterministic for a given (rules, record) pair and the record is never
// mutated.
//
// The function is pure: configuration freshness is the caller's concern.
// Per-request paths load the rule set from the store each time; batch runs
// hold one snapshot for the whole pass so a racing admin edit cannot split
// a run's results.
func EvaluateRules(rules []*domain.RiskRule, record domain.Record, objectType domain.ObjectType) []domain.Flag {
	seen := make(map[domain.Flag]bool, 3)
	var flags []domain.Flag

	for _, rule := range rules {
		if !rule.Active || rule.ObjectType != objectType {
			continue
		}
		if RuleFires(rule, record) && !seen[rule.Flag] {
			seen[rule.Flag] = true
			flags = append(flags, rule.Flag)
		}
	}

	return flags
}

// RuleFires reduces a rule's conditions with its logic. AND short-circuits
// on the first false, OR on the first true. A rule with no conditions never
// fires, which keeps an accidentally emptied rule from matching everything.
func RuleFires(rule *domain.RiskRule, record domain.Record) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	switch rule.Logic {
	case domain.LogicOr:
		for _, cond := range rule.Conditions {
			if EvaluateCondition(cond, record) {
				return true
			}
		}
		return false
	case domain.LogicAnd:
		for _, cond := range rule.Conditions {
			if !EvaluateCondition(cond, record) {
				return false
			}
		}
		return true
	default:
		// Unknown logic is a malformed rule; skip it rather than guess.
		return false
	}
}
