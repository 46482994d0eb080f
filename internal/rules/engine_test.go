package rules

import (
	"testing"

	"github.com/opensource-crm/kestrel/internal/domain"
)

func makeRule(id string, logic domain.Logic, flag domain.Flag, conds ...domain.Condition) *domain.RiskRule {
	return &domain.RiskRule{
		ID:         id,
		Name:       id,
		ObjectType: domain.ObjectAccount,
		Conditions: conds,
		Logic:      logic,
		Flag:       flag,
		Active:     true,
	}
}

func TestLowHealthScoreFlagsCritical(t *testing.T) {
	rule := makeRule("low-health", domain.LogicAnd, domain.FlagCritical,
		domain.Condition{Field: "Current_Gainsight_Score__c", Operator: domain.OpLessThan, Value: 40},
	)

	record := domain.Record{"Current_Gainsight_Score__c": 35.0}
	flags := EvaluateRules([]*domain.RiskRule{rule}, record, domain.ObjectAccount)
	if len(flags) != 1 || flags[0] != domain.FlagCritical {
		t.Fatalf("expected [critical], got %v", flags)
	}

	record = domain.Record{"Current_Gainsight_Score__c": 45.0}
	flags = EvaluateRules([]*domain.RiskRule{rule}, record, domain.ObjectAccount)
	if len(flags) != 0 {
		t.Fatalf("expected no flags for healthy score, got %v", flags)
	}
}

func TestAndLogicRequiresAllConditions(t *testing.T) {
	rule := makeRule("stale-big-deal", domain.LogicAnd, domain.FlagAtRisk,
		domain.Condition{Field: "Amount", Operator: domain.OpGreaterThan, Value: 100000},
		domain.Condition{Field: "Days_Since_Last_Activity__c", Operator: domain.OpGreaterThan, Value: 30},
	)

	record := domain.Record{"Amount": 250000.0, "Days_Since_Last_Activity__c": 45.0}
	if !RuleFires(rule, record) {
		t.Error("expected rule to fire with both conditions true")
	}

	record = domain.Record{"Amount": 250000.0, "Days_Since_Last_Activity__c": 10.0}
	if RuleFires(rule, record) {
		t.Error("expected rule not to fire with one condition false")
	}

	// Missing field fails the AND
	record = domain.Record{"Amount": 250000.0}
	if RuleFires(rule, record) {
		t.Error("expected rule not to fire with missing field")
	}
}

func TestOrLogicFiresOnAnyCondition(t *testing.T) {
	rule := makeRule("any-risk-signal", domain.LogicOr, domain.FlagWarning,
		domain.Condition{Field: "Current_Gainsight_Score__c", Operator: domain.OpLessThan, Value: 40},
		domain.Condition{Field: "Open_Case_Count__c", Operator: domain.OpGreaterThan, Value: 5},
	)

	record := domain.Record{"Current_Gainsight_Score__c": 90.0, "Open_Case_Count__c": 8.0}
	if !RuleFires(rule, record) {
		t.Error("expected OR rule to fire on second condition")
	}

	record = domain.Record{"Current_Gainsight_Score__c": 90.0, "Open_Case_Count__c": 2.0}
	if RuleFires(rule, record) {
		t.Error("expected OR rule not to fire with no true condition")
	}
}

func TestEmptyConditionsNeverFires(t *testing.T) {
	rule := makeRule("emptied", domain.LogicOr, domain.FlagWarning)
	if RuleFires(rule, domain.Record{"Anything": 1.0}) {
		t.Error("rule with no conditions must never fire")
	}

	rule.Logic = domain.LogicAnd
	if RuleFires(rule, domain.Record{"Anything": 1.0}) {
		t.Error("AND rule with no conditions must never fire")
	}
}

func TestUnknownLogicSkipsRule(t *testing.T) {
	rule := makeRule("bad-logic", "XOR", domain.FlagWarning,
		domain.Condition{Field: "X", Operator: domain.OpEquals, Value: 1},
	)
	if RuleFires(rule, domain.Record{"X": 1.0}) {
		t.Error("rule with unknown logic must not fire")
	}
}

func TestInactiveAndMismatchedRulesSkipped(t *testing.T) {
	matching := makeRule("account-rule", domain.LogicAnd, domain.FlagAtRisk,
		domain.Condition{Field: "Score__c", Operator: domain.OpLessThan, Value: 50},
	)

	inactive := makeRule("disabled", domain.LogicAnd, domain.FlagCritical,
		domain.Condition{Field: "Score__c", Operator: domain.OpLessThan, Value: 50},
	)
	inactive.Active = false

	oppRule := makeRule("opp-rule", domain.LogicAnd, domain.FlagWarning,
		domain.Condition{Field: "Score__c", Operator: domain.OpLessThan, Value: 50},
	)
	oppRule.ObjectType = domain.ObjectOpportunity

	record := domain.Record{"Score__c": 20.0}
	flags := EvaluateRules([]*domain.RiskRule{matching, inactive, oppRule}, record, domain.ObjectAccount)

	if len(flags) != 1 || flags[0] != domain.FlagAtRisk {
		t.Fatalf("expected only the active Account rule to fire, got %v", flags)
	}
}

func TestDuplicateFlagsCollapse(t *testing.T) {
	r1 := makeRule("rule-a", domain.LogicAnd, domain.FlagAtRisk,
		domain.Condition{Field: "Score__c", Operator: domain.OpLessThan, Value: 50},
	)
	r2 := makeRule("rule-b", domain.LogicAnd, domain.FlagAtRisk,
		domain.Condition{Field: "Score__c", Operator: domain.OpLessThan, Value: 60},
	)

	record := domain.Record{"Score__c": 20.0}
	flags := EvaluateRules([]*domain.RiskRule{r1, r2}, record, domain.ObjectAccount)

	if len(flags) != 1 {
		t.Fatalf("expected duplicate flags to collapse, got %v", flags)
	}
}

func TestEvaluationIsDeterministic(t *testing.T) {
	rule := makeRule("det", domain.LogicOr, domain.FlagWarning,
		domain.Condition{Field: "A", Operator: domain.OpEquals, Value: 1},
		domain.Condition{Field: "B", Operator: domain.OpEquals, Value: 2},
	)
	record := domain.Record{"A": 1.0}

	first := EvaluateRules([]*domain.RiskRule{rule}, record, domain.ObjectAccount)
	for i := 0; i < 10; i++ {
		got := EvaluateRules([]*domain.RiskRule{rule}, record, domain.ObjectAccount)
		if len(got) != len(first) {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}
