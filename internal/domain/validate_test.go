package domain

import (
	"errors"
	"testing"
)

func TestScoringConfigWeightSum(t *testing.T) {
	cfg := DefaultScoringConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	// Drift within tolerance is accepted
	cfg.Components[0].Weight = 60.005
	cfg.Components[1].Weight = 40.0
	if err := cfg.Validate(); err != nil {
		t.Errorf("sum within tolerance should validate: %v", err)
	}

	// Outside tolerance is rejected
	cfg.Components[0].Weight = 70
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for weights summing to 110")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestScoringConfigDuplicateComponent(t *testing.T) {
	cfg := &ScoringConfig{
		Components: []PriorityComponent{
			{ID: "a", Weight: 50},
			{ID: "a", Weight: 50},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate component id")
	}
}

func TestScoringConfigRoleOverrides(t *testing.T) {
	cfg := DefaultScoringConfig()

	// Empty override is allowed (inherits defaults)
	cfg.RoleConfigs = map[string]RoleConfig{"viewer": {}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty role override should validate: %v", err)
	}

	// Non-empty override must sum to 100
	cfg.RoleConfigs = map[string]RoleConfig{
		"csm": {ComponentWeights: map[string]float64{"health": 70}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for role weights summing to 70")
	}

	// Override must reference known components
	cfg.RoleConfigs = map[string]RoleConfig{
		"csm": {ComponentWeights: map[string]float64{"unknown": 100}},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown component in role override")
	}

	cfg.RoleConfigs = map[string]RoleConfig{
		"csm": {ComponentWeights: map[string]float64{"health": 60, "intent": 40}},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid role override rejected: %v", err)
	}
}

func TestRiskRuleValidate(t *testing.T) {
	rule := &RiskRule{
		ID:         "r1",
		Name:       "Low health",
		ObjectType: ObjectAccount,
		Conditions: []Condition{{Field: "Health__c", Operator: OpLessThan, Value: 40}},
		Logic:      LogicAnd,
		Flag:       FlagCritical,
		Active:     true,
	}
	if err := rule.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	bad := *rule
	bad.ObjectType = "Contact"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unsupported object type")
	}

	bad = *rule
	bad.Logic = "XOR"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown logic")
	}

	bad = *rule
	bad.Flag = "panic"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown flag")
	}

	bad = *rule
	bad.Conditions = nil
	if err := bad.Validate(); err == nil {
		t.Error("expected error for active rule without conditions")
	}

	// Inactive rules may be saved empty (draft state)
	bad.Active = false
	if err := bad.Validate(); err != nil {
		t.Errorf("inactive rule without conditions should validate: %v", err)
	}
}

func TestRecordGetTreatsNullAsAbsent(t *testing.T) {
	r := Record{"A": 1.0, "B": nil}

	if _, ok := r.Get("A"); !ok {
		t.Error("expected A present")
	}
	if _, ok := r.Get("B"); ok {
		t.Error("expected null B reported absent")
	}
	if _, ok := r.Get("C"); ok {
		t.Error("expected missing C reported absent")
	}
}
