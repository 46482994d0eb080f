package domain

import (
	"fmt"
	"math"
)

// RoleDefault is the role id that always resolves to the default weights
// and thresholds. Unknown roles fall back to it silently.
const RoleDefault = "default"

// WeightTolerance is the allowed deviation when checking that component
// weights sum to 100.
const WeightTolerance = 0.01

// Tier names in resolution priority order.
const (
	TierHot          = "hot"
	TierWarm         = "warm"
	TierCool         = "cool"
	TierCold         = "cold"
	TierUnclassified = "unclassified"
)

// ScoreRange buckets a raw field value into a sub-score. Bounds are
// inclusive on both ends.
type ScoreRange struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Score float64 `json:"score"`
}

// PriorityComponent is one weighted input to the composite priority score.
// ScoreRanges take precedence over direct field mapping when both are set.
type PriorityComponent struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Weight      float64      `json:"weight"`
	Field       string       `json:"field,omitempty"`
	ScoreRanges []ScoreRange `json:"scoreRanges,omitempty"`
}

// TierRange is an inclusive score band for one tier.
type TierRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TierThresholds maps composite scores to tiers. Ranges are expected to be
// non-overlapping and exhaustive over [0,100] but the engine does not
// enforce that; gaps surface as the "unclassified" tier.
type TierThresholds struct {
	Hot  TierRange `json:"hot"`
	Warm TierRange `json:"warm"`
	Cool TierRange `json:"cool"`
	Cold TierRange `json:"cold"`
}

// RoleConfig overrides default weights and thresholds for one role.
// The override is in effect only when ComponentWeights is non-empty; a
// component id absent from a non-empty map contributes weight 0, it does
// not inherit the default weight.
type RoleConfig struct {
	ComponentWeights map[string]float64 `json:"componentWeights"`
	Thresholds       *TierThresholds    `json:"thresholds,omitempty"`
}

// DerivedField is an admin-defined computed field evaluated against the raw
// record before rules and components see it. The expression is CEL over a
// `record` map variable and is compile-checked at save time.
type DerivedField struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// ScoringConfig is the priority-scoring document for one org.
type ScoringConfig struct {
	OrgID         string                `json:"orgId,omitempty"`
	Components    []PriorityComponent   `json:"components"`
	Thresholds    TierThresholds        `json:"thresholds"`
	RoleConfigs   map[string]RoleConfig `json:"roleConfigs,omitempty"`
	DerivedFields []DerivedField        `json:"derivedFields,omitempty"`
	Version       int                   `json:"version,omitempty"`
}

// Validate enforces the write-time invariants: default weights sum to 100
// and every non-empty role override sums to 100 (tolerance 0.01). Tier
// overlap/exhaustiveness is deliberately not checked here.
func (c *ScoringConfig) Validate() error {
	var sum float64
	seen := make(map[string]bool, len(c.Components))
	for _, comp := range c.Components {
		if comp.ID == "" {
			return fmt.Errorf("%w: component id is required", ErrInvalidConfig)
		}
		if seen[comp.ID] {
			return fmt.Errorf("%w: duplicate component id %q", ErrInvalidConfig, comp.ID)
		}
		seen[comp.ID] = true
		if comp.Weight < 0 || comp.Weight > 100 {
			return fmt.Errorf("%w: component %s weight %.2f out of [0,100]", ErrInvalidConfig, comp.ID, comp.Weight)
		}
		sum += comp.Weight
	}
	if len(c.Components) > 0 && math.Abs(sum-100) > WeightTolerance {
		return fmt.Errorf("%w: component weights sum to %.2f, want 100", ErrInvalidConfig, sum)
	}

	for role, rc := range c.RoleConfigs {
		if len(rc.ComponentWeights) == 0 {
			continue // empty override inherits defaults verbatim
		}
		var roleSum float64
		for id, w := range rc.ComponentWeights {
			if !seen[id] {
				return fmt.Errorf("%w: role %s references unknown component %q", ErrInvalidConfig, role, id)
			}
			if w < 0 || w > 100 {
				return fmt.Errorf("%w: role %s weight for %s out of [0,100]", ErrInvalidConfig, role, id)
			}
			roleSum += w
		}
		if math.Abs(roleSum-100) > WeightTolerance {
			return fmt.Errorf("%w: role %s weights sum to %.2f, want 100", ErrInvalidConfig, role, roleSum)
		}
	}
	return nil
}

// DefaultScoringConfig is the seed document written on first initialization.
// Mirrors the stock dashboard setup: externally computed intent score plus a
// bucketed health score, with the standard tier bands.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Components: []PriorityComponent{
			{
				ID:     "intent",
				Name:   "Intent Score",
				Weight: 60,
				Field:  "Intent_Score__c",
			},
			{
				ID:     "health",
				Name:   "Health Score",
				Weight: 40,
				Field:  "Current_Gainsight_Score__c",
				ScoreRanges: []ScoreRange{
					{Min: 0, Max: 49, Score: 10},
					{Min: 50, Max: 100, Score: 90},
				},
			},
		},
		Thresholds: TierThresholds{
			Hot:  TierRange{Min: 85, Max: 100},
			Warm: TierRange{Min: 65, Max: 84},
			Cool: TierRange{Min: 40, Max: 64},
			Cold: TierRange{Min: 0, Max: 39},
		},
		Version: 1,
	}
}
