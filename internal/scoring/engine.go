package scoring

import (
	"math"

	"github.com/opensource-crm/kestrel/internal/domain"
)

// Result is the outcome of one composite scoring computation.
type Result struct {
	Score int    `json:"score"`
	Tier  string `json:"tier"`

	// Contributions records each component's sub-score and effective weight
	// for explainability on the dashboard.
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Contribution shows how a single component contributed to the composite.
type Contribution struct {
	ComponentID string  `json:"componentId"`
	SubScore    float64 `json:"subScore"`
	Weight      float64 `json:"weight"`
	Weighted    float64 `json:"weighted"` // subScore * weight / 100
}

// ComputeScore resolves the effective weights and thresholds for a role,
// scores every configured component, and maps the composite into a tier.
// Pure and stateless: two calls with the same config and record always
// agree, and racing an admin's config update is legitimate — each call sees
// whichever point-in-time snapshot it was handed.
func ComputeScore(cfg *domain.ScoringConfig, record domain.Record, role string) Result {
	weights := ResolveWeights(cfg, role)
	thresholds := ResolveThresholds(cfg, role)

	var composite float64
	contributions := make([]Contribution, 0, len(cfg.Components))

	for _, comp := range cfg.Components {
		// A component id absent from a non-empty role override carries
		// weight 0 by policy; a config that slipped past write-time
		// validation degrades the same way instead of crashing.
		weight := weights[comp.ID]
		sub := ScoreComponent(comp, record)
		weighted := sub * weight / 100

		composite += weighted
		contributions = append(contributions, Contribution{
			ComponentID: comp.ID,
			SubScore:    sub,
			Weight:      weight,
			Weighted:    weighted,
		})
	}

	score := int(clamp(math.Round(composite), 0, 100))

	return Result{
		Score:         score,
		Tier:          ResolveTier(thresholds, float64(score)),
		Contributions: contributions,
	}
}

// ResolveWeights returns the effective componentId→weight map for a role.
// The default weights apply for role "default", for unknown roles, and for
// roles whose override map is empty. A non-empty override replaces the
// defaults wholesale: omitted components score with weight 0, they do not
// inherit.
func ResolveWeights(cfg *domain.ScoringConfig, role string) map[string]float64 {
	if role != domain.RoleDefault {
		if rc, ok := cfg.RoleConfigs[role]; ok && len(rc.ComponentWeights) > 0 {
			return rc.ComponentWeights
		}
	}

	weights := make(map[string]float64, len(cfg.Components))
	for _, comp := range cfg.Components {
		weights[comp.ID] = comp.Weight
	}
	return weights
}

// ResolveThresholds returns the effective tier thresholds for a role, with
// the same fallback pattern as ResolveWeights: a role override applies only
// when the role has an active (non-empty) weight override and sets its own
// thresholds.
func ResolveThresholds(cfg *domain.ScoringConfig, role string) domain.TierThresholds {
	if role != domain.RoleDefault {
		if rc, ok := cfg.RoleConfigs[role]; ok && len(rc.ComponentWeights) > 0 && rc.Thresholds != nil {
			return *rc.Thresholds
		}
	}
	return cfg.Thresholds
}

// ResolveTier maps a composite score to a tier, checking hot, warm, cool,
// cold in that fixed priority order with inclusive bounds. A score covered
// by no configured range returns the "unclassified" sentinel so callers can
// surface the config gap instead of silently mis-tiering.
func ResolveTier(t domain.TierThresholds, score float64) string {
	ordered := []struct {
		name string
		r    domain.TierRange
	}{
		{domain.TierHot, t.Hot},
		{domain.TierWarm, t.Warm},
		{domain.TierCool, t.Cool},
		{domain.TierCold, t.Cold},
	}
	for _, tier := range ordered {
		if score >= tier.r.Min && score <= tier.r.Max {
			return tier.name
		}
	}
	return domain.TierUnclassified
}
