package scoring

import (
	"testing"

	"github.com/opensource-crm/kestrel/internal/domain"
)

func stockConfig() *domain.ScoringConfig {
	return domain.DefaultScoringConfig()
}

func TestCompositeScoreWithRanges(t *testing.T) {
	cfg := stockConfig()
	record := domain.Record{
		"Intent_Score__c":            80.0,
		"Current_Gainsight_Score__c": 72.0,
	}

	// intent: 80 * 60% = 48; health: 72 buckets to 90, 90 * 40% = 36
	result := ComputeScore(cfg, record, domain.RoleDefault)
	if result.Score != 84 {
		t.Fatalf("expected composite 84, got %d", result.Score)
	}
	if result.Tier != domain.TierWarm {
		t.Errorf("expected tier warm for 84, got %s", result.Tier)
	}
}

func TestRoleOverrideReplacesWeightsWholesale(t *testing.T) {
	cfg := stockConfig()
	cfg.RoleConfigs = map[string]domain.RoleConfig{
		"csm": {
			// health only: intent is omitted, so it carries weight 0
			ComponentWeights: map[string]float64{"health": 100},
		},
	}

	record := domain.Record{
		"Intent_Score__c":            80.0,
		"Current_Gainsight_Score__c": 72.0,
	}

	result := ComputeScore(cfg, record, "csm")
	// health sub-score 90 at weight 100 = 90; intent contributes nothing
	if result.Score != 90 {
		t.Fatalf("expected 90 for csm role, got %d", result.Score)
	}
	if result.Tier != domain.TierHot {
		t.Errorf("expected tier hot for 90, got %s", result.Tier)
	}
}

func TestUnknownRoleFallsBackToDefaults(t *testing.T) {
	cfg := stockConfig()
	cfg.RoleConfigs = map[string]domain.RoleConfig{
		"csm": {ComponentWeights: map[string]float64{"health": 100}},
	}

	record := domain.Record{
		"Intent_Score__c":            80.0,
		"Current_Gainsight_Score__c": 72.0,
	}

	defaultResult := ComputeScore(cfg, record, domain.RoleDefault)
	unknownResult := ComputeScore(cfg, record, "intern")

	if unknownResult.Score != defaultResult.Score || unknownResult.Tier != defaultResult.Tier {
		t.Errorf("unknown role should score like default: got %d/%s, want %d/%s",
			unknownResult.Score, unknownResult.Tier, defaultResult.Score, defaultResult.Tier)
	}
}

func TestEmptyRoleOverrideInheritsDefaults(t *testing.T) {
	cfg := stockConfig()
	cfg.RoleConfigs = map[string]domain.RoleConfig{
		"viewer": {}, // no weights set
	}

	record := domain.Record{"Intent_Score__c": 80.0, "Current_Gainsight_Score__c": 72.0}

	got := ComputeScore(cfg, record, "viewer")
	want := ComputeScore(cfg, record, domain.RoleDefault)
	if got.Score != want.Score {
		t.Errorf("empty override should inherit defaults: got %d, want %d", got.Score, want.Score)
	}
}

func TestThresholdOverrideGatedOnWeights(t *testing.T) {
	cfg := stockConfig()
	tight := &domain.TierThresholds{
		Hot:  domain.TierRange{Min: 95, Max: 100},
		Warm: domain.TierRange{Min: 80, Max: 94},
		Cool: domain.TierRange{Min: 50, Max: 79},
		Cold: domain.TierRange{Min: 0, Max: 49},
	}
	cfg.RoleConfigs = map[string]domain.RoleConfig{
		// Thresholds only, no weight override: the whole role config is inert
		"exec": {Thresholds: tight},
		// Active weight override with thresholds: both apply
		"csm": {
			ComponentWeights: map[string]float64{"intent": 50, "health": 50},
			Thresholds:       tight,
		},
	}

	record := domain.Record{"Intent_Score__c": 80.0, "Current_Gainsight_Score__c": 72.0}

	// exec scores with defaults: 84 → warm under default thresholds
	result := ComputeScore(cfg, record, "exec")
	if result.Score != 84 || result.Tier != domain.TierWarm {
		t.Errorf("inert override should use defaults: got %d/%s", result.Score, result.Tier)
	}

	// csm: 80*0.5 + 90*0.5 = 85 → warm under the tight thresholds, not hot
	result = ComputeScore(cfg, record, "csm")
	if result.Score != 85 {
		t.Fatalf("expected 85 for csm, got %d", result.Score)
	}
	if result.Tier != domain.TierWarm {
		t.Errorf("expected warm under tightened thresholds, got %s", result.Tier)
	}
}

func TestMissingComponentFieldContributesZero(t *testing.T) {
	cfg := stockConfig()
	record := domain.Record{"Intent_Score__c": 80.0} // no health field

	result := ComputeScore(cfg, record, domain.RoleDefault)
	// 80 * 60% = 48, health contributes 0
	if result.Score != 48 {
		t.Errorf("expected 48 with missing health field, got %d", result.Score)
	}
	if result.Tier != domain.TierCool {
		t.Errorf("expected cool for 48, got %s", result.Tier)
	}
}

func TestScoreClampedToBounds(t *testing.T) {
	cfg := &domain.ScoringConfig{
		Components: []domain.PriorityComponent{
			{ID: "raw", Weight: 100, Field: "Raw__c"},
		},
		Thresholds: stockConfig().Thresholds,
	}

	// Field mode clamps out-of-range values
	result := ComputeScore(cfg, domain.Record{"Raw__c": 250.0}, domain.RoleDefault)
	if result.Score != 100 {
		t.Errorf("expected clamp to 100, got %d", result.Score)
	}

	result = ComputeScore(cfg, domain.Record{"Raw__c": -30.0}, domain.RoleDefault)
	if result.Score != 0 {
		t.Errorf("expected clamp to 0, got %d", result.Score)
	}
}

func TestTierResolutionGapsAreUnclassified(t *testing.T) {
	thresholds := domain.TierThresholds{
		Hot:  domain.TierRange{Min: 90, Max: 100},
		Warm: domain.TierRange{Min: 70, Max: 89},
		// gap between 40 and 69
		Cool: domain.TierRange{Min: 0, Max: 0},
		Cold: domain.TierRange{Min: 0, Max: 39},
	}

	if got := ResolveTier(thresholds, 95); got != domain.TierHot {
		t.Errorf("expected hot for 95, got %s", got)
	}
	if got := ResolveTier(thresholds, 70); got != domain.TierWarm {
		t.Errorf("expected warm for inclusive lower bound, got %s", got)
	}
	if got := ResolveTier(thresholds, 89); got != domain.TierWarm {
		t.Errorf("expected warm for inclusive upper bound, got %s", got)
	}
	if got := ResolveTier(thresholds, 55); got != domain.TierUnclassified {
		t.Errorf("expected unclassified for gap, got %s", got)
	}
}

func TestTierPriorityOrderOnOverlap(t *testing.T) {
	overlapping := domain.TierThresholds{
		Hot:  domain.TierRange{Min: 80, Max: 100},
		Warm: domain.TierRange{Min: 80, Max: 100}, // overlaps hot
		Cool: domain.TierRange{Min: 40, Max: 79},
		Cold: domain.TierRange{Min: 0, Max: 39},
	}

	if got := ResolveTier(overlapping, 85); got != domain.TierHot {
		t.Errorf("hot should win on overlap, got %s", got)
	}
}

func TestContributionsExplainComposite(t *testing.T) {
	cfg := stockConfig()
	record := domain.Record{
		"Intent_Score__c":            80.0,
		"Current_Gainsight_Score__c": 72.0,
	}

	result := ComputeScore(cfg, record, domain.RoleDefault)
	if len(result.Contributions) != 2 {
		t.Fatalf("expected 2 contributions, got %d", len(result.Contributions))
	}

	var total float64
	for _, c := range result.Contributions {
		total += c.Weighted
	}
	if int(total) != result.Score {
		t.Errorf("contributions sum %.2f does not match score %d", total, result.Score)
	}
}

func TestComputeScoreIsIdempotent(t *testing.T) {
	cfg := stockConfig()
	record := domain.Record{
		"Intent_Score__c":            63.4,
		"Current_Gainsight_Score__c": 49.9,
	}

	first := ComputeScore(cfg, record, domain.RoleDefault)
	for i := 0; i < 10; i++ {
		got := ComputeScore(cfg, record, domain.RoleDefault)
		if got.Score != first.Score || got.Tier != first.Tier {
			t.Fatalf("run %d: got %d/%s, want %d/%s", i, got.Score, got.Tier, first.Score, first.Tier)
		}
	}
}
