package domain

import "context"

// Repository defines the interface for configuration and assessment
// persistence. All methods require orgID for strict multi-org isolation.
type Repository interface {
	// Risk-rule operations
	SaveRiskRule(ctx context.Context, orgID string, rule *RiskRule) error
	GetRiskRule(ctx context.Context, orgID string, ruleID string) (*RiskRule, error)
	ListRiskRules(ctx context.Context, orgID string) ([]*RiskRule, error)
	DeleteRiskRule(ctx context.Context, orgID string, ruleID string) error

	// Priority-scoring document operations. GetScoringConfig returns
	// ErrNotFound when the org has never been seeded.
	SaveScoringConfig(ctx context.Context, orgID string, cfg *ScoringConfig) error
	GetScoringConfig(ctx context.Context, orgID string) (*ScoringConfig, error)

	// Assessment results
	SaveAssessment(ctx context.Context, orgID string, a *Assessment) error
	GetAssessment(ctx context.Context, orgID string, id string) (*Assessment, error)
	ListAssessmentsByRecord(ctx context.Context, orgID string, recordID string, limit int) ([]*Assessment, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
