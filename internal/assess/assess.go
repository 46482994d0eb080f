// Package assess orchestrates record assessment: it joins the CRM record,
// the configuration snapshot, the risk-rule engine, and the priority-scoring
// engine into a single {flags, score, tier} result.
package assess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-crm/kestrel/internal/domain"
	"github.com/opensource-crm/kestrel/internal/fields"
	"github.com/opensource-crm/kestrel/internal/rules"
	"github.com/opensource-crm/kestrel/internal/scoring"
)

// EngineVersion is stamped into assessment metadata.
const EngineVersion = "kestrel-1.0"

// recordTTL bounds how long a fetched CRM record may be served from cache.
const recordTTL = 2 * time.Minute

// Snapshot is a point-in-time view of an org's configuration. Per-request
// assessment takes a fresh snapshot every time (freshness over throughput);
// batch runs take one snapshot and reuse it for the whole pass so results
// within a run are internally consistent even if an admin edits config
// mid-run.
type Snapshot struct {
	Rules   []*domain.RiskRule
	Scoring *domain.ScoringConfig

	mapper *fields.Mapper
}

// Assessor fetches records and configuration and produces assessments.
type Assessor struct {
	repo    domain.Repository
	fetcher domain.RecordFetcher
	cache   domain.Cache
	bus     domain.EventBus
}

// NewAssessor creates an assessor. cache and bus are optional; without them
// records are fetched fresh every time and no events are published.
func NewAssessor(repo domain.Repository, fetcher domain.RecordFetcher, cache domain.Cache, bus domain.EventBus) *Assessor {
	return &Assessor{
		repo:    repo,
		fetcher: fetcher,
		cache:   cache,
		bus:     bus,
	}
}

// TakeSnapshot reads both configuration documents from the store. An org
// with no persisted scoring document falls back to the seed defaults rather
// than failing the evaluation.
func (a *Assessor) TakeSnapshot(ctx context.Context, orgID string) (*Snapshot, error) {
	ruleSet, err := a.repo.ListRiskRules(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk rules: %w", err)
	}

	cfg, err := a.repo.GetScoringConfig(ctx, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		cfg = domain.DefaultScoringConfig()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load scoring config: %w", err)
	}

	snap := &Snapshot{Rules: ruleSet, Scoring: cfg}

	if len(cfg.DerivedFields) > 0 {
		mapper, err := fields.NewMapper(cfg.DerivedFields)
		if err != nil {
			// A persisted expression that no longer compiles must not take
			// scoring down; the raw record fields still evaluate.
			slog.Warn("skipping derived fields", "org_id", orgID, "error", err)
		} else {
			snap.mapper = mapper
		}
	}

	return snap, nil
}

// AssessRecord evaluates one already-fetched record against a snapshot.
// Pure with respect to external state; safe to call concurrently.
func (a *Assessor) AssessRecord(snap *Snapshot, orgID, recordID string, objectType domain.ObjectType, role string, record domain.Record) *domain.Assessment {
	if snap.mapper != nil {
		record = snap.mapper.Apply(record)
	}

	flags := rules.EvaluateRules(snap.Rules, record, objectType)
	result := scoring.ComputeScore(snap.Scoring, record, role)

	return &domain.Assessment{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		RecordID:   recordID,
		ObjectType: objectType,
		Role:       role,
		Flags:      flags,
		Score:      result.Score,
		Tier:       result.Tier,
		Timestamp:  time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			RulesEvaluated: len(snap.Rules),
			ConfigVersion:  snap.Scoring.Version,
			EngineVersion:  EngineVersion,
		},
	}
}

// Assess fetches the record and a fresh configuration snapshot, evaluates
// both engines, persists the assessment, and publishes pipeline events.
// Only record/config fetch failures propagate; data-quality issues resolve
// inside the engines per their fail-closed semantics.
func (a *Assessor) Assess(ctx context.Context, orgID, recordID string, objectType domain.ObjectType, role string) (*domain.Assessment, error) {
	start := time.Now()

	record, fetchMs, err := a.fetchRecord(ctx, orgID, objectType, recordID)
	if err != nil {
		return nil, err
	}

	snap, err := a.TakeSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}

	assessment := a.AssessRecord(snap, orgID, recordID, objectType, role, record)
	assessment.Metadata.FetchMs = fetchMs
	assessment.Metadata.TotalMs = time.Since(start).Milliseconds()

	a.Finish(ctx, assessment)
	return assessment, nil
}

// Finish persists an assessment and publishes pipeline events. Failures are
// logged, not propagated: the computed result is already in hand and the
// caller should receive it.
func (a *Assessor) Finish(ctx context.Context, assessment *domain.Assessment) {
	if a.repo != nil {
		if err := a.repo.SaveAssessment(ctx, assessment.OrgID, assessment); err != nil {
			slog.Error("failed to save assessment", "id", assessment.ID, "error", err)
		}
	}

	if a.bus == nil {
		return
	}
	payload, err := json.Marshal(assessment)
	if err != nil {
		return
	}
	if err := a.bus.Publish(ctx, assessment.OrgID, domain.TopicAssessmentCompleted, payload); err != nil {
		slog.Warn("failed to publish assessment", "id", assessment.ID, "error", err)
	}
	if assessment.Flagged() {
		if err := a.bus.Publish(ctx, assessment.OrgID, domain.TopicAssessmentFlagged, payload); err != nil {
			slog.Warn("failed to publish flagged assessment", "id", assessment.ID, "error", err)
		}
	}
}

// fetchRecord pulls a record through the cache when one is wired, falling
// back to the CRM fetcher.
func (a *Assessor) fetchRecord(ctx context.Context, orgID string, objectType domain.ObjectType, recordID string) (domain.Record, int64, error) {
	start := time.Now()

	if a.cache != nil {
		if rec, err := a.cache.GetRecord(ctx, orgID, objectType, recordID); err == nil && rec != nil {
			return rec, time.Since(start).Milliseconds(), nil
		}
	}

	rec, err := a.fetcher.FetchRecord(ctx, orgID, objectType, recordID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s %s: %w", objectType, recordID, err)
	}

	if a.cache != nil {
		if err := a.cache.SetRecord(ctx, orgID, objectType, recordID, rec, recordTTL); err != nil {
			slog.Warn("failed to cache record", "record_id", recordID, "error", err)
		}
	}

	return rec, time.Since(start).Milliseconds(), nil
}
