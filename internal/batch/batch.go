// Package batch provides bulk and asynchronous record scoring.
//
// A batch run takes one configuration snapshot up front and reuses it for
// every record in the pass, so a nightly sweep over all accounts stays
// internally consistent even when an admin edits rules mid-run. The async
// worker serves the same purpose for records queued on the event bus.
package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-crm/kestrel/internal/assess"
	"github.com/opensource-crm/kestrel/internal/domain"
)

// RecordRef identifies one record to score.
type RecordRef struct {
	RecordID   string            `json:"recordId"`
	ObjectType domain.ObjectType `json:"objectType"`
	Role       string            `json:"role,omitempty"`
}

// Summary reports the outcome of a batch run.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Flagged   int           `json:"flagged"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsedMs"`
}

// Runner scores batches of records against a single config snapshot.
type Runner struct {
	assessor *assess.Assessor
	fetcher  domain.RecordFetcher
	workers  int

	mu            sync.Mutex
	subscriptions []domain.Subscription
	bus           domain.EventBus
}

// NewRunner creates a batch runner with a bounded worker pool.
func NewRunner(assessor *assess.Assessor, fetcher domain.RecordFetcher, bus domain.EventBus, workers int) *Runner {
	if workers <= 0 {
		workers = 10
	}
	return &Runner{
		assessor: assessor,
		fetcher:  fetcher,
		bus:      bus,
		workers:  workers,
	}
}

// Run scores every referenced record for an org. The configuration is read
// once; per-record failures (record gone from the CRM, fetch error) are
// counted and logged, never fatal to the run.
func (r *Runner) Run(ctx context.Context, orgID string, role string, refs []RecordRef) (*Summary, error) {
	start := time.Now()

	snap, err := r.assessor.TakeSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Total: len(refs)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, r.workers)

	for _, ref := range refs {
		wg.Add(1)
		go func(ref RecordRef) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			effectiveRole := ref.Role
			if effectiveRole == "" {
				effectiveRole = role
			}

			assessment, err := r.scoreOne(ctx, snap, orgID, effectiveRole, ref)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				slog.Warn("batch record failed",
					"org_id", orgID,
					"record_id", ref.RecordID,
					"error", err,
				)
				return
			}
			summary.Succeeded++
			if assessment.Flagged() {
				summary.Flagged++
			}
		}(ref)
	}

	wg.Wait()

	summary.Elapsed = time.Since(start)
	summary.ElapsedMs = summary.Elapsed.Milliseconds()

	slog.Info("batch run complete",
		"org_id", orgID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"flagged", summary.Flagged,
		"duration_ms", summary.ElapsedMs,
	)

	return summary, nil
}

// scoreOne fetches and assesses a single record against the shared snapshot.
func (r *Runner) scoreOne(ctx context.Context, snap *assess.Snapshot, orgID, role string, ref RecordRef) (*domain.Assessment, error) {
	record, err := r.fetcher.FetchRecord(ctx, orgID, ref.ObjectType, ref.RecordID)
	if err != nil {
		return nil, err
	}

	assessment := r.assessor.AssessRecord(snap, orgID, ref.RecordID, ref.ObjectType, role, record)
	r.assessor.Finish(ctx, assessment)
	return assessment, nil
}

// Start subscribes the runner to the score-request topic for the given
// orgs, scoring queued records asynchronously (Pro tier).
func (r *Runner) Start(ctx context.Context, orgIDs []string) error {
	if r.bus == nil {
		return nil
	}

	for _, orgID := range orgIDs {
		sub, err := r.bus.Subscribe(ctx, orgID, domain.TopicScoreRequested, r.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for org",
				"org_id", orgID,
				"error", err,
			)
			continue
		}
		r.mu.Lock()
		r.subscriptions = append(r.subscriptions, sub)
		r.mu.Unlock()

		slog.Info("org worker started",
			"org_id", orgID,
			"topic", domain.TopicScoreRequested,
		)
	}

	return nil
}

// handleMessage scores one queued record reference. Async scoring reads a
// fresh snapshot per message: queue latency already makes batch-style
// snapshot pinning meaningless here.
func (r *Runner) handleMessage(ctx context.Context, msg *domain.Message) error {
	var ref RecordRef
	if err := json.Unmarshal(msg.Payload, &ref); err != nil {
		slog.Error("failed to parse score request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	role := ref.Role
	if role == "" {
		role = domain.RoleDefault
	}

	assessment, err := r.assessor.Assess(ctx, msg.OrgID, ref.RecordID, ref.ObjectType, role)
	if err != nil {
		slog.Error("async scoring failed",
			"org_id", msg.OrgID,
			"record_id", ref.RecordID,
			"error", err,
		)
		return err
	}

	slog.Info("record scored",
		"org_id", msg.OrgID,
		"record_id", ref.RecordID,
		"score", assessment.Score,
		"tier", assessment.Tier,
		"flags", len(assessment.Flags),
	)
	return nil
}

// Stop unsubscribes all async workers.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	r.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}
