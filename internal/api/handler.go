package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-crm/kestrel/internal/assess"
	"github.com/opensource-crm/kestrel/internal/batch"
	"github.com/opensource-crm/kestrel/internal/crm"
	"github.com/opensource-crm/kestrel/internal/domain"
	"github.com/opensource-crm/kestrel/internal/fields"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	assessor *assess.Assessor
	runner   *batch.Runner
	static   *crm.StaticFetcher // non-nil only in static CRM mode
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, assessor *assess.Assessor, runner *batch.Runner, static *crm.StaticFetcher, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		assessor: assessor,
		runner:   runner,
		static:   static,
		version:  version,
	}
}

// EvaluateRequest is the request body for POST /evaluate. Either RecordID
// (the record is fetched from the CRM) or an inline Record must be set.
type EvaluateRequest struct {
	RecordID   string            `json:"recordId,omitempty"`
	ObjectType domain.ObjectType `json:"objectType"`
	Role       string            `json:"role,omitempty"`
	Record     domain.Record     `json:"record,omitempty"`
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	AssessmentID string        `json:"assessmentId"`
	RecordID     string        `json:"recordId"`
	Flags        []domain.Flag `json:"flags"`
	Score        int           `json:"score"`
	Tier         string        `json:"tier"`
	Metadata     struct {
		TraceID        string `json:"traceId"`
		RulesEvaluated int    `json:"rulesEvaluated"`
		ConfigVersion  int    `json:"configVersion"`
		TotalMs        int64  `json:"totalMs"`
		Version        string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if !req.ObjectType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "objectType must be Account or Opportunity",
		})
		return
	}
	if req.RecordID == "" && req.Record == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "recordId or an inline record is required",
		})
		return
	}

	role := req.Role
	if role == "" {
		role = domain.RoleDefault
	}

	var assessment *domain.Assessment
	if req.Record != nil {
		// Inline record: skip the CRM fetch, score the payload as given.
		snap, err := h.assessor.TakeSnapshot(ctx, orgID)
		if err != nil {
			slog.Error("failed to load configuration", "org_id", orgID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load configuration",
			})
			return
		}
		recordID := req.RecordID
		if recordID == "" {
			recordID = uuid.New().String()
		}
		assessment = h.assessor.AssessRecord(snap, orgID, recordID, req.ObjectType, role, req.Record)
		assessment.Metadata.TraceID = traceID
		assessment.Metadata.TotalMs = time.Since(start).Milliseconds()
		h.assessor.Finish(ctx, assessment)
	} else {
		var err error
		assessment, err = h.assessor.Assess(ctx, orgID, req.RecordID, req.ObjectType, role)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "record not found",
				})
				return
			}
			slog.Error("assessment failed", "org_id", orgID, "record_id", req.RecordID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "assessment failed",
			})
			return
		}
	}

	resp := EvaluateResponse{
		AssessmentID: assessment.ID,
		RecordID:     assessment.RecordID,
		Flags:        assessment.Flags,
		Score:        assessment.Score,
		Tier:         assessment.Tier,
	}
	if resp.Flags == nil {
		resp.Flags = []domain.Flag{}
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.RulesEvaluated = assessment.Metadata.RulesEvaluated
	resp.Metadata.ConfigVersion = assessment.Metadata.ConfigVersion
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// BatchRequest is the request body for POST /evaluate/batch.
type BatchRequest struct {
	Role    string            `json:"role,omitempty"`
	Records []batch.RecordRef `json:"records"`
}

// EvaluateBatch handles POST /evaluate/batch requests. All records in the
// batch are scored against a single configuration snapshot.
func (h *Handler) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records is required",
		})
		return
	}
	for i, ref := range req.Records {
		if ref.RecordID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "records[" + strconv.Itoa(i) + "].recordId is required",
			})
			return
		}
		if !ref.ObjectType.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "records[" + strconv.Itoa(i) + "].objectType must be Account or Opportunity",
			})
			return
		}
	}

	role := req.Role
	if role == "" {
		role = domain.RoleDefault
	}

	summary, err := h.runner.Run(ctx, orgID, role, req.Records)
	if err != nil {
		slog.Error("batch run failed", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch run failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	assessment, err := h.repo.GetAssessment(ctx, orgID, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get assessment", "id", id, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// ListRecordAssessments retrieves recent assessments for one record.
func (h *Handler) ListRecordAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	recordID := chi.URLParam(r, "recordId")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	assessments, err := h.repo.ListAssessmentsByRecord(ctx, orgID, recordID, limit)
	if err != nil {
		slog.Error("failed to list assessments", "record_id", recordID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list assessments",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// ListRules returns all risk rules for the org.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	ruleSet, err := h.repo.ListRiskRules(ctx, orgID)
	if err != nil {
		slog.Error("failed to list rules", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleSet,
		"count": len(ruleSet),
	})
}

// GetRule retrieves a risk rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	rule, err := h.repo.GetRiskRule(ctx, orgID, ruleID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get rule", "id", ruleID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates a new risk rule. The rule is live on the next
// evaluation; there is no reload step.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	var rule domain.RiskRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.OrgID = orgID

	if err := h.saveRule(ctx, w, orgID, &rule); err != nil {
		return
	}

	slog.Info("rule created", "org_id", orgID, "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, &rule)
}

// UpdateRule upserts a risk rule under the path ID.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	var rule domain.RiskRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	rule.ID = ruleID
	rule.OrgID = orgID

	if err := h.saveRule(ctx, w, orgID, &rule); err != nil {
		return
	}

	slog.Info("rule updated", "org_id", orgID, "id", rule.ID)
	writeJSON(w, http.StatusOK, &rule)
}

// DeleteRule deletes a risk rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if err := h.repo.DeleteRiskRule(ctx, orgID, ruleID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	h.publishConfigUpdated(r, orgID, "rule deleted")

	slog.Info("rule deleted", "org_id", orgID, "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// saveRule validates and persists a rule, writing the error response itself
// on failure.
func (h *Handler) saveRule(ctx context.Context, w http.ResponseWriter, orgID string, rule *domain.RiskRule) error {
	if err := rule.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return err
	}

	if err := h.repo.SaveRiskRule(ctx, orgID, rule); err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return err
		}
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return err
	}

	h.publishConfigUpdatedCtx(ctx, orgID, "rule saved")
	return nil
}

// GetScoringConfig returns the org's priority-scoring document, seeding the
// defaults on first read.
func (h *Handler) GetScoringConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	cfg, err := h.repo.GetScoringConfig(ctx, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		cfg = domain.DefaultScoringConfig()
		cfg.OrgID = orgID
	} else if err != nil {
		slog.Error("failed to get scoring config", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get scoring config",
		})
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// PutScoringConfig replaces the org's priority-scoring document. Weight sums
// and derived-field expressions are checked here, at write time; evaluation
// never re-validates.
func (h *Handler) PutScoringConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)

	var cfg domain.ScoringConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	cfg.OrgID = orgID

	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	for _, def := range cfg.DerivedFields {
		if err := fields.Validate(def); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "derived field " + def.Name + ": " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveScoringConfig(ctx, orgID, &cfg); err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save scoring config", "org_id", orgID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save scoring config",
		})
		return
	}

	h.publishConfigUpdated(r, orgID, "scoring config saved")

	slog.Info("scoring config saved", "org_id", orgID, "components", len(cfg.Components))
	writeJSON(w, http.StatusOK, &cfg)
}

// IngestRequest is the request body for PUT /records/{recordId}.
type IngestRequest struct {
	ObjectType domain.ObjectType `json:"objectType"`
	Record     domain.Record     `json:"record"`
}

// IngestRecord stores a record in the static CRM fetcher (Community tier).
// In http CRM mode records come from the live CRM and this endpoint is off.
func (h *Handler) IngestRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := GetOrgID(ctx)
	recordID := chi.URLParam(r, "recordId")

	if h.static == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "record ingest is only available in static CRM mode",
		})
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if !req.ObjectType.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "objectType must be Account or Opportunity",
		})
		return
	}
	if req.Record == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "record is required",
		})
		return
	}

	h.static.Put(orgID, req.ObjectType, recordID, req.Record)

	// Refresh any cached copy so the next evaluation sees the new values.
	if h.cache != nil {
		if err := h.cache.SetRecord(ctx, orgID, req.ObjectType, recordID, req.Record, time.Minute); err != nil {
			slog.Warn("failed to refresh cached record", "record_id", recordID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"recordId": recordID,
		"message":  "record stored",
	})
}

func (h *Handler) publishConfigUpdated(r *http.Request, orgID, reason string) {
	h.publishConfigUpdatedCtx(r.Context(), orgID, reason)
}

func (h *Handler) publishConfigUpdatedCtx(ctx context.Context, orgID, reason string) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	if err := h.bus.Publish(ctx, orgID, domain.TopicConfigUpdated, payload); err != nil {
		slog.Warn("failed to publish config update", "org_id", orgID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
