//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel scoring engine.
//
// These tests verify the COMPLETE assessment pipeline:
//
//	Record → Derived Fields → Risk Rules → Priority Score → Tier
//
// Run against a live server (Community tier, static CRM mode):
//
//	KESTREL_TIER=community ./bin/kestrel &
//	go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. RECORD: A CRM record (Account or Opportunity) as a flat field map.
//
// 2. RISK RULE: A configurable flag pattern. Each rule has:
//   - Conditions: field / operator / value triples
//   - Logic: AND (all must hold) or OR (any suffices)
//   - Flag: the label raised when the rule fires (at-risk, critical, warning)
//
// 3. PRIORITY SCORE: Weighted composite of per-component scores (0-100).
//    Components read a record field directly or bucket it through score
//    ranges. Role overrides can reweight components per user role.
//
// 4. TIER: hot / warm / cool / cold from threshold bands; scores falling in
//    a gap are "unclassified".
//
// 5. ASSESSMENT: The persisted result - flags + score + tier + metadata.
//
// These tests seed their own records (PUT /records/{id}, static CRM mode
// only) and rules (POST /rules), so they need no external fixtures.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	OrgID   string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL: baseURL,
		// Unique org per run keeps reruns from seeing stale rules
		OrgID: fmt.Sprintf("itest-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type RiskRule struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	ObjectType string      `json:"objectType"`
	Conditions []Condition `json:"conditions"`
	Logic      string      `json:"logic"`
	Flag       string      `json:"flag"`
	Active     bool        `json:"active"`
}

type EvaluateRequest struct {
	RecordID   string                 `json:"recordId,omitempty"`
	ObjectType string                 `json:"objectType"`
	Role       string                 `json:"role,omitempty"`
	Record     map[string]interface{} `json:"record,omitempty"`
}

type EvaluateResponse struct {
	AssessmentID string   `json:"assessmentId"`
	RecordID     string   `json:"recordId"`
	Flags        []string `json:"flags"`
	Score        int      `json:"score"`
	Tier         string   `json:"tier"`
	Metadata     struct {
		TraceID        string `json:"traceId"`
		RulesEvaluated int    `json:"rulesEvaluated"`
		ConfigVersion  int    `json:"configVersion"`
		TotalMs        int64  `json:"totalMs"`
		Version        string `json:"version"`
	} `json:"metadata"`
}

type IngestRequest struct {
	ObjectType string                 `json:"objectType"`
	Record     map[string]interface{} `json:"record"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Org-ID", config.OrgID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
	return resp.StatusCode
}

func evaluate(t *testing.T, config TestConfig, req EvaluateRequest) EvaluateResponse {
	t.Helper()
	var result EvaluateResponse
	status := call(t, config, "POST", "/evaluate", req, &result)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200 from /evaluate, got %d", status)
	}
	return result
}

func seedRule(t *testing.T, config TestConfig, rule RiskRule) {
	t.Helper()
	status := call(t, config, "POST", "/rules", rule, nil)
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201 from POST /rules, got %d", status)
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// ============================================================================
// SCENARIO 1: Healthy Account (No Flags, High Priority)
// ============================================================================

func TestHealthyAccount_NoFlags(t *testing.T) {
	/*
	   SCENARIO: An account with strong intent and health signals, no rules seeded.

	   EXPECTED BEHAVIOR:
	   - No rules exist for this org yet → zero flags
	   - Default scoring: intent 92*0.6 = 55.2; health 88 buckets to 90, *0.4 = 36
	   - Composite round(91.2) = 91 → hot tier (85-100)
	*/
	config := getTestConfig()

	result := evaluate(t, config, EvaluateRequest{
		ObjectType: "Account",
		Record: map[string]interface{}{
			"Name":                       "Acme Corp",
			"Intent_Score__c":            92.0,
			"Current_Gainsight_Score__c": 88.0,
		},
	})

	if len(result.Flags) != 0 {
		t.Errorf("Expected no flags, got %v", result.Flags)
	}
	if result.Score != 91 {
		t.Errorf("Expected score 91, got %d", result.Score)
	}
	if result.Tier != "hot" {
		t.Errorf("Expected tier hot, got %s", result.Tier)
	}
	if result.AssessmentID == "" {
		t.Error("Expected assessmentId in response")
	}
	if result.Metadata.TraceID == "" {
		t.Error("Expected traceId in metadata")
	}

	t.Logf("✓ Healthy account: score=%d tier=%s", result.Score, result.Tier)
}

// ============================================================================
// SCENARIO 2: At-Risk Account (Rule Fires)
// ============================================================================

func TestAtRiskAccount_RuleFires(t *testing.T) {
	/*
	   SCENARIO: Seed a low-health rule, then score an account below its
	   threshold.

	   EXPECTED BEHAVIOR:
	   - Rule "health < 40" fires → critical flag
	   - Flags and score are independent: the low health also drags the
	     priority score down (health buckets to 10)
	   - intent 70*0.6 = 42; health 10*0.4 = 4 → 46 → cool tier
	*/
	config := getTestConfig()

	seedRule(t, config, RiskRule{
		Name:       "Low health score",
		ObjectType: "Account",
		Conditions: []Condition{
			{Field: "Current_Gainsight_Score__c", Operator: "<", Value: 40},
		},
		Logic:  "AND",
		Flag:   "critical",
		Active: true,
	})

	result := evaluate(t, config, EvaluateRequest{
		ObjectType: "Account",
		Record: map[string]interface{}{
			"Intent_Score__c":            70.0,
			"Current_Gainsight_Score__c": 25.0,
		},
	})

	if !hasFlag(result.Flags, "critical") {
		t.Errorf("Expected critical flag, got %v", result.Flags)
	}
	if result.Metadata.RulesEvaluated != 1 {
		t.Errorf("Expected 1 rule evaluated, got %d", result.Metadata.RulesEvaluated)
	}
	if result.Score != 46 {
		t.Errorf("Expected score 46, got %d", result.Score)
	}
	if result.Tier != "cool" {
		t.Errorf("Expected tier cool, got %s", result.Tier)
	}

	t.Logf("✓ At-risk account: flags=%v score=%d tier=%s", result.Flags, result.Score, result.Tier)
}

// ============================================================================
// SCENARIO 3: Missing Fields Never Error
// ============================================================================

func TestSparseRecord_DegradesGracefully(t *testing.T) {
	/*
	   SCENARIO: Seed rules over fields the record does not carry, then score
	   a nearly-empty record.

	   EXPECTED BEHAVIOR:
	   - Missing rule fields → conditions evaluate false → no flags
	   - Missing scoring fields → components contribute 0 → score 0 → cold
	   - The request still succeeds; data quality never turns into an error
	*/
	config := getTestConfig()

	seedRule(t, config, RiskRule{
		Name:       "Stale opportunity",
		ObjectType: "Account",
		Conditions: []Condition{
			{Field: "Days_Since_Last_Activity__c", Operator: ">", Value: 30},
			{Field: "Open_Opportunity_Count__c", Operator: ">=", Value: 1},
		},
		Logic:  "AND",
		Flag:   "warning",
		Active: true,
	})

	result := evaluate(t, config, EvaluateRequest{
		ObjectType: "Account",
		Record:     map[string]interface{}{"Name": "Sparse Inc"},
	})

	if len(result.Flags) != 0 {
		t.Errorf("Expected no flags on sparse record, got %v", result.Flags)
	}
	if result.Score != 0 {
		t.Errorf("Expected score 0, got %d", result.Score)
	}
	if result.Tier != "cold" {
		t.Errorf("Expected tier cold, got %s", result.Tier)
	}

	t.Logf("✓ Sparse record degraded gracefully: score=%d tier=%s", result.Score, result.Tier)
}

// ============================================================================
// SCENARIO 4: Role Overrides
// ============================================================================

func TestRoleOverride_ReweightsComponents(t *testing.T) {
	/*
	   SCENARIO: Install a scoring config where the "csm" role weighs health
	   at 100% and score the same record as default and as csm.

	   EXPECTED BEHAVIOR:
	   - default: intent 80*0.6 + health(72→90)*0.4 = 84 → warm
	   - csm: health(72→90)*1.0 = 90 → hot
	   - unknown role: silently falls back to default weights
	*/
	config := getTestConfig()

	scoring := map[string]interface{}{
		"components": []map[string]interface{}{
			{"id": "intent", "name": "Intent Score", "weight": 60, "field": "Intent_Score__c"},
			{"id": "health", "name": "Health Score", "weight": 40, "field": "Current_Gainsight_Score__c",
				"scoreRanges": []map[string]interface{}{
					{"min": 0, "max": 49, "score": 10},
					{"min": 50, "max": 100, "score": 90},
				}},
		},
		"thresholds": map[string]interface{}{
			"hot":  map[string]interface{}{"min": 85, "max": 100},
			"warm": map[string]interface{}{"min": 65, "max": 84},
			"cool": map[string]interface{}{"min": 40, "max": 64},
			"cold": map[string]interface{}{"min": 0, "max": 39},
		},
		"roleConfigs": map[string]interface{}{
			"csm": map[string]interface{}{
				"componentWeights": map[string]interface{}{"health": 100},
			},
		},
	}
	if status := call(t, config, "PUT", "/scoring", scoring, nil); status != http.StatusOK {
		t.Fatalf("Expected status 200 from PUT /scoring, got %d", status)
	}

	record := map[string]interface{}{
		"Intent_Score__c":            80.0,
		"Current_Gainsight_Score__c": 72.0,
	}

	asDefault := evaluate(t, config, EvaluateRequest{ObjectType: "Account", Record: record})
	if asDefault.Score != 84 || asDefault.Tier != "warm" {
		t.Errorf("default role: expected 84/warm, got %d/%s", asDefault.Score, asDefault.Tier)
	}

	asCSM := evaluate(t, config, EvaluateRequest{ObjectType: "Account", Record: record, Role: "csm"})
	if asCSM.Score != 90 || asCSM.Tier != "hot" {
		t.Errorf("csm role: expected 90/hot, got %d/%s", asCSM.Score, asCSM.Tier)
	}

	asIntern := evaluate(t, config, EvaluateRequest{ObjectType: "Account", Record: record, Role: "intern"})
	if asIntern.Score != asDefault.Score {
		t.Errorf("unknown role should match default: got %d vs %d", asIntern.Score, asDefault.Score)
	}

	t.Logf("✓ Role overrides: default=%d csm=%d", asDefault.Score, asCSM.Score)
}

// ============================================================================
// SCENARIO 5: Ingest, Evaluate by ID, History
// ============================================================================

func TestIngestEvaluateHistory(t *testing.T) {
	/*
	   SCENARIO: Push a record into the static CRM store, evaluate it twice
	   by ID, then read its assessment history.

	   EXPECTED BEHAVIOR:
	   - PUT /records/{id} stores the record (static CRM mode)
	   - POST /evaluate with recordId fetches and scores it
	   - GET /records/{id}/assessments returns both runs, newest first
	*/
	config := getTestConfig()
	recordID := "acct-history-001"

	status := call(t, config, "PUT", "/records/"+recordID, IngestRequest{
		ObjectType: "Account",
		Record: map[string]interface{}{
			"Intent_Score__c":            60.0,
			"Current_Gainsight_Score__c": 55.0,
		},
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200 from ingest, got %d", status)
	}

	for i := 0; i < 2; i++ {
		result := evaluate(t, config, EvaluateRequest{
			RecordID:   recordID,
			ObjectType: "Account",
		})
		if result.RecordID != recordID {
			t.Errorf("Expected recordId %s, got %s", recordID, result.RecordID)
		}
	}

	var history struct {
		Count       int `json:"count"`
		Assessments []struct {
			RecordID string `json:"recordId"`
			Score    int    `json:"score"`
		} `json:"assessments"`
	}
	status = call(t, config, "GET", "/records/"+recordID+"/assessments", nil, &history)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200 from history, got %d", status)
	}
	if history.Count != 2 {
		t.Errorf("Expected 2 assessments in history, got %d", history.Count)
	}

	t.Logf("✓ Ingest + history: %d assessments on record", history.Count)
}

// ============================================================================
// SCENARIO 6: Batch Evaluation
// ============================================================================

func TestBatchEvaluation(t *testing.T) {
	/*
	   SCENARIO: Ingest three records, then score them in one batch call
	   alongside a reference to a record the CRM does not have.

	   EXPECTED BEHAVIOR:
	   - The batch reports total 4, succeeded 3, failed 1
	   - Per-record failures never fail the whole run
	*/
	config := getTestConfig()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("acct-batch-%03d", i)
		status := call(t, config, "PUT", "/records/"+id, IngestRequest{
			ObjectType: "Account",
			Record: map[string]interface{}{
				"Intent_Score__c":            float64(20 * i),
				"Current_Gainsight_Score__c": float64(25 * i),
			},
		}, nil)
		if status != http.StatusOK {
			t.Fatalf("Ingest %s failed with status %d", id, status)
		}
	}

	batch := map[string]interface{}{
		"records": []map[string]interface{}{
			{"recordId": "acct-batch-001", "objectType": "Account"},
			{"recordId": "acct-batch-002", "objectType": "Account"},
			{"recordId": "acct-batch-003", "objectType": "Account"},
			{"recordId": "acct-batch-missing", "objectType": "Account"},
		},
	}

	var summary struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	status := call(t, config, "POST", "/evaluate/batch", batch, &summary)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200 from batch, got %d", status)
	}

	if summary.Total != 4 {
		t.Errorf("Expected total 4, got %d", summary.Total)
	}
	if summary.Succeeded != 3 {
		t.Errorf("Expected 3 succeeded, got %d", summary.Succeeded)
	}
	if summary.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", summary.Failed)
	}

	t.Logf("✓ Batch: %d/%d succeeded", summary.Succeeded, summary.Total)
}
