package domain

import "time"

// Assessment is the combined result of risk-rule evaluation and priority
// scoring for one record and role.
type Assessment struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"orgId"`
	RecordID   string     `json:"recordId"`
	ObjectType ObjectType `json:"objectType"`
	Role       string     `json:"role"`

	Flags []Flag `json:"flags"`
	Score int    `json:"score"`
	Tier  string `json:"tier"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata carries processing information for dashboards and
// debugging.
type AssessmentMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	ConfigVersion  int    `json:"configVersion"`
	FetchMs        int64  `json:"fetchMs"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}

// Flagged reports whether any risk rule fired.
func (a *Assessment) Flagged() bool {
	return len(a.Flags) > 0
}

// HasFlag reports whether a specific flag was raised.
func (a *Assessment) HasFlag(f Flag) bool {
	for _, got := range a.Flags {
		if got == f {
			return true
		}
	}
	return false
}
