package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT NOT NULL,
    org_id TEXT NOT NULL,
    name TEXT NOT NULL,
    object_type TEXT NOT NULL,
    logic TEXT NOT NULL,
    flag TEXT NOT NULL,
    conditions TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, org_id)
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_org ON risk_rules(org_id);
CREATE INDEX IF NOT EXISTS idx_risk_rules_object ON risk_rules(org_id, object_type);
CREATE INDEX IF NOT EXISTS idx_risk_rules_active ON risk_rules(org_id, active);
`

const schemaScoringConfigs = `
CREATE TABLE IF NOT EXISTS scoring_configs (
    org_id TEXT PRIMARY KEY,
    components TEXT NOT NULL,
    thresholds TEXT NOT NULL,
    role_configs TEXT,
    derived_fields TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    record_id TEXT NOT NULL,
    object_type TEXT NOT NULL,
    role TEXT NOT NULL,
    flags TEXT NOT NULL,
    score INTEGER NOT NULL,
    tier TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_org ON assessments(org_id);
CREATE INDEX IF NOT EXISTS idx_assessments_record ON assessments(org_id, record_id);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(org_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRiskRules,
		schemaScoringConfigs,
		schemaAssessments,
	}
}
