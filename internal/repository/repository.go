// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-crm/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRiskRule stores a risk rule with org isolation, upserting on id.
// The rule is validated before it touches the database: configuration
// invariants are rejected at write time, never at evaluation time.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, orgID string, rule *domain.RiskRule) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	active := 0
	if rule.Active {
		active = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (
			id, org_id, name, object_type, logic, flag, conditions, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, org_id) DO UPDATE SET
			name = excluded.name,
			object_type = excluded.object_type,
			logic = excluded.logic,
			flag = excluded.flag,
			conditions = excluded.conditions,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, orgID, rule.Name, string(rule.ObjectType),
		string(rule.Logic), string(rule.Flag), string(conditions), active,
		now, now,
	)
	return err
}

// GetRiskRule retrieves a risk rule with org isolation.
func (r *SQLRepository) GetRiskRule(ctx context.Context, orgID string, ruleID string) (*domain.RiskRule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, org_id, name, object_type, logic, flag, conditions, active
		FROM risk_rules
		WHERE org_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), orgID, ruleID)
	rule, err := scanRiskRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

// ListRiskRules retrieves all risk rules for an org, active and inactive,
// ordered by name. Soft-disabled rules stay listable for the admin console.
func (r *SQLRepository) ListRiskRules(ctx context.Context, orgID string) ([]*domain.RiskRule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, org_id, name, object_type, logic, flag, conditions, active
		FROM risk_rules
		WHERE org_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RiskRule
	for rows.Next() {
		rule, err := scanRiskRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// DeleteRiskRule hard-deletes a rule. Soft-disable is a save with
// active=false; deletion is the explicit admin action.
func (r *SQLRepository) DeleteRiskRule(ctx context.Context, orgID string, ruleID string) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM risk_rules WHERE org_id = ? AND id = ?`),
		orgID, ruleID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRiskRule(row rowScanner) (*domain.RiskRule, error) {
	var rule domain.RiskRule
	var objectType, logic, flag, conditions string
	var active int

	if err := row.Scan(
		&rule.ID, &rule.OrgID, &rule.Name,
		&objectType, &logic, &flag, &conditions, &active,
	); err != nil {
		return nil, err
	}

	rule.ObjectType = domain.ObjectType(objectType)
	rule.Logic = domain.Logic(logic)
	rule.Flag = domain.Flag(flag)
	rule.Active = active == 1
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to parse conditions for rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

// SaveScoringConfig stores the priority-scoring document for an org,
// bumping the document version on every write. Weight-sum invariants are
// enforced here so the engines never see an invalid persisted config in
// normal operation.
func (r *SQLRepository) SaveScoringConfig(ctx context.Context, orgID string, cfg *domain.ScoringConfig) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	components, err := json.Marshal(cfg.Components)
	if err != nil {
		return fmt.Errorf("failed to encode components: %w", err)
	}
	thresholds, err := json.Marshal(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}
	roleConfigs, _ := json.Marshal(cfg.RoleConfigs)
	derivedFields, _ := json.Marshal(cfg.DerivedFields)

	now := time.Now().UTC()

	query := `
		INSERT INTO scoring_configs (
			org_id, components, thresholds, role_configs, derived_fields, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET
			components = excluded.components,
			thresholds = excluded.thresholds,
			role_configs = excluded.role_configs,
			derived_fields = excluded.derived_fields,
			version = scoring_configs.version + 1,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		orgID, string(components), string(thresholds),
		string(roleConfigs), string(derivedFields),
		now, now,
	)
	return err
}

// GetScoringConfig retrieves the priority-scoring document for an org.
func (r *SQLRepository) GetScoringConfig(ctx context.Context, orgID string) (*domain.ScoringConfig, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT org_id, components, thresholds, role_configs, derived_fields, version
		FROM scoring_configs
		WHERE org_id = ?
	`

	var cfg domain.ScoringConfig
	var components, thresholds string
	var roleConfigs, derivedFields sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), orgID).Scan(
		&cfg.OrgID, &components, &thresholds, &roleConfigs, &derivedFields, &cfg.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(components), &cfg.Components); err != nil {
		return nil, fmt.Errorf("failed to parse components: %w", err)
	}
	if err := json.Unmarshal([]byte(thresholds), &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to parse thresholds: %w", err)
	}
	if roleConfigs.Valid && roleConfigs.String != "" && roleConfigs.String != "null" {
		if err := json.Unmarshal([]byte(roleConfigs.String), &cfg.RoleConfigs); err != nil {
			return nil, fmt.Errorf("failed to parse role configs: %w", err)
		}
	}
	if derivedFields.Valid && derivedFields.String != "" && derivedFields.String != "null" {
		if err := json.Unmarshal([]byte(derivedFields.String), &cfg.DerivedFields); err != nil {
			return nil, fmt.Errorf("failed to parse derived fields: %w", err)
		}
	}

	return &cfg, nil
}

// SaveAssessment stores an assessment result with org isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, orgID string, a *domain.Assessment) error {
	if orgID == "" {
		return fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}

	flags, _ := json.Marshal(a.Flags)
	metadata, _ := json.Marshal(a.Metadata)

	query := `
		INSERT INTO assessments (
			id, org_id, record_id, object_type, role, flags, score, tier, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, orgID, a.RecordID, string(a.ObjectType), a.Role,
		string(flags), a.Score, a.Tier, a.Timestamp, string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with org isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, orgID string, id string) (*domain.Assessment, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, org_id, record_id, object_type, role, flags, score, tier, timestamp, metadata
		FROM assessments
		WHERE org_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), orgID, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

// ListAssessmentsByRecord returns the most recent assessments for a record,
// newest first.
func (r *SQLRepository) ListAssessmentsByRecord(ctx context.Context, orgID string, recordID string, limit int) ([]*domain.Assessment, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, org_id, record_id, object_type, role, flags, score, tier, timestamp, metadata
		FROM assessments
		WHERE org_id = ? AND record_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), orgID, recordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssessment(row rowScanner) (*domain.Assessment, error) {
	var a domain.Assessment
	var objectType, flags, metadata string

	if err := row.Scan(
		&a.ID, &a.OrgID, &a.RecordID, &objectType, &a.Role,
		&flags, &a.Score, &a.Tier, &a.Timestamp, &metadata,
	); err != nil {
		return nil, err
	}

	a.ObjectType = domain.ObjectType(objectType)
	json.Unmarshal([]byte(flags), &a.Flags)
	json.Unmarshal([]byte(metadata), &a.Metadata)
	return &a, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
