package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// SaveRule upserts a compliance rule version.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	bands, err := encodeJSON(rule.Bands)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO compliance_rules (
			id, tenant_id, name, description, version, sector, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			sector = excluded.sector,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version, rule.Sector,
		rule.Expression, bands, rule.Weight, boolToInt(rule.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

const ruleColumns = `id, tenant_id, name, description, version, sector, expression, bands, weight, enabled`

func scanRule(row interface{ Scan(...any) error }) (*domain.RuleConfig, error) {
	var rule domain.RuleConfig
	var desc, bands sql.NullString
	var enabled int
	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &desc, &rule.Version, &rule.Sector,
		&rule.Expression, &bands, &rule.Weight, &enabled,
	); err != nil {
		return nil, err
	}
	rule.Description = desc.String
	rule.Enabled = enabled == 1
	if err := decodeJSON(bands, &rule.Bands, "rule bands"); err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRule returns the latest enabled version of a rule.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + ruleColumns + ` FROM compliance_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC LIMIT 1`
	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if err != nil {
		return nil, notFound(err)
	}
	return rule, nil
}

// ListRules returns all enabled rules for a tenant.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + ruleColumns + ` FROM compliance_rules WHERE tenant_id = ? AND enabled = 1 ORDER BY name, version`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveProfile upserts a sector profile version.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, p *domain.SectorProfile) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	rules, err := encodeJSON(p.Rules)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO sector_profiles (
			id, tenant_id, name, sector, description, version, rules, alert_threshold, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			description = excluded.description,
			rules = excluded.rules,
			alert_threshold = excluded.alert_threshold,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Sector, p.Description, p.Version, rules,
		p.AlertThreshold, boolToInt(p.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

const profileColumns = `id, tenant_id, name, sector, description, version, rules, alert_threshold, enabled, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*domain.SectorProfile, error) {
	var p domain.SectorProfile
	var desc, rules sql.NullString
	var enabled int
	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Sector, &desc, &p.Version, &rules,
		&p.AlertThreshold, &enabled, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Description = desc.String
	p.Enabled = enabled == 1
	if err := decodeJSON(rules, &p.Rules, "profile rules"); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile returns the latest enabled version of a sector profile.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID string, profileID string) (*domain.SectorProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + profileColumns + ` FROM sector_profiles
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC LIMIT 1`
	p, err := scanProfile(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, profileID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListProfiles returns all enabled sector profiles for a tenant.
func (r *SQLRepository) ListProfiles(ctx context.Context, tenantID string) ([]*domain.SectorProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	query := `SELECT ` + profileColumns + ` FROM sector_profiles WHERE tenant_id = ? AND enabled = 1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.SectorProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// DeleteProfile soft-deletes every version of a profile.
func (r *SQLRepository) DeleteProfile(ctx context.Context, tenantID string, profileID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	query := `UPDATE sector_profiles SET enabled = 0, updated_at = ? WHERE tenant_id = ? AND id = ? AND enabled = 1`
	res, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, profileID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
