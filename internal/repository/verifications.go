package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// verificationAssessments is the JSON shape of the assessments column.
type verificationAssessments struct {
	Trust *domain.TrustAssessment `json:"trust,omitempty"`
	Fraud *domain.FraudAssessment `json:"fraud,omitempty"`
	Route *domain.RouteResult     `json:"route,omitempty"`
}

// SaveVerification stores a verification decision.
func (r *SQLRepository) SaveVerification(ctx context.Context, tenantID string, v *domain.Verification) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	cols := make([]string, 0, 5)
	for _, val := range []any{
		verificationAssessments{Trust: v.Trust, Fraud: v.Fraud, Route: v.Route},
		v.RuleResults, v.ProfileResults, v.Reasons, v.Metadata,
	} {
		s, err := encodeJSON(val)
		if err != nil {
			return fmt.Errorf("failed to encode verification: %w", err)
		}
		cols = append(cols, s)
	}

	query := `
		INSERT INTO verifications (
			id, tenant_id, product_id, supplier_id, sector, status, score, timestamp,
			assessments, rule_results, profile_results, reasons, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, tenantID, v.ProductID, v.SupplierID, v.Sector, v.Status, v.Score, v.Timestamp,
		cols[0], cols[1], cols[2], cols[3], cols[4],
	)
	if err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	return nil
}

// GetVerification retrieves a verification by ID.
func (r *SQLRepository) GetVerification(ctx context.Context, tenantID string, id string) (*domain.Verification, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, product_id, supplier_id, sector, status, score, timestamp,
			   assessments, rule_results, profile_results, reasons, metadata
		FROM verifications
		WHERE tenant_id = ? AND id = ?
	`
	var v domain.Verification
	var assessments, ruleResults, profileResults, reasons, metadata sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&v.ID, &v.TenantID, &v.ProductID, &v.SupplierID, &v.Sector, &v.Status, &v.Score, &v.Timestamp,
		&assessments, &ruleResults, &profileResults, &reasons, &metadata,
	)
	if err != nil {
		return nil, notFound(err)
	}

	var a verificationAssessments
	for _, c := range []struct {
		col  sql.NullString
		dst  any
		what string
	}{
		{assessments, &a, "assessments"},
		{ruleResults, &v.RuleResults, "rule results"},
		{profileResults, &v.ProfileResults, "profile results"},
		{reasons, &v.Reasons, "reasons"},
		{metadata, &v.Metadata, "metadata"},
	} {
		if err := decodeJSON(c.col, c.dst, c.what); err != nil {
			return nil, err
		}
	}
	v.Trust, v.Fraud, v.Route = a.Trust, a.Fraud, a.Route
	return &v, nil
}
