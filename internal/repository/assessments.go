package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// SaveTrustAssessment stores a supplier trust score computation.
func (r *SQLRepository) SaveTrustAssessment(ctx context.Context, tenantID string, a *domain.TrustAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if a.SupplierID == "" {
		return fmt.Errorf("%w: supplierID is required", ErrInvalidInput)
	}
	attrs, err := encodeJSON(a.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trust_assessments (id, tenant_id, supplier_id, score, band, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.SupplierID, a.Score, string(a.Band), attrs, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trust assessment: %w", err)
	}
	return nil
}

// GetTrustAssessment retrieves a trust assessment by ID.
func (r *SQLRepository) GetTrustAssessment(ctx context.Context, tenantID string, id string) (*domain.TrustAssessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, supplier_id, score, band, attributes, created_at
		FROM trust_assessments
		WHERE tenant_id = ? AND id = ?
	`
	var a domain.TrustAssessment
	var attrs sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&a.ID, &a.TenantID, &a.SupplierID, &a.Score, &a.Band, &attrs, &a.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := decodeJSON(attrs, &a.Attributes, "supplier attributes"); err != nil {
		return nil, err
	}
	return &a, nil
}

// CountTrustAssessmentsBySupplier counts a supplier's assessments since the given time.
func (r *SQLRepository) CountTrustAssessmentsBySupplier(ctx context.Context, tenantID string, supplierID string, since time.Time) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*) FROM trust_assessments
		WHERE tenant_id = ? AND supplier_id = ? AND created_at >= ?
	`
	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, supplierID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trust assessments: %w", err)
	}
	return count, nil
}

// SaveFraudAssessment stores a fraud scoring result.
func (r *SQLRepository) SaveFraudAssessment(ctx context.Context, tenantID string, a *domain.FraudAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	attrs, err := encodeJSON(a.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO fraud_assessments (
			id, tenant_id, probability, risk_level, degraded, model, model_accuracy, attributes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.Probability, string(a.RiskLevel), boolToInt(a.Degraded),
		a.Model, a.ModelAccuracy, attrs, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save fraud assessment: %w", err)
	}
	return nil
}

// GetFraudAssessment retrieves a fraud assessment by ID.
func (r *SQLRepository) GetFraudAssessment(ctx context.Context, tenantID string, id string) (*domain.FraudAssessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, probability, risk_level, degraded, model, model_accuracy, attributes, created_at
		FROM fraud_assessments
		WHERE tenant_id = ? AND id = ?
	`
	var a domain.FraudAssessment
	var degraded int
	var attrs sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&a.ID, &a.TenantID, &a.Probability, &a.RiskLevel, &degraded,
		&a.Model, &a.ModelAccuracy, &attrs, &a.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	a.Degraded = degraded == 1
	if err := decodeJSON(attrs, &a.Attributes, "transaction attributes"); err != nil {
		return nil, err
	}
	return &a, nil
}
