package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/rules"
	"github.com/chainflow-labs/chainflow/internal/scoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("chainflow/verify")

// ErrInvalidRequest is returned for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid verification request")

// RoutePlanner plans the route of a verified shipment.
type RoutePlanner interface {
	OptimizeRoute(ctx context.Context, req domain.RouteRequest) *domain.RouteResult
}

// Store persists the records produced by a verification run.
type Store interface {
	SaveRoute(ctx context.Context, tenantID string, route *domain.RouteResult) error
	SaveTrustAssessment(ctx context.Context, tenantID string, a *domain.TrustAssessment) error
	SaveFraudAssessment(ctx context.Context, tenantID string, a *domain.FraudAssessment) error
	SaveVerification(ctx context.Context, tenantID string, v *domain.Verification) error
}

// Pipeline runs scoring, routing, compliance rules and profiles, then decides.
// Every dependency is optional; a nil Scorer scores fraud with the constant
// fallback.
type Pipeline struct {
	Scorer    *scoring.Scorer
	Planner   RoutePlanner
	Rules     *rules.Engine
	Profiles  *rules.ProfileEngine
	Processor *Processor
	Store     Store
}

// Run verifies one product shipment for a tenant.
func (p *Pipeline) Run(ctx context.Context, tenantID string, req *domain.VerificationRequest) (*domain.Verification, error) {
	if tenantID == "" || req == nil || req.ProductID == "" || req.SupplierID == "" {
		return nil, fmt.Errorf("%w: tenant, productId and supplierId are required", ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "verify.Run")
	defer span.End()

	start := time.Now()

	scorer := p.Scorer
	if scorer == nil {
		scorer = scoring.NewScorer(nil)
	}
	trust := scorer.AssessTrust(req.SupplierID, req.Supplier)
	trust.TenantID = tenantID
	fraud := scorer.FraudRisk(ctx, req.Transaction)
	fraud.TenantID = tenantID

	var route *domain.RouteResult
	if req.Route != nil && p.Planner != nil {
		route = p.Planner.OptimizeRoute(ctx, *req.Route)
		route.TenantID = tenantID
	}
	scoringMs := time.Since(start).Milliseconds()

	rulesStart := time.Now()
	var ruleResults []domain.RuleResult
	if p.Rules != nil {
		var err error
		ruleResults, err = p.Rules.EvaluateAll(ctx, &rules.EvaluateInput{
			TenantID:         tenantID,
			SubjectID:        req.ProductID,
			SupplierID:       req.SupplierID,
			Sector:           req.Sector,
			TrustScore:       trust.Score,
			FraudProbability: fraud.Probability,
			Route:            route,
			Attrs:            ruleAttrs(req, trust),
		})
		if err != nil {
			return nil, fmt.Errorf("rule evaluation failed: %w", err)
		}
	}

	var profileResults []domain.ProfileResult
	if p.Profiles != nil {
		profileResults = p.Profiles.Evaluate(req.Sector, ruleResults)
	}
	rulesMs := time.Since(rulesStart).Milliseconds()

	processor := p.Processor
	if processor == nil {
		processor = NewProcessor()
	}
	v := processor.Process(ctx, &DecisionInput{
		TenantID:       tenantID,
		ProductID:      req.ProductID,
		SupplierID:     req.SupplierID,
		Sector:         req.Sector,
		TraceID:        req.TraceID,
		Trust:          trust,
		Fraud:          fraud,
		Route:          route,
		RuleResults:    ruleResults,
		ProfileResults: profileResults,
		StartTime:      start,
		ScoringMs:      scoringMs,
		RulesMs:        rulesMs,
	})

	span.SetAttributes(
		attribute.String("verification.id", v.ID),
		attribute.String("verification.status", v.Status),
		attribute.Float64("verification.score", v.Score),
	)

	if p.Store != nil {
		if err := p.persist(ctx, tenantID, v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// persist stores the assessments best-effort and the verification strictly.
func (p *Pipeline) persist(ctx context.Context, tenantID string, v *domain.Verification) error {
	if err := p.Store.SaveTrustAssessment(ctx, tenantID, v.Trust); err != nil {
		slog.Warn("failed to save trust assessment", "verification_id", v.ID, "error", err)
	}
	if err := p.Store.SaveFraudAssessment(ctx, tenantID, v.Fraud); err != nil {
		slog.Warn("failed to save fraud assessment", "verification_id", v.ID, "error", err)
	}
	if v.Route != nil {
		if err := p.Store.SaveRoute(ctx, tenantID, v.Route); err != nil {
			slog.Warn("failed to save route", "verification_id", v.ID, "error", err)
		}
	}
	if err := p.Store.SaveVerification(ctx, tenantID, v); err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}
	return nil
}

// ruleAttrs exposes the raw request to CEL as attrs.
func ruleAttrs(req *domain.VerificationRequest, trust *domain.TrustAssessment) map[string]any {
	attrs := make(map[string]any, domain.FeatureCount+8)
	for i, v := range req.Transaction.Features() {
		attrs[domain.FeatureNames[i]] = v
	}
	s := trust.Attributes
	attrs["delivery_performance"] = s.DeliveryPerformance
	attrs["quality_score"] = s.QualityScore
	attrs["compliance_score"] = s.ComplianceScore
	attrs["financial_stability"] = s.FinancialStability
	attrs["years_in_business"] = int64(s.YearsInBusiness)
	attrs["certifications_count"] = int64(s.CertificationsCount)
	attrs["product_id"] = req.ProductID
	attrs["supplier_id"] = req.SupplierID
	return attrs
}
