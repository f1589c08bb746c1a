// Package verify turns trust, fraud and compliance results into a single
// verification decision.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/rules"
	"github.com/google/uuid"
)

// EngineVersion is stamped on every verification.
const EngineVersion = "chainflow-1.0"

// Composite score weights.
const (
	TrustWeight      = 0.4
	FraudWeight      = 0.4
	ComplianceWeight = 0.2
)

// Processor aggregates assessment and rule results into a decision.
type Processor struct {
	// TrustReviewThreshold sends suppliers below it to review.
	TrustReviewThreshold float64
}

// NewProcessor creates a processor with default thresholds.
func NewProcessor() *Processor {
	return &Processor{
		TrustReviewThreshold: 75,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID       string
	ProductID      string
	SupplierID     string
	Sector         string
	TraceID        string
	Trust          *domain.TrustAssessment
	Fraud          *domain.FraudAssessment
	Route          *domain.RouteResult
	RuleResults    []domain.RuleResult
	ProfileResults []domain.ProfileResult
	StartTime      time.Time
	ScoringMs      int64
	RulesMs        int64
}

// Process produces the verification for input.
//
// REJECTED when a rule fails, a profile triggers or fraud risk is High.
// REVIEW when a rule asks for review or errors, fraud risk is Medium, the
// fraud model is degraded, or trust is below the review threshold.
// Anything else is VERIFIED.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Verification {
	start := time.Now()
	if input.StartTime.IsZero() {
		input.StartTime = start
	}

	v := &domain.Verification{
		ID:             uuid.New().String(),
		TenantID:       input.TenantID,
		ProductID:      input.ProductID,
		SupplierID:     input.SupplierID,
		Sector:         input.Sector,
		Timestamp:      time.Now().UTC(),
		Trust:          input.Trust,
		Fraud:          input.Fraud,
		Route:          input.Route,
		RuleResults:    input.RuleResults,
		ProfileResults: input.ProfileResults,
	}
	if v.RuleResults == nil {
		v.RuleResults = []domain.RuleResult{}
	}

	var rejected, review bool
	var reasons []string

	for _, r := range input.RuleResults {
		switch r.SubRuleRef {
		case domain.RuleOutcomeFail:
			rejected = true
			reasons = append(reasons, ruleReason(r))
		case domain.RuleOutcomeReview, domain.RuleOutcomeError:
			review = true
			reasons = append(reasons, ruleReason(r))
		}
	}

	for _, pr := range rules.Triggered(input.ProfileResults) {
		rejected = true
		reasons = append(reasons, fmt.Sprintf("profile %s triggered (score %.2f >= %.2f)", pr.ProfileName, pr.Score, pr.Threshold))
	}

	if f := input.Fraud; f != nil {
		switch f.RiskLevel {
		case domain.RiskHigh:
			rejected = true
			reasons = append(reasons, fmt.Sprintf("high fraud risk (p=%.2f)", f.Probability))
		case domain.RiskMedium:
			review = true
			reasons = append(reasons, fmt.Sprintf("medium fraud risk (p=%.2f)", f.Probability))
		}
		if f.Degraded {
			review = true
			reasons = append(reasons, "fraud model unavailable, fallback probability used")
		}
	}

	if t := input.Trust; t != nil && t.Score < p.TrustReviewThreshold {
		review = true
		reasons = append(reasons, fmt.Sprintf("supplier trust %.1f below %.0f", t.Score, p.TrustReviewThreshold))
	}

	switch {
	case rejected:
		v.Status = domain.StatusRejected
	case review:
		v.Status = domain.StatusReview
	default:
		v.Status = domain.StatusVerified
	}

	v.Score = CompositeScore(input.Trust, input.Fraud, input.RuleResults)
	v.Reasons = reasons

	v.Metadata = domain.VerificationMetadata{
		TraceID:           input.TraceID,
		ScoringMs:         input.ScoringMs,
		RulesMs:           input.RulesMs,
		DecisionMs:        time.Since(start).Milliseconds(),
		TotalMs:           time.Since(input.StartTime).Milliseconds(),
		RulesEvaluated:    len(input.RuleResults),
		ProfilesEvaluated: len(input.ProfileResults),
		EngineVersion:     EngineVersion,
	}
	return v
}

func ruleReason(r domain.RuleResult) string {
	if r.Reason == "" {
		return fmt.Sprintf("rule %s: %s", r.RuleID, r.SubRuleRef)
	}
	return fmt.Sprintf("rule %s: %s", r.RuleID, r.Reason)
}

// CompositeScore blends trust, fraud and compliance into [0,1]. A missing
// trust or fraud assessment contributes its neutral midpoint.
func CompositeScore(trust *domain.TrustAssessment, fraud *domain.FraudAssessment, results []domain.RuleResult) float64 {
	trustPart := 0.5
	if trust != nil {
		trustPart = trust.Score / 100
	}
	fraudPart := 0.5
	if fraud != nil {
		fraudPart = 1 - fraud.Probability
	}
	score := TrustWeight*trustPart + FraudWeight*fraudPart + ComplianceWeight*Compliance(results)
	return min(max(score, 0), 1)
}

// Compliance is one minus the weighted mean rule risk. Rules with a
// non-positive weight count once. No rules means full compliance.
func Compliance(results []domain.RuleResult) float64 {
	var risk, total float64
	for _, r := range results {
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		risk += w * rules.RuleRisk(r)
		total += w
	}
	if total == 0 {
		return 1
	}
	return 1 - risk/total
}

// IsRejected reports whether the verification was rejected.
func IsRejected(v *domain.Verification) bool {
	return v.Status == domain.StatusRejected
}
