package domain

import "time"

// Verification is the aggregated decision for a product moving along a route.
type Verification struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	ProductID  string    `json:"productId"`
	SupplierID string    `json:"supplierId"`
	Sector     string    `json:"sector,omitempty"`
	Status     string    `json:"status"`
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`

	Trust *TrustAssessment `json:"trust,omitempty"`
	Fraud *FraudAssessment `json:"fraud,omitempty"`
	Route *RouteResult     `json:"route,omitempty"`

	RuleResults    []RuleResult    `json:"ruleResults"`
	ProfileResults []ProfileResult `json:"profileResults,omitempty"`

	Reasons  []string             `json:"reasons,omitempty"`
	Metadata VerificationMetadata `json:"metadata"`
}

// VerificationMetadata contains processing information.
type VerificationMetadata struct {
	TraceID           string `json:"traceId"`
	ScoringMs         int64  `json:"scoringMs"`
	RulesMs           int64  `json:"rulesMs"`
	DecisionMs        int64  `json:"decisionMs"`
	TotalMs           int64  `json:"totalMs"`
	RulesEvaluated    int    `json:"rulesEvaluated"`
	ProfilesEvaluated int    `json:"profilesEvaluated"`
	EngineVersion     string `json:"engineVersion"`
}

// Verification statuses
const (
	StatusVerified = "VERIFIED"
	StatusReview   = "REVIEW"
	StatusRejected = "REJECTED"
)

// VerificationRequest is the input for a verification run.
type VerificationRequest struct {
	ProductID   string                `json:"productId" validate:"required"`
	SupplierID  string                `json:"supplierId" validate:"required"`
	Sector      string                `json:"sector,omitempty"`
	Supplier    SupplierAttributes    `json:"supplier"`
	Transaction TransactionAttributes `json:"transaction"`
	Route       *RouteRequest         `json:"route,omitempty"`
	TraceID     string                `json:"traceId,omitempty"`
}
