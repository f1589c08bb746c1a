package domain

import "time"

// SupplierAttributes are the historical performance inputs of the trust score.
// Nil fields are missing and take the baseline defaults below.
type SupplierAttributes struct {
	DeliveryPerformance *float64 `json:"deliveryPerformance,omitempty" validate:"omitempty,min=0,max=100"`
	QualityScore        *float64 `json:"qualityScore,omitempty" validate:"omitempty,min=0,max=100"`
	ComplianceScore     *float64 `json:"complianceScore,omitempty" validate:"omitempty,min=0,max=100"`
	FinancialStability  *float64 `json:"financialStability,omitempty" validate:"omitempty,min=0,max=100"`
	YearsInBusiness     *int     `json:"yearsInBusiness,omitempty" validate:"omitempty,min=0"`
	CertificationsCount *int     `json:"certificationsCount,omitempty" validate:"omitempty,min=0"`
}

// Baseline values substituted for missing supplier attributes.
const (
	DefaultDeliveryPerformance = 85.0
	DefaultQualityScore        = 80.0
	DefaultComplianceScore     = 88.0
	DefaultFinancialStability  = 75.0
	DefaultYearsInBusiness     = 5
	DefaultCertificationsCount = 3
)

// ResolvedSupplier holds supplier attributes after default substitution.
type ResolvedSupplier struct {
	DeliveryPerformance float64 `json:"deliveryPerformance"`
	QualityScore        float64 `json:"qualityScore"`
	ComplianceScore     float64 `json:"complianceScore"`
	FinancialStability  float64 `json:"financialStability"`
	YearsInBusiness     int     `json:"yearsInBusiness"`
	CertificationsCount int     `json:"certificationsCount"`
}

// Resolve substitutes the baseline for every missing attribute.
func (a SupplierAttributes) Resolve() ResolvedSupplier {
	r := ResolvedSupplier{
		DeliveryPerformance: DefaultDeliveryPerformance,
		QualityScore:        DefaultQualityScore,
		ComplianceScore:     DefaultComplianceScore,
		FinancialStability:  DefaultFinancialStability,
		YearsInBusiness:     DefaultYearsInBusiness,
		CertificationsCount: DefaultCertificationsCount,
	}
	if a.DeliveryPerformance != nil {
		r.DeliveryPerformance = *a.DeliveryPerformance
	}
	if a.QualityScore != nil {
		r.QualityScore = *a.QualityScore
	}
	if a.ComplianceScore != nil {
		r.ComplianceScore = *a.ComplianceScore
	}
	if a.FinancialStability != nil {
		r.FinancialStability = *a.FinancialStability
	}
	if a.YearsInBusiness != nil {
		r.YearsInBusiness = *a.YearsInBusiness
	}
	if a.CertificationsCount != nil {
		r.CertificationsCount = *a.CertificationsCount
	}
	return r
}

// TrustBand is the qualitative label shown next to a trust score.
type TrustBand string

const (
	TrustExcellent TrustBand = "Excellent"
	TrustGood      TrustBand = "Good"
	TrustFair      TrustBand = "Fair"
	TrustPoor      TrustBand = "Poor"
)

// TrustAssessment records one trust score computation for a supplier.
type TrustAssessment struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenantId,omitempty"`
	SupplierID string           `json:"supplierId"`
	Score      float64          `json:"score"`
	Band       TrustBand        `json:"band"`
	Attributes ResolvedSupplier `json:"attributes"`
	CreatedAt  time.Time        `json:"createdAt"`
}
