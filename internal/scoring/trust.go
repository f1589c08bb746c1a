// Package scoring computes supplier trust scores and transaction fraud risk.
package scoring

import (
	"math"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/google/uuid"
)

// Trust score weights.
const (
	weightDelivery   = 0.25
	weightQuality    = 0.25
	weightCompliance = 0.20
	weightFinancial  = 0.15
	weightYears      = 0.10
	weightCerts      = 0.05
)

// Years in business and certification counts saturate at these values.
const (
	yearsForFullScore = 20.0
	certsForFullScore = 10.0
)

// TrustScore computes the weighted supplier trust score in [0,100].
// Missing attributes take the domain defaults.
func TrustScore(attrs domain.SupplierAttributes) float64 {
	return trustScore(attrs.Resolve())
}

func trustScore(r domain.ResolvedSupplier) float64 {
	yearsScore := clamp(float64(r.YearsInBusiness)/yearsForFullScore*100, 0, 100)
	certScore := clamp(float64(r.CertificationsCount)/certsForFullScore*100, 0, 100)

	score := r.DeliveryPerformance*weightDelivery +
		r.QualityScore*weightQuality +
		r.ComplianceScore*weightCompliance +
		r.FinancialStability*weightFinancial +
		yearsScore*weightYears +
		certScore*weightCerts

	return clamp(score, 0, 100)
}

// BandFor maps a trust score to its qualitative band.
func BandFor(score float64) domain.TrustBand {
	switch {
	case score >= 90:
		return domain.TrustExcellent
	case score >= 75:
		return domain.TrustGood
	case score >= 60:
		return domain.TrustFair
	default:
		return domain.TrustPoor
	}
}

// AssessTrust scores a supplier and wraps the result in an assessment record.
func AssessTrust(supplierID string, attrs domain.SupplierAttributes) *domain.TrustAssessment {
	resolved := attrs.Resolve()
	score := trustScore(resolved)
	return &domain.TrustAssessment{
		ID:         uuid.New().String(),
		SupplierID: supplierID,
		Score:      score,
		Band:       BandFor(score),
		Attributes: resolved,
		CreatedAt:  time.Now().UTC(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
