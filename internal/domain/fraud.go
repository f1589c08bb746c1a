package domain

import "time"

// TransactionAttributes are the seven features fed to the fraud model.
type TransactionAttributes struct {
	Amount                    float64 `json:"amount"`
	DeliveryTimeHours         float64 `json:"deliveryTimeHours"`
	SupplierTrustScore        float64 `json:"supplierTrustScore"`
	RouteDeviationKm          float64 `json:"routeDeviationKm"`
	TemperatureVariance       float64 `json:"temperatureVariance"`
	DocumentationCompleteness float64 `json:"documentationCompleteness"`
	PaymentDelayHours         float64 `json:"paymentDelayHours"`
}

// FeatureCount is the width of the fraud feature vector.
const FeatureCount = 7

// FeatureNames lists the feature vector columns in order.
var FeatureNames = [FeatureCount]string{
	"amount",
	"delivery_time_hours",
	"supplier_trust_score",
	"route_deviation_km",
	"temperature_variance",
	"documentation_completeness",
	"payment_delay_hours",
}

// Features returns the attributes as a feature vector in FeatureNames order.
func (t TransactionAttributes) Features() []float64 {
	return []float64{
		t.Amount,
		t.DeliveryTimeHours,
		t.SupplierTrustScore,
		t.RouteDeviationKm,
		t.TemperatureVariance,
		t.DocumentationCompleteness,
		t.PaymentDelayHours,
	}
}

// Fraud probability thresholds. Both comparisons are strict "less than".
const (
	FraudLowThreshold    = 0.3
	FraudMediumThreshold = 0.7
)

// FraudRiskLevel maps a probability to Low (<0.3), Medium (<0.7) or High.
func FraudRiskLevel(probability float64) RiskLevel {
	switch {
	case probability < FraudLowThreshold:
		return RiskLow
	case probability < FraudMediumThreshold:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Fraud model identifiers.
const (
	ModelRandomForest     = "random_forest"
	ModelConstantFallback = "constant_fallback"
)

// FraudAssessment is the output of a fraud risk scoring call.
type FraudAssessment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId,omitempty"`
	Probability float64   `json:"probability"`
	RiskLevel   RiskLevel `json:"riskLevel"`

	// Degraded is true when the constant fallback produced the probability.
	Degraded      bool    `json:"degraded"`
	Model         string  `json:"model"`
	ModelAccuracy float64 `json:"modelAccuracy"`

	Attributes TransactionAttributes `json:"attributes"`
	CreatedAt  time.Time             `json:"createdAt"`
}
