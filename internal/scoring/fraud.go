package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("chainflow-scoring")

// FraudModel predicts the probability that a transaction is fraudulent.
type FraudModel interface {
	Predict(attrs domain.TransactionAttributes) float64

	// Trained is false for the constant fallback.
	Trained() bool

	Accuracy() float64
	Name() string
}

// Constant fallback contract.
const (
	FallbackProbability = 0.5
	FallbackAccuracy    = 0.85
)

// ConstantModel is the degraded fraud model used when no trained forest is
// available. It never claims to be trained.
type ConstantModel struct{}

func (ConstantModel) Predict(domain.TransactionAttributes) float64 { return FallbackProbability }
func (ConstantModel) Trained() bool { return false }
func (ConstantModel) Accuracy() float64 { return FallbackAccuracy }
func (ConstantModel) Name() string { return domain.ModelConstantFallback }

// NewFraudModel selects the fraud backend once at startup. The forest backend
// falls back to ConstantModel with a warning if training fails.
func NewFraudModel(cfg domain.EngineConfig) FraudModel {
	if cfg.FraudBackend == domain.FraudBackendConstant {
		slog.Warn("fraud model running in degraded mode", "backend", cfg.FraudBackend)
		return ConstantModel{}
	}

	fc := DefaultForestConfig()
	fc.Seed = cfg.Seed
	if cfg.SyntheticSamples > 0 {
		fc.Samples = cfg.SyntheticSamples
	}
	if cfg.ForestTrees > 0 {
		fc.Trees = cfg.ForestTrees
	}
	if cfg.ForestMaxDepth > 0 {
		fc.MaxDepth = cfg.ForestMaxDepth
	}
	fc.SnapshotPath = cfg.ForestSnapshot

	start := time.Now()
	model, err := TrainForest(fc)
	if err != nil {
		slog.Warn("fraud model training failed, using constant fallback",
			"error", err,
		)
		return ConstantModel{}
	}

	slog.Info("fraud model trained",
		"trees", model.TreeCount(),
		"restored", model.Restored(),
		"samples", fc.Samples,
		"accuracy", model.Accuracy(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return model
}

// Scorer exposes trust and fraud scoring over a fixed fraud model.
type Scorer struct {
	model FraudModel
}

// NewScorer creates a scorer over the given model.
func NewScorer(model FraudModel) *Scorer {
	if model == nil {
		model = ConstantModel{}
	}
	return &Scorer{model: model}
}

// Model returns the fraud model in use.
func (s *Scorer) Model() FraudModel {
	return s.model
}

// Degraded reports whether fraud scoring runs on the constant fallback.
func (s *Scorer) Degraded() bool {
	return !s.model.Trained()
}

// TrustScore computes the supplier trust score.
func (s *Scorer) TrustScore(attrs domain.SupplierAttributes) float64 {
	return TrustScore(attrs)
}

// AssessTrust scores a supplier into an assessment record.
func (s *Scorer) AssessTrust(supplierID string, attrs domain.SupplierAttributes) *domain.TrustAssessment {
	return AssessTrust(supplierID, attrs)
}

// FraudRisk scores a transaction. Results from the constant fallback carry
// Degraded=true.
func (s *Scorer) FraudRisk(ctx context.Context, attrs domain.TransactionAttributes) *domain.FraudAssessment {
	_, span := tracer.Start(ctx, "scoring.FraudRisk")
	defer span.End()

	p := clamp(s.model.Predict(attrs), 0, 1)
	risk := domain.FraudRiskLevel(p)

	span.SetAttributes(
		attribute.Float64("fraud.probability", p),
		attribute.String("fraud.risk_level", string(risk)),
		attribute.Bool("fraud.degraded", !s.model.Trained()),
	)

	return &domain.FraudAssessment{
		ID:            uuid.New().String(),
		Probability:   p,
		RiskLevel:     risk,
		Degraded:      !s.model.Trained(),
		Model:         s.model.Name(),
		ModelAccuracy: s.model.Accuracy(),
		Attributes:    attrs,
		CreatedAt:     time.Now().UTC(),
	}
}
