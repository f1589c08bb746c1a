package scoring

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int { return &v }

func TestTrustScore_Example(t *testing.T) {
	attrs := domain.SupplierAttributes{
		DeliveryPerformance: f64(95),
		QualityScore:        f64(92),
		ComplianceScore:     f64(98),
		FinancialStability:  f64(90),
		YearsInBusiness:     intp(15),
		CertificationsCount: intp(8),
	}

	// 95*.25 + 92*.25 + 98*.2 + 90*.15 + 75*.1 + 80*.05
	want := 91.35
	got := TrustScore(attrs)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %.4f, got %.4f", want, got)
	}
	if BandFor(got) != domain.TrustExcellent {
		t.Errorf("expected Excellent band, got %s", BandFor(got))
	}
}

func TestTrustScore_Defaults(t *testing.T) {
	// 85*.25 + 80*.25 + 88*.2 + 75*.15 + 25*.1 + 30*.05
	want := 21.25 + 20 + 17.6 + 11.25 + 2.5 + 1.5
	got := TrustScore(domain.SupplierAttributes{})
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %.4f, got %.4f", want, got)
	}
}

func TestTrustScore_Range(t *testing.T) {
	tests := []struct {
		name  string
		attrs domain.SupplierAttributes
		want  float64
	}{
		{
			name: "AllMax",
			attrs: domain.SupplierAttributes{
				DeliveryPerformance: f64(100), QualityScore: f64(100), ComplianceScore: f64(100),
				FinancialStability: f64(100), YearsInBusiness: intp(50), CertificationsCount: intp(40),
			},
			want: 100,
		},
		{
			name: "AllZero",
			attrs: domain.SupplierAttributes{
				DeliveryPerformance: f64(0), QualityScore: f64(0), ComplianceScore: f64(0),
				FinancialStability: f64(0), YearsInBusiness: intp(0), CertificationsCount: intp(0),
			},
			want: 0,
		},
		{
			name: "OutOfRangeClamped",
			attrs: domain.SupplierAttributes{
				DeliveryPerformance: f64(500), QualityScore: f64(500), ComplianceScore: f64(500),
				FinancialStability: f64(500), YearsInBusiness: intp(-10), CertificationsCount: intp(-3),
			},
			want: 100,
		},
		{
			name: "NegativeClamped",
			attrs: domain.SupplierAttributes{
				DeliveryPerformance: f64(-100), QualityScore: f64(-100), ComplianceScore: f64(0),
				FinancialStability: f64(0), YearsInBusiness: intp(0), CertificationsCount: intp(0),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrustScore(tt.attrs)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

func TestTrustScore_Monotonic(t *testing.T) {
	base := func() domain.SupplierAttributes {
		return domain.SupplierAttributes{
			DeliveryPerformance: f64(50), QualityScore: f64(50), ComplianceScore: f64(50),
			FinancialStability: f64(50), YearsInBusiness: intp(5), CertificationsCount: intp(3),
		}
	}

	bumps := map[string]func(a *domain.SupplierAttributes, step int){
		"delivery":   func(a *domain.SupplierAttributes, s int) { a.DeliveryPerformance = f64(float64(s * 10)) },
		"quality":    func(a *domain.SupplierAttributes, s int) { a.QualityScore = f64(float64(s * 10)) },
		"compliance": func(a *domain.SupplierAttributes, s int) { a.ComplianceScore = f64(float64(s * 10)) },
		"financial":  func(a *domain.SupplierAttributes, s int) { a.FinancialStability = f64(float64(s * 10)) },
		"years":      func(a *domain.SupplierAttributes, s int) { a.YearsInBusiness = intp(s * 3) },
		"certs":      func(a *domain.SupplierAttributes, s int) { a.CertificationsCount = intp(s * 2) },
	}

	for name, bump := range bumps {
		t.Run(name, func(t *testing.T) {
			prev := -1.0
			for step := 0; step <= 10; step++ {
				a := base()
				bump(&a, step)
				score := TrustScore(a)
				if score < prev {
					t.Fatalf("score decreased at step %d: %.4f < %.4f", step, score, prev)
				}
				if score < 0 || score > 100 {
					t.Fatalf("score out of range: %.4f", score)
				}
				prev = score
			}
		})
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.TrustBand
	}{
		{95, domain.TrustExcellent},
		{90, domain.TrustExcellent},
		{89.99, domain.TrustGood},
		{75, domain.TrustGood},
		{74.9, domain.TrustFair},
		{60, domain.TrustFair},
		{59.9, domain.TrustPoor},
		{0, domain.TrustPoor},
	}
	for _, tt := range tests {
		if got := BandFor(tt.score); got != tt.want {
			t.Errorf("BandFor(%v): expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestAssessTrust(t *testing.T) {
	a := AssessTrust("SUP-001", domain.SupplierAttributes{QualityScore: f64(60)})
	if a.ID == "" {
		t.Error("expected assessment ID")
	}
	if a.SupplierID != "SUP-001" {
		t.Errorf("expected supplier SUP-001, got %s", a.SupplierID)
	}
	if a.Attributes.QualityScore != 60 {
		t.Errorf("expected quality 60, got %v", a.Attributes.QualityScore)
	}
	if a.Attributes.DeliveryPerformance != domain.DefaultDeliveryPerformance {
		t.Errorf("expected default delivery, got %v", a.Attributes.DeliveryPerformance)
	}
	if a.Band != BandFor(a.Score) {
		t.Errorf("band %s does not match score %.2f", a.Band, a.Score)
	}
}

func TestFraudRiskLevelBoundaries(t *testing.T) {
	tests := []struct {
		p    float64
		want domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{0.29, domain.RiskLow},
		{0.30, domain.RiskMedium},
		{0.69, domain.RiskMedium},
		{0.70, domain.RiskHigh},
		{1, domain.RiskHigh},
	}
	for _, tt := range tests {
		if got := domain.FraudRiskLevel(tt.p); got != tt.want {
			t.Errorf("FraudRiskLevel(%v): expected %s, got %s", tt.p, tt.want, got)
		}
	}
}

func TestConstantModel(t *testing.T) {
	s := NewScorer(ConstantModel{})
	a := s.FraudRisk(context.Background(), domain.TransactionAttributes{Amount: 1e9})

	if a.Probability != FallbackProbability {
		t.Errorf("expected probability %v, got %v", FallbackProbability, a.Probability)
	}
	if a.RiskLevel != domain.RiskMedium {
		t.Errorf("expected Medium, got %s", a.RiskLevel)
	}
	if !a.Degraded {
		t.Error("fallback result must be flagged degraded")
	}
	if a.Model != domain.ModelConstantFallback {
		t.Errorf("expected model %s, got %s", domain.ModelConstantFallback, a.Model)
	}
	if a.ModelAccuracy != FallbackAccuracy {
		t.Errorf("expected accuracy %v, got %v", FallbackAccuracy, a.ModelAccuracy)
	}
	if !s.Degraded() {
		t.Error("scorer should report degraded")
	}
}

func TestNewFraudModel(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		m := NewFraudModel(domain.EngineConfig{FraudBackend: domain.FraudBackendConstant})
		if m.Trained() {
			t.Error("constant backend must not report trained")
		}
	})

	t.Run("TrainingFailureFallsBack", func(t *testing.T) {
		m := NewFraudModel(domain.EngineConfig{
			FraudBackend:     domain.FraudBackendForest,
			SyntheticSamples: 5,
		})
		if m.Trained() {
			t.Error("expected fallback after failed training")
		}
		if m.Name() != domain.ModelConstantFallback {
			t.Errorf("expected fallback model, got %s", m.Name())
		}
	})

	t.Run("Forest", func(t *testing.T) {
		m := NewFraudModel(domain.EngineConfig{
			FraudBackend: domain.FraudBackendForest,
			Seed:         7,
			ForestTrees:  15,
		})
		if !m.Trained() {
			t.Fatal("expected trained forest")
		}
		if m.Name() != domain.ModelRandomForest {
			t.Errorf("expected %s, got %s", domain.ModelRandomForest, m.Name())
		}
	})
}

func smallForest(seed uint64) ForestConfig {
	cfg := DefaultForestConfig()
	cfg.Seed = seed
	cfg.Trees = 25
	return cfg
}

func TestTrainForest(t *testing.T) {
	model, err := TrainForest(smallForest(42))
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if model.TreeCount() != 25 {
		t.Errorf("expected 25 trees, got %d", model.TreeCount())
	}
	if model.Accuracy() < 0.8 {
		t.Errorf("expected hold-out accuracy >= 0.8, got %.3f", model.Accuracy())
	}

	s := NewScorer(model)
	if s.Degraded() {
		t.Error("trained scorer should not be degraded")
	}

	normal := domain.TransactionAttributes{
		Amount: 5000, DeliveryTimeHours: 48, SupplierTrustScore: 80, RouteDeviationKm: 5,
		TemperatureVariance: 2, DocumentationCompleteness: 90, PaymentDelayHours: 24,
	}
	fraud := domain.TransactionAttributes{
		Amount: 9000, DeliveryTimeHours: 72, SupplierTrustScore: 96, RouteDeviationKm: 11,
		TemperatureVariance: 4, DocumentationCompleteness: 100, PaymentDelayHours: 40,
	}

	pn := s.FraudRisk(context.Background(), normal)
	pf := s.FraudRisk(context.Background(), fraud)

	if pn.Probability >= 0.5 {
		t.Errorf("expected typical normal transaction below 0.5, got %.3f", pn.Probability)
	}
	if pf.Probability <= 0.5 {
		t.Errorf("expected typical fraud transaction above 0.5, got %.3f", pf.Probability)
	}
	if pn.Degraded || pf.Degraded {
		t.Error("trained results must not be flagged degraded")
	}
	if pf.Model != domain.ModelRandomForest {
		t.Errorf("expected model %s, got %s", domain.ModelRandomForest, pf.Model)
	}
	for _, a := range []*domain.FraudAssessment{pn, pf} {
		if a.Probability < 0 || a.Probability > 1 {
			t.Errorf("probability out of range: %v", a.Probability)
		}
	}
}

func TestTrainForest_DatasetDeterministic(t *testing.T) {
	a, err := TrainForest(smallForest(99))
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	b, err := TrainForest(smallForest(99))
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	// Same seed, same training split, so the scalers agree exactly.
	row := []float64{4000, 40, 70, 2, 1, 85, 20}
	sa, sb := a.scaler.Transform(row), b.scaler.Transform(row)
	for i := range sa {
		if sa[i] != sb[i] {
			t.Errorf("feature %d scaled differently: %v vs %v", i, sa[i], sb[i])
		}
	}
}

func sampleTransactions() []domain.TransactionAttributes {
	return []domain.TransactionAttributes{
		{Amount: 4000, DeliveryTimeHours: 40, SupplierTrustScore: 70, RouteDeviationKm: 2, TemperatureVariance: 1, DocumentationCompleteness: 85, PaymentDelayHours: 20},
		{Amount: 7000, DeliveryTimeHours: 60, SupplierTrustScore: 88, RouteDeviationKm: 8, TemperatureVariance: 3, DocumentationCompleteness: 95, PaymentDelayHours: 32},
		{Amount: 12000, DeliveryTimeHours: 90, SupplierTrustScore: 99, RouteDeviationKm: 15, TemperatureVariance: 5, DocumentationCompleteness: 99, PaymentDelayHours: 50},
	}
}

func TestTrainForest_Snapshot(t *testing.T) {
	cfg := smallForest(11)
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "forest.json")

	trained, err := TrainForest(cfg)
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	if trained.Restored() {
		t.Fatal("first run has no snapshot to restore")
	}
	if _, err := os.Stat(cfg.SnapshotPath); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	restored, err := TrainForest(cfg)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !restored.Restored() || restored.TreeCount() != trained.TreeCount() {
		t.Fatalf("expected %d restored trees, got restored=%v count=%d",
			trained.TreeCount(), restored.Restored(), restored.TreeCount())
	}
	// Snapshots keep five decimals.
	for i, tx := range sampleTransactions() {
		if d := math.Abs(trained.Predict(tx) - restored.Predict(tx)); d > 1e-3 {
			t.Errorf("transaction %d: predictions differ by %v", i, d)
		}
	}
	if math.Abs(trained.Accuracy()-restored.Accuracy()) > 0.02 {
		t.Errorf("accuracy drifted: %v vs %v", trained.Accuracy(), restored.Accuracy())
	}

	t.Run("ParameterChangeRetrains", func(t *testing.T) {
		other := cfg
		other.Trees = 10
		m, err := TrainForest(other)
		if err != nil {
			t.Fatalf("training failed: %v", err)
		}
		if m.Restored() || m.TreeCount() != 10 {
			t.Errorf("expected a fresh 10-tree forest, got restored=%v count=%d", m.Restored(), m.TreeCount())
		}
	})

	t.Run("CorruptSnapshotRetrains", func(t *testing.T) {
		bad := cfg
		bad.SnapshotPath = filepath.Join(t.TempDir(), "forest.json")
		if err := os.WriteFile(bad.SnapshotPath, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		m, err := TrainForest(bad)
		if err != nil {
			t.Fatalf("training failed: %v", err)
		}
		if m.Restored() {
			t.Error("corrupt snapshot must not be restored")
		}
	})
}

func TestTrainForest_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ForestConfig)
	}{
		{"TooFewSamples", func(c *ForestConfig) { c.Samples = 3 }},
		{"NoTrees", func(c *ForestConfig) { c.Trees = 0 }},
		{"BadRatio", func(c *ForestConfig) { c.FraudRatio = 1 }},
		{"BadSplit", func(c *ForestConfig) { c.TestFraction = 0 }},
		{"NoDepth", func(c *ForestConfig) { c.MaxDepth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultForestConfig()
			tt.modify(&cfg)
			if _, err := TrainForest(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGenerateDataset(t *testing.T) {
	cfg := DefaultForestConfig()
	rng := newTestRand(cfg.Seed)
	ds := GenerateDataset(rng, cfg.Samples, cfg.FraudRatio)

	if ds.Len() != 1000 {
		t.Fatalf("expected 1000 samples, got %d", ds.Len())
	}
	fraud := 0
	for _, y := range ds.Y {
		fraud += y
	}
	if fraud != 200 {
		t.Errorf("expected 200 fraud samples, got %d", fraud)
	}

	train, test := ds.Split(0.2)
	if train.Len() != 800 || test.Len() != 200 {
		t.Errorf("expected 800/200 split, got %d/%d", train.Len(), test.Len())
	}
}

func TestStandardScaler(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 10}, {3, 10}})
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if s.Mean[0] != 2 || s.Mean[1] != 10 {
		t.Errorf("unexpected means %v", s.Mean)
	}
	if s.Std[1] != 1 {
		t.Errorf("constant column should get unit std, got %v", s.Std[1])
	}
	out := s.Transform([]float64{2, 10})
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("expected centered output, got %v", out)
	}

	if _, err := FitScaler(nil); err == nil {
		t.Error("expected error for empty dataset")
	}
}

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}
