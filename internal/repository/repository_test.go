package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "chainflow-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func ptr(f float64) *float64 { return &f }

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Routes", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Second)
		for i, id := range []string{"route-1", "route-2", "route-3"} {
			rt := &domain.RouteResult{
				ID:                id,
				Path:              []string{"China", "Shanghai", "Singapore", "Los Angeles", "United States"},
				Cost:              4250,
				TimeDays:          30,
				CarbonTons:        5.5,
				EfficiencyScore:   91,
				RiskLevel:         domain.RiskLow,
				WeatherImpact:     domain.WeatherMinimal,
				Origin:            "China",
				Destination:       "United States",
				OriginRegion:      domain.RegionAsia,
				DestinationRegion: domain.RegionAmericas,
				Priority:          domain.PriorityCost,
				CreatedAt:         base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.SaveRoute(ctx, tenantID, rt); err != nil {
				t.Fatalf("SaveRoute failed: %v", err)
			}
		}

		got, err := repo.GetRoute(ctx, tenantID, "route-2")
		if err != nil {
			t.Fatalf("GetRoute failed: %v", err)
		}
		if len(got.Path) != 5 || got.Path[3] != "Los Angeles" {
			t.Errorf("unexpected path %v", got.Path)
		}
		if got.DestinationRegion != domain.RegionAmericas || got.Cost != 4250 {
			t.Errorf("unexpected route %+v", got)
		}

		list, err := repo.ListRoutes(ctx, tenantID, 2)
		if err != nil {
			t.Fatalf("ListRoutes failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != "route-3" {
			t.Errorf("expected newest two routes, got %d (first %v)", len(list), list)
		}

		if _, err := repo.GetRoute(ctx, "other-tenant", "route-2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("TrustAssessments", func(t *testing.T) {
		now := time.Now().UTC()
		for i := 0; i < 3; i++ {
			a := &domain.TrustAssessment{
				ID:         "trust-" + string(rune('a'+i)),
				SupplierID: "SUP-001",
				Score:      88.5,
				Band:       domain.TrustGood,
				Attributes: domain.SupplierAttributes{QualityScore: ptr(90)}.Resolve(),
				CreatedAt:  now.Add(-time.Duration(i) * 2 * time.Hour),
			}
			if err := repo.SaveTrustAssessment(ctx, tenantID, a); err != nil {
				t.Fatalf("SaveTrustAssessment failed: %v", err)
			}
		}

		got, err := repo.GetTrustAssessment(ctx, tenantID, "trust-a")
		if err != nil {
			t.Fatalf("GetTrustAssessment failed: %v", err)
		}
		if got.Attributes.QualityScore != 90 || got.Band != domain.TrustGood {
			t.Errorf("unexpected assessment %+v", got)
		}

		count, err := repo.CountTrustAssessmentsBySupplier(ctx, tenantID, "SUP-001", now.Add(-3*time.Hour))
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 assessments in window, got %d", count)
		}

		if err := repo.SaveTrustAssessment(ctx, tenantID, &domain.TrustAssessment{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing supplier, got %v", err)
		}
	})

	t.Run("FraudAssessments", func(t *testing.T) {
		a := &domain.FraudAssessment{
			ID:            "fraud-1",
			Probability:   0.5,
			RiskLevel:     domain.RiskMedium,
			Degraded:      true,
			Model:         domain.ModelConstantFallback,
			ModelAccuracy: 0.85,
			Attributes:    domain.TransactionAttributes{Amount: 1200},
			CreatedAt:     time.Now().UTC(),
		}
		if err := repo.SaveFraudAssessment(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveFraudAssessment failed: %v", err)
		}
		got, err := repo.GetFraudAssessment(ctx, tenantID, "fraud-1")
		if err != nil {
			t.Fatalf("GetFraudAssessment failed: %v", err)
		}
		if !got.Degraded || got.Model != domain.ModelConstantFallback || got.Attributes.Amount != 1200 {
			t.Errorf("unexpected fraud assessment %+v", got)
		}
	})

	t.Run("Rules", func(t *testing.T) {
		upper := 60.0
		rule := &domain.RuleConfig{
			ID:         "trust-floor",
			Name:       "Supplier trust floor",
			Version:    "1.0.0",
			Sector:     "Food & Beverage",
			Expression: "trust_score",
			Bands: []domain.RuleBand{
				{UpperLimit: &upper, SubRuleRef: domain.RuleOutcomeFail, Reason: "low trust"},
				{LowerLimit: &upper, SubRuleRef: domain.RuleOutcomePass, Reason: "ok"},
			},
			Weight:  1,
			Enabled: true,
		}
		if err := repo.SaveRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		got, err := repo.GetRule(ctx, tenantID, "trust-floor")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if len(got.Bands) != 2 || got.Sector != "Food & Beverage" {
			t.Errorf("unexpected rule %+v", got)
		}

		rule.Expression = "trust_score + 1.0"
		if err := repo.SaveRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRule upsert failed: %v", err)
		}
		list, err := repo.ListRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(list) != 1 || list[0].Expression != "trust_score + 1.0" {
			t.Errorf("expected single upserted rule, got %d", len(list))
		}
	})

	t.Run("Profiles", func(t *testing.T) {
		p := &domain.SectorProfile{
			ID:             "food-safety",
			Name:           "Food safety",
			Sector:         "Food & Beverage",
			Version:        "1.0.0",
			Rules:          []domain.ProfileRuleWeight{{RuleID: "trust-floor", Weight: 1}},
			AlertThreshold: 0.5,
			Enabled:        true,
		}
		if err := repo.SaveProfile(ctx, tenantID, p); err != nil {
			t.Fatalf("SaveProfile failed: %v", err)
		}

		got, err := repo.GetProfile(ctx, tenantID, "food-safety")
		if err != nil {
			t.Fatalf("GetProfile failed: %v", err)
		}
		if got.Sector != "Food & Beverage" || len(got.Rules) != 1 {
			t.Errorf("unexpected profile %+v", got)
		}

		if err := repo.DeleteProfile(ctx, tenantID, "food-safety"); err != nil {
			t.Fatalf("DeleteProfile failed: %v", err)
		}
		if _, err := repo.GetProfile(ctx, tenantID, "food-safety"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteProfile(ctx, tenantID, "food-safety"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
		list, _ := repo.ListProfiles(ctx, tenantID)
		if len(list) != 0 {
			t.Errorf("expected no enabled profiles, got %d", len(list))
		}
	})

	t.Run("Verifications", func(t *testing.T) {
		v := &domain.Verification{
			ID:         "ver-1",
			ProductID:  "PRD-001",
			SupplierID: "SUP-001",
			Status:     domain.StatusReview,
			Score:      0.72,
			Timestamp:  time.Now().UTC(),
			Fraud:      &domain.FraudAssessment{ID: "fraud-1", Probability: 0.5, RiskLevel: domain.RiskMedium, Degraded: true},
			RuleResults: []domain.RuleResult{
				{RuleID: "trust-floor", SubRuleRef: domain.RuleOutcomePass, Score: 88},
			},
			Reasons:  []string{"fraud model degraded"},
			Metadata: domain.VerificationMetadata{TraceID: "trace-1", RulesEvaluated: 1},
		}
		if err := repo.SaveVerification(ctx, tenantID, v); err != nil {
			t.Fatalf("SaveVerification failed: %v", err)
		}

		got, err := repo.GetVerification(ctx, tenantID, "ver-1")
		if err != nil {
			t.Fatalf("GetVerification failed: %v", err)
		}
		if got.Status != domain.StatusReview || got.Fraud == nil || !got.Fraud.Degraded {
			t.Errorf("unexpected verification %+v", got)
		}
		if got.Trust != nil {
			t.Error("expected nil trust assessment")
		}
		if len(got.RuleResults) != 1 || got.Metadata.TraceID != "trace-1" || len(got.Reasons) != 1 {
			t.Errorf("detail columns not restored: %+v", got)
		}
	})

	t.Run("RequiresTenant", func(t *testing.T) {
		if _, err := repo.ListRules(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SaveRoute(ctx, "", &domain.RouteResult{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: driverPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %s", got)
	}
	lite := &SQLRepository{driver: driverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
