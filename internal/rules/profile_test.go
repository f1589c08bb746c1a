package rules

import (
	"math"
	"testing"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

func TestRuleRisk(t *testing.T) {
	tests := map[string]float64{
		domain.RuleOutcomePass:   0,
		domain.RuleOutcomeReview: 0.5,
		domain.RuleOutcomeError:  0.5,
		domain.RuleOutcomeFail:   1,
		"":                       0,
	}
	for outcome, want := range tests {
		if got := RuleRisk(domain.RuleResult{SubRuleRef: outcome}); got != want {
			t.Errorf("RuleRisk(%q) = %v, want %v", outcome, got, want)
		}
	}
}

func TestProfileEngine_Evaluate(t *testing.T) {
	engine := NewProfileEngine()
	engine.LoadProfiles(StarterProfiles("t1"))

	if engine.ProfileCount() != 3 {
		t.Fatalf("expected 3 profiles, got %d", engine.ProfileCount())
	}

	tests := []struct {
		name          string
		results       []domain.RuleResult
		wantScore     float64
		wantTriggered bool
	}{
		{
			name: "clean shipment",
			results: []domain.RuleResult{
				{RuleID: "cold-chain-001", SubRuleRef: domain.RuleOutcomePass},
				{RuleID: "documentation-001", SubRuleRef: domain.RuleOutcomePass},
				{RuleID: "supplier-trust-001", SubRuleRef: domain.RuleOutcomePass},
			},
			wantScore: 0,
		},
		{
			name: "cold chain broken",
			results: []domain.RuleResult{
				{RuleID: "cold-chain-001", SubRuleRef: domain.RuleOutcomeFail},
				{RuleID: "documentation-001", SubRuleRef: domain.RuleOutcomePass},
				{RuleID: "supplier-trust-001", SubRuleRef: domain.RuleOutcomePass},
			},
			wantScore:     0.5,
			wantTriggered: true,
		},
		{
			name: "excursion with missing documents",
			results: []domain.RuleResult{
				{RuleID: "cold-chain-001", SubRuleRef: domain.RuleOutcomeReview},
				{RuleID: "documentation-001", SubRuleRef: domain.RuleOutcomeFail},
				{RuleID: "supplier-trust-001", SubRuleRef: domain.RuleOutcomePass},
			},
			wantScore:     0.55,
			wantTriggered: true,
		},
		{
			name: "documentation and trust fail",
			results: []domain.RuleResult{
				{RuleID: "documentation-001", SubRuleRef: domain.RuleOutcomeFail},
				{RuleID: "supplier-trust-001", SubRuleRef: domain.RuleOutcomeReview},
			},
			wantScore: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := engine.Evaluate(SectorFoodBeverage, tt.results)
			if len(results) != 1 {
				t.Fatalf("expected only the food profile, got %d", len(results))
			}
			r := results[0]
			if r.ProfileID != "food-beverage" {
				t.Errorf("profile = %s", r.ProfileID)
			}
			if math.Abs(r.Score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", r.Score, tt.wantScore)
			}
			if r.Triggered != tt.wantTriggered {
				t.Errorf("triggered = %v, want %v", r.Triggered, tt.wantTriggered)
			}
			if len(r.Contributions) != len(tt.results) {
				t.Errorf("contributions = %d, want %d", len(r.Contributions), len(tt.results))
			}
		})
	}
}

func TestProfileEngine_SectorSelection(t *testing.T) {
	engine := NewProfileEngine()
	profiles := StarterProfiles("t1")
	profiles = append(profiles, &domain.SectorProfile{
		ID:             "baseline",
		Name:           "Baseline",
		Rules:          []domain.ProfileRuleWeight{{RuleID: "supplier-trust-001", Weight: 1}},
		AlertThreshold: 1,
		Enabled:        true,
	})
	engine.LoadProfiles(profiles)

	got := engine.Evaluate(SectorLuxury, nil)
	if len(got) != 2 || got[0].ProfileID != "baseline" || got[1].ProfileID != "luxury" {
		t.Errorf("unexpected profiles for luxury: %+v", got)
	}

	got = engine.Evaluate("", nil)
	if len(got) != 1 || got[0].ProfileID != "baseline" {
		t.Errorf("expected only baseline without sector, got %+v", got)
	}
}

func TestProfileEngine_ZeroThresholdNeverTriggers(t *testing.T) {
	engine := NewProfileEngine()
	engine.LoadProfiles([]*domain.SectorProfile{{
		ID:      "zero",
		Rules:   []domain.ProfileRuleWeight{{RuleID: "r", Weight: 1}},
		Enabled: true,
	}})

	results := engine.Evaluate("", []domain.RuleResult{{RuleID: "r", SubRuleRef: domain.RuleOutcomePass}})
	if results[0].Triggered {
		t.Error("profile with zero threshold should not trigger")
	}
	if len(Triggered(results)) != 0 {
		t.Error("Triggered should filter untriggered results")
	}
}

func TestProfileEngine_DisabledAndClose(t *testing.T) {
	engine := NewProfileEngine()
	profiles := StarterProfiles("t1")
	profiles[0].Enabled = false
	engine.LoadProfiles(profiles)
	if engine.ProfileCount() != 2 {
		t.Errorf("expected 2 enabled profiles, got %d", engine.ProfileCount())
	}

	engine.Close()
	if engine.ProfileCount() != 0 {
		t.Errorf("expected empty engine after Close, got %d", engine.ProfileCount())
	}
}

func TestStarterCatalogCompiles(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range StarterRules("t1") {
		if err := engine.ValidateRule(r); err != nil {
			t.Errorf("starter rule %s: %v", r.ID, err)
		}
	}

	ruleIDs := make(map[string]bool)
	for _, r := range StarterRules("t1") {
		ruleIDs[r.ID] = true
	}
	for _, p := range StarterProfiles("t1") {
		var total float64
		for _, rw := range p.Rules {
			if !ruleIDs[rw.RuleID] {
				t.Errorf("profile %s references unknown rule %s", p.ID, rw.RuleID)
			}
			total += rw.Weight
		}
		if math.Abs(total-1) > 1e-9 {
			t.Errorf("profile %s weights sum to %v", p.ID, total)
		}
	}
}
