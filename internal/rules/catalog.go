package rules

import "github.com/chainflow-labs/chainflow/internal/domain"

// Product sectors used by the starter catalog.
const (
	SectorFoodBeverage = "Food & Beverage"
	SectorApparel      = "Apparel"
	SectorElectronics  = "Electronics"
	SectorLuxury       = "Luxury"
	SectorFashion      = "Fashion"
	SectorHomeLiving   = "Home & Living"
)

// Sectors lists the sectors known to the starter catalog.
func Sectors() []string {
	return []string{
		SectorFoodBeverage,
		SectorApparel,
		SectorElectronics,
		SectorLuxury,
		SectorFashion,
		SectorHomeLiving,
	}
}

func limit(v float64) *float64 { return &v }

// threeBands maps 0 to pass, 0.5 to review and 1 to fail.
func threeBands(pass, review, fail string) []domain.RuleBand {
	return []domain.RuleBand{
		{UpperLimit: limit(0.5), SubRuleRef: domain.RuleOutcomePass, Reason: pass},
		{LowerLimit: limit(0.5), UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: review},
		{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: fail},
	}
}

// StarterRules returns the compliance rules seeded into a fresh tenant.
func StarterRules(tenantID string) []*domain.RuleConfig {
	rules := []*domain.RuleConfig{
		{
			ID:          "supplier-trust-001",
			Name:        "Supplier Trust",
			Description: "Flags suppliers below the Good trust band",
			Expression:  "trust_score < 60.0 ? 1.0 : (trust_score < 75.0 ? 0.5 : 0.0)",
			Bands:       threeBands("Trusted supplier", "Fair supplier trust", "Poor supplier trust"),
			Weight:      1.0,
		},
		{
			ID:          "fraud-probability-001",
			Name:        "Fraud Probability",
			Description: "Maps model fraud probability onto review and fail bands",
			Expression:  "fraud_probability >= 0.7 ? 1.0 : (fraud_probability >= 0.3 ? 0.5 : 0.0)",
			Bands:       threeBands("Low fraud risk", "Medium fraud risk", "High fraud risk"),
			Weight:      1.0,
		},
		{
			ID:          "documentation-001",
			Name:        "Documentation Completeness",
			Description: "Requires complete shipment documentation",
			Expression:  "!has(attrs.documentation_completeness) ? 0.5 : (attrs.documentation_completeness < 80.0 ? 1.0 : (attrs.documentation_completeness < 88.0 ? 0.5 : 0.0))",
			Bands:       threeBands("Documentation complete", "Documentation gaps", "Documentation incomplete"),
			Weight:      0.8,
		},
		{
			ID:          "cold-chain-001",
			Name:        "Cold Chain Integrity",
			Description: "Temperature variance limits for perishable goods",
			Sector:      SectorFoodBeverage,
			Expression:  "!has(attrs.temperature_variance) ? 0.5 : (attrs.temperature_variance > 4.0 ? 1.0 : (attrs.temperature_variance > 2.5 ? 0.5 : 0.0))",
			Bands:       threeBands("Cold chain intact", "Temperature excursion", "Cold chain broken"),
			Weight:      1.0,
		},
		{
			ID:          "luxury-route-001",
			Name:        "Luxury Route Exposure",
			Description: "High-value goods should not pass through many transit hubs",
			Sector:      SectorLuxury,
			Expression:  "hops > 6 ? 1.0 : (hops > 5 ? 0.5 : 0.0)",
			Bands:       threeBands("Short route", "Extended route", "Excessive transit hubs"),
			Weight:      0.7,
		},
		{
			ID:          "electronics-transit-001",
			Name:        "Electronics Transit Time",
			Description: "Long transit increases diversion risk for electronics",
			Sector:      SectorElectronics,
			Expression:  "time_days > 30 ? 1.0 : (time_days > 20 ? 0.5 : 0.0)",
			Bands:       threeBands("Transit time normal", "Long transit", "Transit time excessive"),
			Weight:      0.6,
		},
	}
	for _, r := range rules {
		r.TenantID = tenantID
		r.Version = "1.0.0"
		r.Enabled = true
	}
	return rules
}

// StarterProfiles returns the sector profiles seeded into a fresh tenant.
func StarterProfiles(tenantID string) []*domain.SectorProfile {
	profiles := []*domain.SectorProfile{
		{
			ID:          "food-beverage",
			Name:        "Food & Beverage Compliance",
			Sector:      SectorFoodBeverage,
			Description: "Cold chain, documentation and supplier trust for perishables",
			Rules: []domain.ProfileRuleWeight{
				{RuleID: "cold-chain-001", Weight: 0.5},
				{RuleID: "documentation-001", Weight: 0.3},
				{RuleID: "supplier-trust-001", Weight: 0.2},
			},
			AlertThreshold: 0.5,
		},
		{
			ID:          "luxury",
			Name:        "Luxury Authenticity",
			Sector:      SectorLuxury,
			Description: "Counterfeit exposure for luxury goods",
			Rules: []domain.ProfileRuleWeight{
				{RuleID: "supplier-trust-001", Weight: 0.4},
				{RuleID: "fraud-probability-001", Weight: 0.4},
				{RuleID: "luxury-route-001", Weight: 0.2},
			},
			AlertThreshold: 0.5,
		},
		{
			ID:          "electronics",
			Name:        "Electronics Diversion",
			Sector:      SectorElectronics,
			Description: "Grey-market diversion for electronics",
			Rules: []domain.ProfileRuleWeight{
				{RuleID: "fraud-probability-001", Weight: 0.5},
				{RuleID: "electronics-transit-001", Weight: 0.3},
				{RuleID: "documentation-001", Weight: 0.2},
			},
			AlertThreshold: 0.6,
		},
	}
	for _, p := range profiles {
		p.TenantID = tenantID
		p.Version = "1.0.0"
		p.Enabled = true
	}
	return profiles
}
