package domain

import "time"

// SectorProfile groups compliance rules with weights for one product sector.
// Example: "Food & Beverage" combines cold-chain (0.5), documentation (0.3)
// and supplier-trust (0.2) rules.
type SectorProfile struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Sector      string `json:"sector"`
	Description string `json:"description"`
	Version     string `json:"version"`

	Rules []ProfileRuleWeight `json:"rules"`

	// AlertThreshold is the minimum weighted score that triggers the profile (0.0-1.0)
	AlertThreshold float64 `json:"alertThreshold"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ProfileRuleWeight defines a rule and its weight within a profile.
type ProfileRuleWeight struct {
	RuleID string  `json:"ruleId"`
	Weight float64 `json:"weight"`
}

// ProfileResult is the aggregated result of rules for a profile.
type ProfileResult struct {
	ProfileID     string             `json:"profileId"`
	ProfileName   string             `json:"profileName"`
	Sector        string             `json:"sector"`
	Score         float64            `json:"score"`
	Threshold     float64            `json:"threshold"`
	Triggered     bool               `json:"triggered"`
	Contributions []RuleContribution `json:"contributions,omitempty"`
	ProcessMs     int64              `json:"processMs,omitempty"`
}

// RuleContribution shows how a single rule contributed to a profile score.
type RuleContribution struct {
	RuleID       string  `json:"ruleId"`
	RuleScore    float64 `json:"ruleScore"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}
