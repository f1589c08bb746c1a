package domain

// RuleConfig defines a compliance rule configuration.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Sector restricts the rule to one product sector; empty applies to all.
	Sector string `json:"sector,omitempty"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Outcome bands for score-to-decision mapping
	Bands []RuleBand `json:"bands"`

	// Rule weight in profile calculation
	Weight float64 `json:"weight"`

	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to an outcome.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	SubRuleRef string   `json:"subRuleRef"` // ".pass", ".fail", ".review"
	Reason     string   `json:"reason"`
}

// RuleResult is the output of a rule evaluation.
type RuleResult struct {
	RuleID     string  `json:"ruleId"`
	TenantID   string  `json:"tenantId"`
	SubjectID  string  `json:"subjectId"`
	SubRuleRef string  `json:"subRuleRef"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
	Weight     float64 `json:"weight"`
	ProcessMs  int64   `json:"processMs"`
}

// Predefined rule outcomes
const (
	RuleOutcomePass   = ".pass"
	RuleOutcomeFail   = ".fail"
	RuleOutcomeReview = ".review"
	RuleOutcomeError  = ".err"
)
