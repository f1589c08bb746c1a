// Package rules evaluates CEL compliance rules and sector profiles.
package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Engine compiles compliance rules once and evaluates them in parallel.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	counter       AssessmentCounter
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// AssessmentCounter returns how many trust assessments a supplier received
// within the velocity window.
type AssessmentCounter func(ctx context.Context, tenantID, supplierID string) (int64, error)

// NewEngine creates a rule engine. counter may be nil, in which case
// assessment_count is always 0.
func NewEngine(counter AssessmentCounter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("trust_score", cel.DoubleType),
		cel.Variable("fraud_probability", cel.DoubleType),
		cel.Variable("origin", cel.StringType),
		cel.Variable("destination", cel.StringType),
		cel.Variable("origin_region", cel.StringType),
		cel.Variable("destination_region", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("cost", cel.DoubleType),
		cel.Variable("time_days", cel.IntType),
		cel.Variable("carbon_tons", cel.DoubleType),
		cel.Variable("hops", cel.IntType),
		cel.Variable("assessment_count", cel.IntType),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		counter:       counter,
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and adds a rule, replacing any rule with the same ID.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.compiledRules[cfg.ID] = compiled
	e.mu.Unlock()
	return nil
}

// ReloadRules atomically replaces the loaded rule set. Disabled rules are
// skipped; on any compile error the current set is left untouched.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	next := make(map[string]*CompiledRule, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = next
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	rules := e.sorted(func(*domain.RuleConfig) bool { return true })
	out := make([]*domain.RuleConfig, len(rules))
	for i, r := range rules {
		out[i] = r.Config
	}
	return out
}

// Close drops all loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

// EvaluateInput is the subject of a compliance check.
type EvaluateInput struct {
	TenantID         string
	SubjectID        string
	SupplierID       string
	Sector           string
	TrustScore       float64
	FraudProbability float64
	Route            *domain.RouteResult
	Attrs            map[string]any
}

// EvaluateAll runs every loaded rule that applies to the input's sector.
// Results are ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	rules := e.sorted(func(cfg *domain.RuleConfig) bool { return appliesTo(cfg, input.Sector) })
	if len(rules) == 0 {
		return nil, nil
	}

	var assessments int64
	if e.counter != nil && input.SupplierID != "" {
		if n, err := e.counter(ctx, input.TenantID, input.SupplierID); err == nil {
			assessments = n
		}
	}

	activation := buildActivation(input, assessments)

	results := make([]domain.RuleResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = e.evaluateRule(r, activation, input)
		}(i, rule)
	}
	wg.Wait()

	return results, ctx.Err()
}

func buildActivation(input *EvaluateInput, assessments int64) map[string]any {
	attrs := input.Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	act := map[string]any{
		"trust_score":        input.TrustScore,
		"fraud_probability":  input.FraudProbability,
		"origin":             "",
		"destination":        "",
		"origin_region":      "",
		"destination_region": "",
		"category":           input.Sector,
		"cost":               0.0,
		"time_days":          int64(0),
		"carbon_tons":        0.0,
		"hops":               int64(0),
		"assessment_count":   assessments,
		"attrs":              attrs,
	}
	if rt := input.Route; rt != nil {
		act["origin"] = rt.Origin
		act["destination"] = rt.Destination
		act["origin_region"] = string(rt.OriginRegion)
		act["destination_region"] = string(rt.DestinationRegion)
		act["cost"] = float64(rt.Cost)
		act["time_days"] = int64(rt.TimeDays)
		act["carbon_tons"] = rt.CarbonTons
		act["hops"] = int64(rt.Hops())
	}
	return act
}

// sorted returns the loaded rules accepted by keep, ordered by ID.
func (e *Engine) sorted(keep func(*domain.RuleConfig) bool) []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		if keep(r.Config) {
			rules = append(rules, r)
		}
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })
	return rules
}

// appliesTo reports whether a rule runs for sector. Unrestricted rules run
// everywhere; sector rules only when the sector matches.
func appliesTo(cfg *domain.RuleConfig, sector string) bool {
	return cfg.Sector == "" || strings.EqualFold(cfg.Sector, sector)
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.RuleResult {
	start := time.Now()
	result := domain.RuleResult{
		RuleID:    rule.Config.ID,
		TenantID:  input.TenantID,
		SubjectID: input.SubjectID,
		Weight:    rule.Config.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
	} else {
		result.Score = toScore(out)
		result.SubRuleRef, result.Reason = matchBand(result.Score, rule.Config.Bands)
	}
	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// toScore maps bool to 1/0 and passes numbers through.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}

// matchBand returns the first band with lower <= score < upper. A missing
// lower limit is -Inf and a missing upper limit is +Inf. Scores matching no
// band pass.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower, upper := math.Inf(-1), math.Inf(1)
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if band.UpperLimit != nil {
			upper = *band.UpperLimit
		}
		if score >= lower && score < upper {
			return band.SubRuleRef, band.Reason
		}
	}
	return domain.RuleOutcomePass, "no matching band"
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule ID is required")
	}
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	switch ast.OutputType() {
	case cel.BoolType, cel.DoubleType, cel.IntType:
	default:
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}
	return &CompiledRule{Config: cfg, Program: program}, nil
}
