package rules

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// ProfileEngine aggregates rule results into weighted sector profile scores.
type ProfileEngine struct {
	mu       sync.RWMutex
	profiles map[string]*domain.SectorProfile
}

// NewProfileEngine creates an empty profile engine.
func NewProfileEngine() *ProfileEngine {
	return &ProfileEngine{
		profiles: make(map[string]*domain.SectorProfile),
	}
}

// LoadProfiles replaces the loaded profiles. Disabled profiles are ignored.
func (e *ProfileEngine) LoadProfiles(profiles []*domain.SectorProfile) {
	next := make(map[string]*domain.SectorProfile, len(profiles))
	for _, p := range profiles {
		if p.Enabled {
			next[p.ID] = p
		}
	}

	e.mu.Lock()
	e.profiles = next
	e.mu.Unlock()
}

// ProfileCount returns the number of loaded profiles.
func (e *ProfileEngine) ProfileCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.profiles)
}

// GetLoadedProfiles returns the loaded profiles ordered by ID.
func (e *ProfileEngine) GetLoadedProfiles() []*domain.SectorProfile {
	e.mu.RLock()
	out := make([]*domain.SectorProfile, 0, len(e.profiles))
	for _, p := range e.profiles {
		out = append(out, p)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RuleRisk converts a rule outcome into a risk contribution between 0 and 1.
// Errors count as review so a broken rule never silently passes.
func RuleRisk(r domain.RuleResult) float64 {
	switch r.SubRuleRef {
	case domain.RuleOutcomeFail:
		return 1
	case domain.RuleOutcomeReview, domain.RuleOutcomeError:
		return 0.5
	default:
		return 0
	}
}

// Evaluate scores every profile applying to sector. Profiles without a sector
// apply everywhere. Results are ordered by profile ID.
//
// A profile's score is the sum of weight * RuleRisk over its rules that were
// evaluated; rules missing from ruleResults contribute nothing. The profile
// triggers when its threshold is positive and the score reaches it.
func (e *ProfileEngine) Evaluate(sector string, ruleResults []domain.RuleResult) []domain.ProfileResult {
	start := time.Now()

	risks := make(map[string]float64, len(ruleResults))
	for _, r := range ruleResults {
		risks[r.RuleID] = RuleRisk(r)
	}

	var results []domain.ProfileResult
	for _, p := range e.GetLoadedProfiles() {
		if p.Sector != "" && !strings.EqualFold(p.Sector, sector) {
			continue
		}
		result := evaluateProfile(p, risks)
		result.ProcessMs = time.Since(start).Milliseconds()
		results = append(results, result)
	}
	return results
}

func evaluateProfile(p *domain.SectorProfile, risks map[string]float64) domain.ProfileResult {
	result := domain.ProfileResult{
		ProfileID:     p.ID,
		ProfileName:   p.Name,
		Sector:        p.Sector,
		Threshold:     p.AlertThreshold,
		Contributions: make([]domain.RuleContribution, 0, len(p.Rules)),
	}

	var total float64
	for _, rw := range p.Rules {
		risk, ok := risks[rw.RuleID]
		if !ok {
			continue
		}
		contribution := risk * rw.Weight
		total += contribution
		result.Contributions = append(result.Contributions, domain.RuleContribution{
			RuleID:       rw.RuleID,
			RuleScore:    risk,
			Weight:       rw.Weight,
			Contribution: contribution,
		})
	}

	result.Score = total
	result.Triggered = p.AlertThreshold > 0 && total >= p.AlertThreshold
	return result
}

// Triggered filters results down to triggered profiles.
func Triggered(results []domain.ProfileResult) []domain.ProfileResult {
	var out []domain.ProfileResult
	for _, r := range results {
		if r.Triggered {
			out = append(out, r)
		}
	}
	return out
}

// Close drops all loaded profiles.
func (e *ProfileEngine) Close() error {
	e.LoadProfiles(nil)
	return nil
}
