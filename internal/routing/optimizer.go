// Package routing synthesizes multi-hop shipping routes between countries.
package routing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chainflow-routing")

// BaseMetrics are the path-length scaled estimates before priority adjustment.
type BaseMetrics struct {
	Cost       int64
	TimeDays   int
	CarbonTons float64
}

// Metrics are the estimates after priority multipliers.
type Metrics struct {
	Cost       int64
	TimeDays   int
	CarbonTons float64
}

type multipliers struct {
	cost   decimal.Decimal
	time   decimal.Decimal
	carbon decimal.Decimal
}

var priorityMultipliers = map[domain.Priority]multipliers{
	domain.PriorityCost: {
		cost:   decimal.RequireFromString("0.85"),
		time:   decimal.RequireFromString("1.2"),
		carbon: decimal.RequireFromString("1.1"),
	},
	domain.PriorityTime: {
		cost:   decimal.RequireFromString("1.3"),
		time:   decimal.RequireFromString("0.7"),
		carbon: decimal.RequireFromString("1.4"),
	},
	domain.PrioritySustainability: {
		cost:   decimal.RequireFromString("1.1"),
		time:   decimal.RequireFromString("1.1"),
		carbon: decimal.RequireFromString("0.6"),
	},
}

var (
	riskChoices    = []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskLow, domain.RiskLow}
	weatherChoices = []domain.WeatherImpact{domain.WeatherMinimal, domain.WeatherLow, domain.WeatherModerate}
)

// ApplyPriority scales base metrics by the priority's multipliers.
// Cost and time are truncated toward zero; carbon is rounded to one decimal.
// An empty priority is Cost; any other priority outside the three named ones
// gets the sustainability row.
func ApplyPriority(base BaseMetrics, priority domain.Priority) Metrics {
	m, ok := priorityMultipliers[priority.OrDefault()]
	if !ok {
		m = priorityMultipliers[domain.PrioritySustainability]
	}
	return Metrics{
		Cost:       decimal.NewFromInt(base.Cost).Mul(m.cost).IntPart(),
		TimeDays:   int(decimal.NewFromInt(int64(base.TimeDays)).Mul(m.time).IntPart()),
		CarbonTons: decimal.NewFromFloat(base.CarbonTons).Mul(m.carbon).Round(1).InexactFloat64(),
	}
}

// Optimizer plans routes. It is safe for concurrent use.
type Optimizer struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewOptimizer creates an optimizer whose random choices derive from seed.
func NewOptimizer(seed uint64) *Optimizer {
	return NewOptimizerWithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewOptimizerWithRand creates an optimizer over an existing random source.
func NewOptimizerWithRand(rng *rand.Rand) *Optimizer {
	return &Optimizer{
		rng: rng,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// OptimizeRoute plans a route for the request. It never fails: unknown
// countries fall back to the default region, an empty priority means Cost and
// any other unknown priority gets the sustainability multipliers.
func (o *Optimizer) OptimizeRoute(ctx context.Context, req domain.RouteRequest) *domain.RouteResult {
	req.Priority = req.Priority.OrDefault()

	_, span := tracer.Start(ctx, "routing.OptimizeRoute",
		trace.WithAttributes(
			attribute.String("route.origin", req.Origin),
			attribute.String("route.destination", req.Destination),
			attribute.String("route.priority", string(req.Priority)),
		),
	)
	defer span.End()

	originRegion, originKnown := ClassifyRegion(req.Origin)
	destRegion, destKnown := ClassifyRegion(req.Destination)

	var unknown []string
	if !originKnown {
		unknown = append(unknown, req.Origin)
	}
	if !destKnown && req.Destination != req.Origin {
		unknown = append(unknown, req.Destination)
	}

	o.mu.Lock()
	path := o.buildPath(req.Origin, req.Destination, originRegion, destRegion)

	n := len(path)
	base := BaseMetrics{
		Cost:       int64(n) * int64(800+o.rng.IntN(401)),
		TimeDays:   n * (3 + o.rng.IntN(5)),
		CarbonTons: float64(n) * (0.8 + 0.7*o.rng.Float64()),
	}
	efficiency := 85 + o.rng.IntN(14)
	risk := riskChoices[o.rng.IntN(len(riskChoices))]
	weather := weatherChoices[o.rng.IntN(len(weatherChoices))]
	o.mu.Unlock()

	metrics := ApplyPriority(base, req.Priority)

	span.SetAttributes(attribute.Int("route.hops", n))

	return &domain.RouteResult{
		ID:                uuid.New().String(),
		Path:              path,
		Cost:              metrics.Cost,
		TimeDays:          metrics.TimeDays,
		CarbonTons:        metrics.CarbonTons,
		EfficiencyScore:   efficiency,
		RiskLevel:         risk,
		WeatherImpact:     weather,
		Origin:            req.Origin,
		Destination:       req.Destination,
		OriginRegion:      originRegion,
		DestinationRegion: destRegion,
		Priority:          req.Priority,
		UnknownCountries:  unknown,
		CreatedAt:         o.now(),
	}
}

// buildPath must be called with o.mu held.
func (o *Optimizer) buildPath(origin, destination string, originRegion, destRegion domain.Region) []string {
	var via []string

	if originRegion != destRegion {
		if hub := o.pickHub(originRegion); hub != origin {
			via = append(via, hub)
		}

		switch {
		case originRegion == domain.RegionAsia && destRegion == domain.RegionEurope:
			via = append(via, "Dubai")
		case originRegion == domain.RegionEurope && destRegion == domain.RegionAmericas:
			via = append(via, "London")
		case originRegion == domain.RegionAsia && destRegion == domain.RegionAmericas:
			via = append(via, "Singapore", "Los Angeles")
		default:
			via = append(via, generalTransitHubs[o.rng.IntN(len(generalTransitHubs))])
		}

		if hub := o.pickHub(destRegion); hub != destination {
			via = append(via, hub)
		}
	}

	return joinPath(origin, destination, via)
}

func (o *Optimizer) pickHub(region domain.Region) string {
	hubs := regionHubs[region]
	return hubs[o.rng.IntN(len(hubs))]
}

// joinPath builds origin, via..., destination keeping the first occurrence of
// every location. The destination always stays last, so a transit hub that
// happens to be the destination is dropped from the middle.
func joinPath(origin, destination string, via []string) []string {
	path := make([]string, 0, len(via)+2)
	seen := map[string]struct{}{origin: {}, destination: {}}
	path = append(path, origin)
	for _, hub := range via {
		if _, ok := seen[hub]; ok {
			continue
		}
		seen[hub] = struct{}{}
		path = append(path, hub)
	}
	if destination != origin {
		path = append(path, destination)
	}
	return path
}
