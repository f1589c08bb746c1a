package domain

import "time"

// RouteRequest asks the optimizer for a route between two countries.
type RouteRequest struct {
	Origin      string   `json:"origin" validate:"required"`
	Destination string   `json:"destination" validate:"required"`
	Priority    Priority `json:"priority"`
}

// RouteResult is a synthesized multi-hop route with its estimates.
// Computed fresh per request; persisted only as an audit record.
type RouteResult struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	// Path starts at the origin and ends at the destination, without duplicates.
	Path []string `json:"path"`

	Cost       int64   `json:"cost"`
	TimeDays   int     `json:"timeDays"`
	CarbonTons float64 `json:"carbonTons"`

	EfficiencyScore int           `json:"efficiencyScore"`
	RiskLevel       RiskLevel     `json:"riskLevel"`
	WeatherImpact   WeatherImpact `json:"weatherImpact"`

	Origin            string   `json:"origin"`
	Destination       string   `json:"destination"`
	OriginRegion      Region   `json:"originRegion"`
	DestinationRegion Region   `json:"destinationRegion"`
	Priority          Priority `json:"priority"`

	// UnknownCountries lists inputs that fell back to DefaultRegion.
	UnknownCountries []string `json:"unknownCountries,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Hops returns the number of locations on the path.
func (r *RouteResult) Hops() int {
	return len(r.Path)
}
