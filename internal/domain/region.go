package domain

// Region is a coarse geographic bucket used by the routing heuristic.
type Region string

const (
	RegionAsia     Region = "Asia"
	RegionEurope   Region = "Europe"
	RegionAmericas Region = "Americas"
	RegionAfrica   Region = "Africa"
	RegionOceania  Region = "Oceania"
)

// AllRegions lists regions in table order.
var AllRegions = []Region{
	RegionAsia,
	RegionEurope,
	RegionAmericas,
	RegionAfrica,
	RegionOceania,
}

// DefaultRegion is assigned to any country missing from the region table.
const DefaultRegion = RegionAsia

// Priority is the optimization objective of a route request.
type Priority string

const (
	PriorityCost           Priority = "Cost"
	PriorityTime           Priority = "Time"
	PrioritySustainability Priority = "Sustainability"
)

// DefaultPriority applies when a request leaves the priority empty.
const DefaultPriority = PriorityCost

// OrDefault returns DefaultPriority for an empty priority and p otherwise.
// Non-empty unknown values are kept as sent.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return DefaultPriority
	}
	return p
}

// IsKnown reports whether p is one of the three named priorities.
// Unknown priorities are still accepted and receive the sustainability row.
func (p Priority) IsKnown() bool {
	switch p {
	case PriorityCost, PriorityTime, PrioritySustainability:
		return true
	}
	return false
}

// RiskLevel is a coarse qualitative risk bucket.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// WeatherImpact describes expected weather disruption along a route.
type WeatherImpact string

const (
	WeatherMinimal  WeatherImpact = "Minimal"
	WeatherLow      WeatherImpact = "Low"
	WeatherModerate WeatherImpact = "Moderate"
)
