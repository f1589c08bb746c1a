package routing

import (
	"strings"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// HubsPerRegion is the fixed size of every region's hub list.
const HubsPerRegion = 5

var regionCountries = map[domain.Region][]string{
	domain.RegionAsia: {
		"China", "India", "Japan", "Singapore", "Thailand",
		"Vietnam", "Malaysia", "Indonesia", "South Korea", "Philippines",
	},
	domain.RegionEurope: {
		"Germany", "France", "United Kingdom", "Italy", "Spain", "Netherlands",
		"Belgium", "Switzerland", "Austria", "Sweden", "Norway", "Denmark",
	},
	domain.RegionAmericas: {
		"United States", "Canada", "Brazil", "Mexico",
		"Argentina", "Chile", "Colombia", "Peru",
	},
	domain.RegionAfrica: {
		"South Africa", "Nigeria", "Egypt", "Kenya", "Ghana", "Morocco", "Ethiopia",
	},
	domain.RegionOceania: {
		"Australia", "New Zealand", "Fiji", "Papua New Guinea",
	},
}

var regionHubs = map[domain.Region][HubsPerRegion]string{
	domain.RegionAsia:     {"Singapore", "Shanghai", "Hong Kong", "Dubai", "Mumbai"},
	domain.RegionEurope:   {"Rotterdam", "Hamburg", "Antwerp", "London", "Barcelona"},
	domain.RegionAmericas: {"Los Angeles", "New York", "Miami", "Vancouver", "Santos"},
	domain.RegionAfrica:   {"Cape Town", "Lagos", "Cairo", "Casablanca", "Durban"},
	domain.RegionOceania:  {"Sydney", "Melbourne", "Auckland", "Brisbane", "Fremantle"},
}

// Intercontinental transit hubs.
var generalTransitHubs = []string{"Dubai", "Singapore", "London"}

// countryIndex maps a lower-cased country name to its region.
var countryIndex = func() map[string]domain.Region {
	idx := make(map[string]domain.Region)
	for region, countries := range regionCountries {
		for _, c := range countries {
			idx[normalizeCountry(c)] = region
		}
	}
	return idx
}()

func normalizeCountry(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ClassifyRegion returns the region of a country and whether it was found in
// the region table. Unknown countries classify as domain.DefaultRegion.
func ClassifyRegion(country string) (domain.Region, bool) {
	if r, ok := countryIndex[normalizeCountry(country)]; ok {
		return r, true
	}
	return domain.DefaultRegion, false
}

// Regions returns a copy of the country membership table.
func Regions() map[domain.Region][]string {
	out := make(map[domain.Region][]string, len(regionCountries))
	for r, countries := range regionCountries {
		out[r] = append([]string(nil), countries...)
	}
	return out
}

// Hubs returns a copy of the hub table.
func Hubs() map[domain.Region][]string {
	out := make(map[domain.Region][]string, len(regionHubs))
	for r, hubs := range regionHubs {
		out[r] = append([]string(nil), hubs[:]...)
	}
	return out
}
