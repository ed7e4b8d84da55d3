package phone

import "strings"

// countryRegions maps lowercase country names used by lead sources to
// ISO 3166-1 alpha-2 regions for number parsing.
var countryRegions = map[string]string{
	"italy":          "IT",
	"spain":          "ES",
	"germany":        "DE",
	"france":         "FR",
	"netherlands":    "NL",
	"belgium":        "BE",
	"austria":        "AT",
	"switzerland":    "CH",
	"portugal":       "PT",
	"poland":         "PL",
	"sweden":         "SE",
	"norway":         "NO",
	"denmark":        "DK",
	"finland":        "FI",
	"ireland":        "IE",
	"united kingdom": "GB",
	"uk":             "GB",
	"canada":         "CA",
	"australia":      "AU",
	"new zealand":    "NZ",
	"south africa":   "ZA",
	"united states":  "US",
	"usa":            "US",
}

// RegionForCountry resolves a lead's country name to a parsing region.
// Unknown countries fall back to IT, the dominant source market.
func RegionForCountry(country string) string {
	if region, ok := countryRegions[strings.ToLower(strings.TrimSpace(country))]; ok {
		return region
	}
	return "IT"
}
