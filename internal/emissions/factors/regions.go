package factors

// Region aggregates used by spend-based datasets for countries they do not cover
const (
	RegionMiddleEast  = "ROW_MIDEAST"
	RegionAfrica      = "ROW_AFRICA"
	RegionAmerica     = "ROW_AMERICA"
	RegionAsiaPacific = "ROW_ASIA_PACIFIC"
	RegionEurope      = "ROW_EUROPE"
)

// countryRegions maps ISO 3166 alpha-2 codes to the rest-of-world aggregate
// that spend-based tables publish for them.
var countryRegions = map[string]string{
	// Middle East
	"SA": RegionMiddleEast, "AE": RegionMiddleEast, "QA": RegionMiddleEast, "KW": RegionMiddleEast,
	"BH": RegionMiddleEast, "OM": RegionMiddleEast, "JO": RegionMiddleEast, "IQ": RegionMiddleEast,
	"IR": RegionMiddleEast, "IL": RegionMiddleEast, "LB": RegionMiddleEast, "YE": RegionMiddleEast,

	// Africa
	"EG": RegionAfrica, "NG": RegionAfrica, "KE": RegionAfrica, "ZA": RegionAfrica,
	"MA": RegionAfrica, "GH": RegionAfrica, "ET": RegionAfrica, "TZ": RegionAfrica,
	"DZ": RegionAfrica, "TN": RegionAfrica,

	// Americas
	"AR": RegionAmerica, "CL": RegionAmerica, "CO": RegionAmerica, "PE": RegionAmerica,
	"EC": RegionAmerica, "UY": RegionAmerica, "VE": RegionAmerica, "PA": RegionAmerica,
	"CR": RegionAmerica,

	// Asia Pacific
	"TH": RegionAsiaPacific, "VN": RegionAsiaPacific, "MY": RegionAsiaPacific, "PH": RegionAsiaPacific,
	"SG": RegionAsiaPacific, "PK": RegionAsiaPacific, "BD": RegionAsiaPacific, "LK": RegionAsiaPacific,
	"NZ": RegionAsiaPacific,

	// Europe outside the EU
	"NO": RegionEurope, "CH": RegionEurope, "IS": RegionEurope, "RS": RegionEurope,
	"UA": RegionEurope, "BA": RegionEurope, "MK": RegionEurope,
}

// RegionFor returns the region aggregate for a country, if one is defined
func RegionFor(country string) (string, bool) {
	region, ok := countryRegions[normalizeCountry(country)]
	return region, ok
}
