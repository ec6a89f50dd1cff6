package emissions

import "strings"

// currencyCodes is the set of ISO 4217 codes accepted as spend units
var currencyCodes = map[string]bool{
	"AED": true, "ARS": true, "AUD": true, "BHD": true, "BRL": true, "CAD": true,
	"CHF": true, "CLP": true, "CNY": true, "COP": true, "CZK": true, "DKK": true,
	"EGP": true, "EUR": true, "GBP": true, "HKD": true, "HUF": true, "IDR": true,
	"ILS": true, "INR": true, "JPY": true, "KES": true, "KRW": true, "KWD": true,
	"MXN": true, "MYR": true, "NGN": true, "NOK": true, "NZD": true, "OMR": true,
	"PEN": true, "PHP": true, "PLN": true, "QAR": true, "SAR": true, "SEK": true,
	"SGD": true, "THB": true, "TRY": true, "TWD": true, "USD": true, "VND": true,
	"ZAR": true,
}

// IsCurrencyUnit reports whether unit is an ISO 4217 currency code
func IsCurrencyUnit(unit string) bool {
	return currencyCodes[strings.ToUpper(strings.TrimSpace(unit))]
}
