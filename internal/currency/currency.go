package currency

import "github.com/shopspring/decimal"

// zeroDecimalCurrencies are currencies conventionally displayed without a
// fractional part. This is a closed set, not derived from ISO 4217 minor-unit
// metadata; anything else gets two decimal places.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
}

// symbols maps currency codes to their conventional display symbol
var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"ILS": "₪",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"INR": "₹",
	"THB": "฿",
	"VND": "₫",
	"RUB": "₽",
	"TRY": "₺",
	"PHP": "₱",
	"NGN": "₦",
	"AUD": "A$",
	"CAD": "C$",
	"NZD": "NZ$",
	"SGD": "S$",
	"HKD": "HK$",
	"MXN": "MX$",
	"BRL": "R$",
	"ZAR": "R",
	"CHF": "CHF",
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
	"PLN": "zł",
	"CZK": "Kč",
	"HUF": "Ft",
}

// Convert converts an amount in a foreign currency to the base currency.
// rateToBase is units of base currency per 1 unit of foreign currency, so the
// conversion is always a multiplication. The result keeps full float precision;
// rounding happens only at display time so stored values don't accumulate
// rounding error across repeated conversions.
func Convert(amountForeign, rateToBase float64) float64 {
	return amountForeign * rateToBase
}

// InverseRate returns the base->foreign rate for a given foreign->base rate.
// This is a distinct quantity from rateToBase and must never be passed where
// rateToBase is expected; it exists so callers name the direction explicitly.
func InverseRate(rateToBase float64) float64 {
	return 1 / rateToBase
}

// FormatForDisplay renders an amount with the decimal convention for the given
// currency code: no decimals for zero-decimal currencies, two for everything
// else, rounding half away from zero. No thousands separators or symbols;
// symbol and locale grouping are a presentation concern layered on top.
func FormatForDisplay(amount float64, code string) string {
	places := int32(2)
	if zeroDecimalCurrencies[code] {
		places = 0
	}
	return decimal.NewFromFloat(amount).StringFixed(places)
}

// SymbolFor returns the display symbol for a currency code. Unknown codes are
// returned verbatim; the code itself is a valid, if less pretty, display value.
func SymbolFor(code string) string {
	if sym, ok := symbols[code]; ok {
		return sym
	}
	return code
}
