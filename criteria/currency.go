package criteria

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/glane/price"
	"github.com/hazyhaar/glane/snapshot"
)

// symbolCodes maps price symbols to ISO 4217 codes. Symbols that several
// currencies share (kr, $) resolve to the most common one; the page
// domain usually corrects the guess before it matters.
var symbolCodes = map[string]string{
	"zł": "PLN",
	"€":  "EUR",
	"$":  "USD",
	"£":  "GBP",
	"¥":  "JPY",
	"₹":  "INR",
	"kč": "CZK",
	"Kč": "CZK",
	"kr": "SEK",
}

// usdRates is a static table of units-per-USD. Good enough for filtering;
// the original amount is kept alongside every converted one so nothing is
// lost to a stale rate.
var usdRates = map[string]float64{
	"USD": 1.00,
	"EUR": 0.92,
	"PLN": 3.98,
	"GBP": 0.79,
	"CZK": 23.2,
	"SEK": 10.4,
	"NOK": 10.6,
	"DKK": 6.87,
	"JPY": 149.5,
	"CHF": 0.88,
	"CAD": 1.36,
	"AUD": 1.52,
	"INR": 83.1,
}

// tldCurrencies maps country-code domains to their national currency.
var tldCurrencies = map[string]string{
	"pl": "PLN",
	"de": "EUR", "fr": "EUR", "es": "EUR", "it": "EUR", "nl": "EUR",
	"at": "EUR", "be": "EUR", "fi": "EUR", "ie": "EUR", "pt": "EUR",
	"uk": "GBP",
	"cz": "CZK",
	"se": "SEK",
	"no": "NOK",
	"dk": "DKK",
	"jp": "JPY",
	"ch": "CHF",
	"ca": "CAD",
	"au": "AUD",
	"in": "INR",
}

// CurrencyCode resolves a symbol or ISO code token to an ISO 4217 code.
func CurrencyCode(tok string) (string, bool) {
	if code, ok := symbolCodes[tok]; ok {
		return code, true
	}
	up := strings.ToUpper(tok)
	if _, ok := usdRates[up]; ok {
		return up, true
	}
	return "", false
}

// Convert turns an amount in one currency into another through the USD
// rate table.
func Convert(amount float64, from, to string) (float64, error) {
	if from == to {
		return amount, nil
	}
	rf, ok := usdRates[from]
	if !ok {
		return 0, fmt.Errorf("criteria: unknown currency %q", from)
	}
	rt, ok := usdRates[to]
	if !ok {
		return 0, fmt.Errorf("criteria: unknown currency %q", to)
	}
	return amount * rt / rf, nil
}

// DetectPageCurrency decides which currency the page's prices are quoted
// in. Explicit microdata wins, then the symbol that appears most often in
// price texts, then the national currency of the page's domain. USD when
// nothing gives a signal.
func DetectPageCurrency(views []snapshot.ElementView, pageURL string) string {
	for _, v := range views {
		if v.Attrs["itemprop"] == "priceCurrency" || v.Attrs["property"] == "og:price:currency" {
			if code, ok := CurrencyCode(v.Attrs["content"]); ok {
				return code
			}
		}
	}

	counts := map[string]int{}
	for _, v := range views {
		if !v.OwnPrice {
			continue
		}
		if sym := price.FindSymbol(v.OwnText); sym != "" {
			if code, ok := CurrencyCode(sym); ok {
				counts[code]++
			}
		}
	}
	best, bestN := "", 0
	for code, n := range counts {
		if n > bestN || (n == bestN && code < best) {
			best, bestN = code, n
		}
	}
	if best != "" {
		return best
	}

	if u, err := url.Parse(pageURL); err == nil {
		host := u.Hostname()
		if i := strings.LastIndex(host, "."); i >= 0 {
			if code, ok := tldCurrencies[host[i+1:]]; ok {
				return code
			}
		}
	}
	return "USD"
}

// Normalize converts every price criterion in the set to the page
// currency, keeping the original amounts for the report. Criteria with no
// recognizable currency adopt the page currency as-is.
func Normalize(set *Set, pageCurrency string) error {
	for _, n := range set.Numerics() {
		if n.Field != FieldPrice {
			continue
		}
		if n.Unit == "" {
			n.Unit = pageCurrency
			n.OriginalUnit = pageCurrency
			continue
		}
		if n.Unit == pageCurrency {
			continue
		}
		v, err := Convert(n.Value, n.Unit, pageCurrency)
		if err != nil {
			return err
		}
		min, err := Convert(n.Min, n.Unit, pageCurrency)
		if err != nil {
			return err
		}
		max, err := Convert(n.Max, n.Unit, pageCurrency)
		if err != nil {
			return err
		}
		n.OriginalValue, n.OriginalMin, n.OriginalMax, n.OriginalUnit = n.Value, n.Min, n.Max, n.Unit
		n.Value, n.Min, n.Max, n.Unit = v, min, max, pageCurrency
		n.Converted = true
	}
	return nil
}
