// Package price recognises and parses currency amounts in free text.
//
// A single shared pattern is used for signal detection, field location and
// entity parsing, so "what counts as a price" cannot drift between pipeline
// stages.
package price

import (
	"regexp"
	"strconv"
	"strings"
)

// symbolPart lists currency markers accepted on either side of an amount.
// Symbols first, then ISO codes; longest alternatives first so "zł" is not
// shadowed by shorter matches.
const symbolPart = `(?:zł|€|\$|£|¥|₹|Kč|kr|USD|EUR|PLN|GBP|CZK|SEK|NOK|DKK|JPY|CHF|CAD|AUD)`

// amountPart matches "19.99", "1 299,99", "1299" and similar.
const amountPart = `\d{1,3}(?:[ .]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`

var (
	pattern = regexp.MustCompile(
		symbolPart + `\s*(?:` + amountPart + `)|(?:` + amountPart + `)\s*` + symbolPart)
	amountRe = regexp.MustCompile(amountPart)
	symbolRe = regexp.MustCompile(symbolPart)
)

// Match reports whether s contains a currency amount.
func Match(s string) bool {
	return pattern.MatchString(s)
}

// Find returns the first currency amount substring in s, or "".
func Find(s string) string {
	return pattern.FindString(s)
}

// FindSymbol returns the first currency marker in s, or "".
func FindSymbol(s string) string {
	return symbolRe.FindString(s)
}

// Parse extracts the numeric value from a price string. Whitespace and
// thousand-group spaces are stripped and a decimal comma becomes a dot.
// Returns false for strings without a parseable amount.
func Parse(s string) (float64, bool) {
	m := amountRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, " ", "")
	m = strings.ReplaceAll(m, ",", ".")
	// "1.299.99" from dot thousand groups: keep only the last dot.
	if strings.Count(m, ".") > 1 {
		last := strings.LastIndex(m, ".")
		m = strings.ReplaceAll(m[:last], ".", "") + m[last:]
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
