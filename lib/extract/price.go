package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when no numeric amount can be found in the text.
var ErrNoPrice = errors.New("no price found in text")

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"R$", "BRL"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"zł", "PLN"},
	{"kr", "SEK"},
}

var isoCodeRegex = regexp.MustCompile(`\b(USD|EUR|GBP|JPY|INR|CAD|AUD|BRL|KRW|PLN|SEK|CHF|CNY)\b`)

var amountRegex = regexp.MustCompile(`\d(?:[\d.,\s\x{00a0}]*\d)?`)

// rangeSeparators split a bounded price range like "12.99 - 19.99"; the
// lower bound wins.
var rangeSeparators = []string{"–", "—", " - ", " to "}

// ParsePrice parses a scraped price string into an exact amount and an ISO
// currency code. It strips thousands separators, detects a leading or
// trailing currency symbol (falling back to fallbackCurrency when none is
// found), and takes the lower bound of a hyphenated range. It is the single
// price parser shared by every extraction strategy.
func ParsePrice(text, fallbackCurrency string) (decimal.Decimal, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, "", ErrNoPrice
	}

	currency := detectCurrency(text)
	if currency == "" {
		currency = fallbackCurrency
	}

	for _, sep := range rangeSeparators {
		if lo, _, found := strings.Cut(text, sep); found && amountRegex.MatchString(lo) {
			text = lo
			break
		}
	}

	raw := amountRegex.FindString(text)
	if raw == "" {
		return decimal.Zero, "", ErrNoPrice
	}

	amount, err := decimal.NewFromString(normalizeSeparators(raw))
	if err != nil {
		return decimal.Zero, "", ErrNoPrice
	}
	if amount.IsNegative() {
		return decimal.Zero, "", ErrNoPrice
	}
	return amount, currency, nil
}

func detectCurrency(text string) string {
	for _, c := range currencySymbols {
		if strings.Contains(text, c.symbol) {
			return c.code
		}
	}
	if m := isoCodeRegex.FindString(text); m != "" {
		return m
	}
	return ""
}

// normalizeSeparators reduces a raw numeric token to a plain decimal string.
// Both "1,299.99" and "1.299,99" styles occur in the wild; the rightmost of
// comma and dot is treated as the decimal separator when both are present.
func normalizeSeparators(raw string) string {
	raw = strings.NewReplacer(" ", "", " ", "").Replace(raw)

	lastComma := strings.LastIndex(raw, ",")
	lastDot := strings.LastIndex(raw, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastDot > lastComma {
			raw = strings.ReplaceAll(raw, ",", "")
		} else {
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		}
	case lastComma >= 0:
		// a single comma followed by exactly two digits reads as a decimal
		// separator, anything else as grouping
		if strings.Count(raw, ",") == 1 && len(raw)-lastComma-1 == 2 {
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case strings.Count(raw, ".") > 1:
		raw = strings.ReplaceAll(raw, ".", "")
	}
	return raw
}
