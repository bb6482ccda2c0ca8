package scanning

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// AmountGuess is an extracted monetary amount with a confidence score.
// A nil Value means nothing was extracted; Confidence is then 0.
type AmountGuess struct {
	Value      *float64 `json:"value"`
	Confidence float64  `json:"confidence"`
}

// TextGuess is an extracted text field with a confidence score.
// A nil Value means nothing was extracted; Confidence is then 0.
type TextGuess struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ParseResult contains the four independently extracted receipt fields.
// Each field carries its own confidence; a field that could not be extracted
// does not affect the others.
type ParseResult struct {
	Amount   AmountGuess `json:"amount"`
	Currency TextGuess   `json:"currency"`
	Date     TextGuess   `json:"date"`
	Merchant TextGuess   `json:"merchant"`
}

// ConfidenceMap returns the per-field confidence scores keyed by field name
func (r ParseResult) ConfidenceMap() map[string]float64 {
	return map[string]float64{
		"amount":   r.Amount.Confidence,
		"currency": r.Currency.Confidence,
		"date":     r.Date.Confidence,
		"merchant": r.Merchant.Confidence,
	}
}

// ParseReceiptText heuristically extracts the total amount, currency,
// transaction date and merchant name from raw OCR text. The four extractors
// run independently and never fail; absence of a signal is reported as a nil
// value with confidence 0. No cross-field validation is performed.
func ParseReceiptText(text string) ParseResult {
	return ParseResult{
		Amount:   parseAmount(text),
		Currency: parseCurrency(text),
		Date:     parseDate(text),
		Merchant: parseMerchant(text),
	}
}

// maxPlausibleAmount is a sanity bound against OCR garbage like phone numbers
// or barcodes being picked up as totals
const maxPlausibleAmount = 1_000_000

// totalKeywords match lines that label the receipt total, across the
// languages the app's receipts commonly come in
var totalKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bgrand\s+total\b`),
	regexp.MustCompile(`(?i)\btotal\b`),
	regexp.MustCompile(`(?i)\bamount\s+due\b`),
	regexp.MustCompile(`(?i)\bbalance\s+due\b`),
	regexp.MustCompile(`(?i)\bamount\s+payable\b`),
	regexp.MustCompile(`(?i)\bto\s+pay\b`),
	regexp.MustCompile(`סה["״]כ`),
	regexp.MustCompile(`לתשלום`),
	regexp.MustCompile(`(?i)\bsumme\b`),
	regexp.MustCompile(`(?i)\btotaal\b`),
	regexp.MustCompile(`(?i)\btotale\b`),
}

// dateShapedPattern matches numeric date fragments like "03/04/2024" or
// "2024-04-03"; these are blanked out before amount tokenization so their
// digit groups are not read as amounts
var dateShapedPattern = regexp.MustCompile(`\b\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}\b`)

// numberPattern matches a numeric token: an optional currency symbol, then
// digit groups optionally joined by comma/period separators. Whole-number
// totals ("Total 1500") are tokens too; zero-decimal currencies print them.
var numberPattern = regexp.MustCompile(`[$€£¥₪₹]?\s*\d+(?:[.,]\d{1,3})*`)

// numericTokens extracts all parseable numeric values from s. Commas are
// stripped unconditionally before parsing, so "1,234.56" parses correctly but
// a European "1.234,56" does not; this is a known regional bias kept on
// purpose, not a bug.
func numericTokens(s string) []float64 {
	s = dateShapedPattern.ReplaceAllString(s, " ")
	var out []float64
	for _, m := range numberPattern.FindAllString(s, -1) {
		m = strings.TrimLeft(m, "$€£¥₪₹ \t")
		m = strings.ReplaceAll(m, ",", "")
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func isTotalLine(line string) bool {
	for _, kw := range totalKeywords {
		if kw.MatchString(line) {
			return true
		}
	}
	return false
}

// parseAmount extracts the receipt total. Lines labelled with a total keyword
// are searched first (that line plus the next two), taking the largest nearby
// number; with no keyword anywhere the whole text is scanned and the global
// maximum taken at lower confidence.
func parseAmount(text string) AmountGuess {
	lines := strings.Split(text, "\n")

	var best float64
	found := false
	for i, line := range lines {
		if !isTotalLine(line) {
			continue
		}
		end := i + 3
		if end > len(lines) {
			end = len(lines)
		}
		for _, v := range numericTokens(strings.Join(lines[i:end], "\n")) {
			if v > 0 && v < maxPlausibleAmount && (!found || v > best) {
				best = v
				found = true
			}
		}
	}
	if found {
		v := best
		return AmountGuess{Value: &v, Confidence: 0.9}
	}

	for _, v := range numericTokens(text) {
		if v > 0 && v < maxPlausibleAmount && (!found || v > best) {
			best = v
			found = true
		}
	}
	if found {
		v := best
		return AmountGuess{Value: &v, Confidence: 0.5}
	}

	return AmountGuess{}
}

// currencyCodes is the allowlist of ISO codes recognized as exact words
var currencyCodes = []string{
	"USD", "EUR", "GBP", "ILS", "AUD", "CAD", "JPY",
	"CHF", "NZD", "SGD", "HKD", "THB", "INR", "ZAR",
}

var currencyCodePatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(currencyCodes))
	for _, code := range currencyCodes {
		m[code] = regexp.MustCompile(`\b` + code + `\b`)
	}
	return m
}()

// australianContext matches tokens that indicate an Australian receipt, used
// to disambiguate a bare dollar sign
var australianContext = regexp.MustCompile(
	`\b(AUSTRALIA|AU|ABN|WOOLWORTHS|COLES|SYDNEY|MELBOURNE|BRISBANE|PERTH)\b`)

// parseCurrency extracts the receipt currency. Explicit ISO codes win over
// symbols; a bare "$" resolves to AUD when Australian context tokens appear
// anywhere in the text and defaults to USD otherwise.
func parseCurrency(text string) TextGuess {
	upper := strings.ToUpper(text)

	for _, code := range currencyCodes {
		if currencyCodePatterns[code].MatchString(upper) {
			c := code
			return TextGuess{Value: &c, Confidence: 0.95}
		}
	}

	switch {
	case strings.Contains(text, "₪"):
		c := "ILS"
		return TextGuess{Value: &c, Confidence: 0.9}
	case strings.Contains(text, "€"):
		c := "EUR"
		return TextGuess{Value: &c, Confidence: 0.9}
	case strings.Contains(text, "£"):
		c := "GBP"
		return TextGuess{Value: &c, Confidence: 0.9}
	}

	if strings.Contains(text, "$") {
		if australianContext.MatchString(upper) {
			c := "AUD"
			return TextGuess{Value: &c, Confidence: 0.85}
		}
		c := "USD"
		return TextGuess{Value: &c, Confidence: 0.6}
	}

	return TextGuess{}
}

var (
	// dayFirstPattern assumes DD/MM/YYYY. Day-first is a deliberate regional
	// bias for the app's user base, not an oversight.
	dayFirstPattern  = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`)
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`)
	monthNamePattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{4})\b`)
)

var monthAbbrevs = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// validCalendarDate reports whether y/m/d is a real calendar date. time.Date
// normalizes overflow (month 13, day 32), so a round-trip mismatch means the
// components were invalid.
func validCalendarDate(y int, m time.Month, d int) bool {
	if y < 1 || d < 1 {
		return false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && t.Month() == m && t.Day() == d
}

func isoDate(y int, m time.Month, d int) string {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// parseDate extracts the transaction date, trying day-first numeric dates,
// then ISO dates, then "DD Mon YYYY" per line. The first match that validates
// as a real calendar date wins; the result is normalized to YYYY-MM-DD.
func parseDate(text string) TextGuess {
	for _, line := range strings.Split(text, "\n") {
		if m := dayFirstPattern.FindStringSubmatch(line); m != nil {
			d, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			if validCalendarDate(y, time.Month(mo), d) {
				v := isoDate(y, time.Month(mo), d)
				return TextGuess{Value: &v, Confidence: 0.85}
			}
		}
		if m := isoDatePattern.FindStringSubmatch(line); m != nil {
			y, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			d, _ := strconv.Atoi(m[3])
			if validCalendarDate(y, time.Month(mo), d) {
				v := isoDate(y, time.Month(mo), d)
				return TextGuess{Value: &v, Confidence: 0.85}
			}
		}
		if m := monthNamePattern.FindStringSubmatch(line); m != nil {
			d, _ := strconv.Atoi(m[1])
			mo := monthAbbrevs[strings.ToLower(m[2])]
			y, _ := strconv.Atoi(m[3])
			if validCalendarDate(y, mo, d) {
				v := isoDate(y, mo, d)
				return TextGuess{Value: &v, Confidence: 0.85}
			}
		}
	}
	return TextGuess{}
}

// merchantSkipPatterns match lines that are receipt boilerplate rather than a
// merchant name
var merchantSkipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btax\s+invoice\b`),
	regexp.MustCompile(`(?i)\binvoice\b`),
	regexp.MustCompile(`(?i)\breceipt\b`),
	regexp.MustCompile(`(?i)\b(abn|acn)\b`),
	regexp.MustCompile(`(?i)\b(phone|fax|tel|telephone|mobile)\b`),
	regexp.MustCompile(`(?i)(@|www\.|https?://)`),
	regexp.MustCompile(`\d{4,}`),
}

var (
	letterRun   = regexp.MustCompile(`[A-Za-z]{2}`)
	legalSuffix = regexp.MustCompile(`(?i)[\s,]+(PTY|LTD|LLC|INC|CORP|CO)\.?\s*$`)
)

func isBoilerplateLine(line string) bool {
	for _, p := range merchantSkipPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// cleanMerchant strips trailing legal-entity suffixes, repeatedly so
// "ACME PTY LTD" reduces to "ACME"
func cleanMerchant(line string) string {
	s := strings.TrimSpace(line)
	for {
		stripped := strings.TrimSpace(legalSuffix.ReplaceAllString(s, ""))
		if stripped == s {
			return s
		}
		s = stripped
	}
}

// parseMerchant extracts the merchant name: the first non-boilerplate line
// whose cleaned form still looks like a name (two consecutive letters, 3 to
// 50 characters).
func parseMerchant(text string) TextGuess {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isBoilerplateLine(line) {
			continue
		}
		cleaned := cleanMerchant(line)
		if !letterRun.MatchString(cleaned) {
			continue
		}
		if n := utf8.RuneCountInString(cleaned); n >= 3 && n <= 50 {
			return TextGuess{Value: &cleaned, Confidence: 0.7}
		}
	}
	return TextGuess{}
}
