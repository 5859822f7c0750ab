package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	minCommitmentYear = 2000
	maxCommitmentYear = 2100
)

var monthNumbers = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10,
	"noviembre": 11, "diciembre": 12,
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
}

const (
	spanishMonths = `enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre`
	englishMonths = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
)

// datePattern pulls day, month and year out of one textual date shape.
type datePattern struct {
	name  string
	re    *regexp.Regexp
	parts func(m []string) (day, month, year string)
}

// Ordered by precedence. Each pattern is tried over the whole text before the next one.
var datePatterns = []datePattern{
	{
		name:  "dd-mm-yyyy",
		re:    regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[1], m[2], m[3] },
	},
	{
		name:  "dd/mm/yyyy",
		re:    regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[1], m[2], m[3] },
	},
	{
		name:  "dd de month de yyyy",
		re:    regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(` + spanishMonths + `)\s*(?:,\s*|del?\s+)?(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[1], monthNumber(m[2]), m[3] },
	},
	{
		name:  "month dd, yyyy",
		re:    regexp.MustCompile(`(?i)\b(` + englishMonths + `|` + spanishMonths + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		parts: func(m []string) (string, string, string) { return m[2], monthNumber(m[1]), m[3] },
	},
}

// dateToken matches any supported date shape without capturing its parts.
var dateToken = `\d{1,2}-\d{1,2}-\d{4}|\d{1,2}/\d{1,2}/\d{4}` +
	`|\d{1,2}\s+de\s+(?:` + spanishMonths + `)\s*(?:,\s*|del?\s+)?\d{4}` +
	`|(?:` + englishMonths + `|` + spanishMonths + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9áéíóúüñÁÉÍÓÚÜÑ\s/\-.,:]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	normalizedShape = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`)
	looseNumeric    = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)
)

func monthNumber(name string) string {
	n, ok := monthNumbers[strings.ToLower(strings.TrimSuffix(name, "."))]
	if !ok {
		return ""
	}
	return strconv.Itoa(n)
}

// SanitizeText trims, collapses whitespace and drops characters that can
// never be part of a date or its surrounding words.
func SanitizeText(text string) string {
	text = disallowedChars.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeDate zero-pads a numeric day-month-year date into dd-mm-yyyy.
// Accepts "-" or "/" separators. Returns "" when the input has another shape.
func NormalizeDate(date string) string {
	m := looseNumeric.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return ""
	}
	return padDate(m[1], m[2], m[3])
}

func padDate(day, month, year string) string {
	d, err1 := strconv.Atoi(day)
	mo, err2 := strconv.Atoi(month)
	y, err3 := strconv.Atoi(year)
	if err1 != nil || err2 != nil || err3 != nil {
		return ""
	}
	return fmt.Sprintf("%02d-%02d-%04d", d, mo, y)
}

// IsValidCommitmentDate checks the dd-mm-yyyy shape and real calendar
// semantics, with the year bounded to [2000, 2100].
func IsValidCommitmentDate(date string) bool {
	m := normalizedShape.FindStringSubmatch(date)
	if m == nil {
		return false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	if year < minCommitmentYear || year > maxCommitmentYear {
		return false
	}
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month && t.Year() == year
}

// ExtractDate finds the first calendar-valid date in text and returns it as dd-mm-yyyy.
// Supported shapes, in order of precedence:
//   - "15-08-2025"
//   - "15/08/2025"
//   - "15 de agosto de 2025"
//   - "August 15, 2025"
func ExtractDate(text string) (string, bool) {
	clean := SanitizeText(text)
	if clean == "" {
		return "", false
	}

	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(clean, -1) {
			day, month, year := p.parts(m)
			if month == "" {
				continue
			}
			date := padDate(day, month, year)
			if IsValidCommitmentDate(date) {
				return date, true
			}
		}
	}
	return "", false
}
