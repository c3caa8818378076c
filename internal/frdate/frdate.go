// Package frdate parses the date forms found on French administrative
// documents: numeric JJ/MM/AAAA, textual "15 décembre 2024" and ISO
// AAAA-MM-JJ.
package frdate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sygefi/ocr-mandats/internal/textutil"
)

// Format names reported alongside parsed dates.
const (
	FormatNumeric = "numeric"
	FormatTextual = "textual"
	FormatISO     = "iso"
)

// monthsFR maps lowercase accent-stripped French month names to their number.
var monthsFR = map[string]time.Month{
	"janvier":   time.January,
	"fevrier":   time.February,
	"mars":      time.March,
	"avril":     time.April,
	"mai":       time.May,
	"juin":      time.June,
	"juillet":   time.July,
	"aout":      time.August,
	"septembre": time.September,
	"octobre":   time.October,
	"novembre":  time.November,
	"decembre":  time.December,
}

var (
	numericRe = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`)
	textualRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:er)?\s+(janvier|février|fevrier|mars|avril|mai|juin|juillet|août|aout|septembre|octobre|novembre|décembre|decembre)\s+(\d{4})\b`)
	isoRe     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

// Found is a date located in text, with its byte offset and source form.
type Found struct {
	Time   time.Time
	Raw    string
	Format string
	Pos    int
}

// Extract returns every parseable date in text, sorted by position.
// Numeric matches are tried day-first; invalid calendar dates are dropped.
func Extract(text string) []Found {
	var out []Found

	for _, m := range numericRe.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		year, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := makeDate(year, month, day); ok {
			out = append(out, Found{Time: t, Raw: text[m[0]:m[1]], Format: FormatNumeric, Pos: m[0]})
		}
	}

	for _, m := range textualRe.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		monthName := textutil.RemoveAccents(strings.ToLower(text[m[4]:m[5]]))
		year, _ := strconv.Atoi(text[m[6]:m[7]])
		month, ok := monthsFR[monthName]
		if !ok {
			continue
		}
		if t, ok := makeDate(year, int(month), day); ok {
			out = append(out, Found{Time: t, Raw: text[m[0]:m[1]], Format: FormatTextual, Pos: m[0]})
		}
	}

	for _, m := range isoRe.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := makeDate(year, month, day); ok {
			out = append(out, Found{Time: t, Raw: text[m[0]:m[1]], Format: FormatISO, Pos: m[0]})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

// makeDate builds a time.Time and rejects values time.Date would silently
// normalize, like 31/02/2024.
func makeDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

// FormatFrench renders a date as JJ/MM/AAAA, the canonical form stored in
// extraction results.
func FormatFrench(t time.Time) string {
	return t.Format("02/01/2006")
}
