package patterns

import (
	"regexp"
	"strconv"
	"strings"
)

var currencySuffix = regexp.MustCompile(`(?i)(?:FCFA|F\s*CFA|francs?\s*CFA)`)

// NormalizeAmount parses a raw amount string into a float value.
// "5 672 860" and "5,672,860" both yield 5672860. Commas are treated as
// thousand separators; when several periods appear only the last one is
// kept as the decimal point. Returns ok=false when nothing numeric remains.
func NormalizeAmount(raw string) (float64, bool) {
	s := currencySuffix.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", "")

	if parts := strings.Split(s, "."); len(parts) > 2 {
		s = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ExtractAmounts returns the raw numeric strings of every amount match,
// in descending rule priority. The rule table overlaps on purpose, so a
// span already claimed by a higher-priority rule is not reported again.
func ExtractAmounts(text string) []string {
	var out []string
	var taken []Match
	for _, m := range FindAll(text, AmountRules) {
		if overlapsAny(m, taken) {
			continue
		}
		taken = append(taken, m)
		if len(m.Groups) > 0 && m.Groups[0] != "" {
			out = append(out, strings.TrimSpace(m.Groups[0]))
		} else {
			out = append(out, strings.TrimSpace(m.Value))
		}
	}
	return out
}

// FormatFCFA renders a value as a grouped FCFA string: 5672860 becomes
// "5 672 860 FCFA". The fractional part is dropped, matching how these
// documents print amounts.
func FormatFCFA(v float64) string {
	n := int64(v)
	digits := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(digits, "-") {
		neg = true
		digits = digits[1:]
	}
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	return out + " FCFA"
}

func overlapsAny(m Match, taken []Match) bool {
	for _, t := range taken {
		if m.Start < t.End && t.Start < m.End {
			return true
		}
	}
	return false
}
