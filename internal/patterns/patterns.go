// Package patterns holds the regex rule tables for references found on
// Cameroonian administrative finance documents, with priorities so that
// exact forms win over OCR-tolerant variants.
package patterns

import (
	"regexp"
	"sort"
	"strconv"
)

// Rule is a compiled pattern with metadata.
type Rule struct {
	Pattern     *regexp.Regexp
	Name        string
	Priority    int
	Description string
}

// Match is one occurrence of a rule in text.
type Match struct {
	Value       string   // full matched text
	Groups      []string // capture groups
	Rule        string
	Priority    int
	Start, End  int
	Description string
}

// Mandat rules (MD/XXXXXXX). The OCR variant sits at low priority because M
// is often read as N and D as O on degraded scans.
var MandatRules = []Rule{
	{regexp.MustCompile(`(?i)MD[/\\-](\d{7})`), "mandat_standard", 10, "MD/XXXXXXX"},
	{regexp.MustCompile(`(?i)N[°o]?\s*MANDAT[:\s]*MD[/\\-](\d{7})`), "mandat_with_label", 9, "N° Mandat: MD/XXXXXXX"},
	{regexp.MustCompile(`(?i)MD\s+(\d{7})`), "mandat_with_space", 5, "MD XXXXXXX"},
	{regexp.MustCompile(`(?i)[MN][DO][/\\-](\d{7})`), "mandat_ocr_variant", 3, "OCR variants MD/ND/MO/NO"},
}

// Bordereau rules (BOR/XXXXXXX). B is often read as 8.
var BordereauRules = []Rule{
	{regexp.MustCompile(`(?i)BOR[/\\-](\d{7})`), "bordereau_standard", 10, "BOR/XXXXXXX"},
	{regexp.MustCompile(`(?i)N[°o]?\s*BORDEREAU[:\s]*BOR[/\\-](\d{7})`), "bordereau_with_label", 9, "N° Bordereau: BOR/XXXXXXX"},
	{regexp.MustCompile(`(?i)BOR\s+(\d{7})`), "bordereau_with_space", 5, "BOR XXXXXXX"},
	{regexp.MustCompile(`(?i)[B8]OR[/\\-](\d{7})`), "bordereau_ocr_variant", 3, "OCR variants BOR/8OR"},
}

// Exercice rules (fiscal year).
var ExerciceRules = []Rule{
	{regexp.MustCompile(`(?i)EXERCICE[:\s]+(\d{4})`), "exercice_with_label", 10, "Exercice: YYYY"},
	{regexp.MustCompile(`(?i)GB[/\\-](\d{4})`), "exercice_gb", 8, "GB/YYYY budget management"},
	{regexp.MustCompile(`\b(20[1-3][0-9])\b`), "exercice_year_only", 5, "bare year"},
}

// Amount rules (FCFA amounts). The captured group is the numeric part.
var AmountRules = []Rule{
	{regexp.MustCompile(`(?i)\b(\d[\d\s]*)\s*(?:FCFA|F\s*CFA|FRANCS?\s*CFA)\b`), "amount_with_spaces", 10, "X XXX XXX FCFA"},
	{regexp.MustCompile(`(?i)\b(\d[\d,.]*)\s*(?:FCFA|F\s*CFA)\b`), "amount_with_separators", 9, "X,XXX,XXX FCFA"},
	{regexp.MustCompile(`(?i)(?:MONTANT|TOTAL|SOMME)[:\s]+(\d[\d\s,.]*)`), "amount_with_label", 8, "Montant: X XXX XXX"},
}

// Beneficiaire rules. Names are printed in capitals; the capture stays
// case-sensitive and single-line so it stops before the next label.
var BeneficiaireRules = []Rule{
	{regexp.MustCompile(`(?i:B[ÉE]N[ÉE]FICIAIRE)[:\s]+([A-ZÀ-Ÿ][A-ZÀ-Ÿ '\-]+)`), "beneficiaire_with_label", 10, "Bénéficiaire: NOM"},
}

// FindAll runs every rule against text and returns all matches sorted by
// descending priority. The sort is stable so earlier occurrences of equal
// priority keep their order.
func FindAll(text string, rules []Rule) []Match {
	var out []Match
	for _, r := range rules {
		for _, idx := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
			m := Match{
				Value:       text[idx[0]:idx[1]],
				Rule:        r.Name,
				Priority:    r.Priority,
				Start:       idx[0],
				End:         idx[1],
				Description: r.Description,
			}
			for g := 1; g*2 < len(idx); g++ {
				if idx[g*2] >= 0 {
					m.Groups = append(m.Groups, text[idx[g*2]:idx[g*2+1]])
				} else {
					m.Groups = append(m.Groups, "")
				}
			}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Best returns the highest-priority match, or nil.
func Best(text string, rules []Rule) *Match {
	all := FindAll(text, rules)
	if len(all) == 0 {
		return nil
	}
	return &all[0]
}

// YearRange bounds the two-digit year prefix of a serial number.
type YearRange struct {
	Min, Max int
}

// DefaultSerialYears covers serials issued since 2019.
var DefaultSerialYears = YearRange{Min: 19, Max: 26}

// DefaultFiscalYears bounds plausible exercice values.
var DefaultFiscalYears = YearRange{Min: 2015, Max: 2030}

// ValidSerial reports whether a mandat or bordereau serial is well formed:
// exactly seven digits whose first two form a year prefix inside yr.
func ValidSerial(serial string, yr YearRange) bool {
	if len(serial) != 7 {
		return false
	}
	for _, c := range serial {
		if c < '0' || c > '9' {
			return false
		}
	}
	prefix, _ := strconv.Atoi(serial[:2])
	return prefix >= yr.Min && prefix <= yr.Max
}

// ValidFiscalYear reports whether a four-digit exercice is inside yr.
func ValidFiscalYear(year string, yr YearRange) bool {
	n, err := strconv.Atoi(year)
	if err != nil || len(year) != 4 {
		return false
	}
	return n >= yr.Min && n <= yr.Max
}

// ExtractMandat returns the best mandat serial found, or "".
func ExtractMandat(text string) string {
	return firstGroup(Best(text, MandatRules))
}

// ExtractBordereau returns the best bordereau serial found, or "".
func ExtractBordereau(text string) string {
	return firstGroup(Best(text, BordereauRules))
}

// ExtractExercice returns the best fiscal year found within yr, or "".
// Lower-priority candidates are considered when the best one is out of
// range, so a page header year does not mask the labelled exercice.
func ExtractExercice(text string, yr YearRange) string {
	for _, m := range FindAll(text, ExerciceRules) {
		if len(m.Groups) > 0 && ValidFiscalYear(m.Groups[0], yr) {
			return m.Groups[0]
		}
	}
	return ""
}

// ExtractBeneficiaire returns the best beneficiary name found, or "".
func ExtractBeneficiaire(text string) string {
	return firstGroup(Best(text, BeneficiaireRules))
}

func firstGroup(m *Match) string {
	if m == nil || len(m.Groups) == 0 {
		return ""
	}
	return m.Groups[0]
}

// FormatMandat renders a serial as a full reference.
func FormatMandat(serial string) string { return "MD/" + serial }

// FormatBordereau renders a serial as a full reference.
func FormatBordereau(serial string) string { return "BOR/" + serial }
