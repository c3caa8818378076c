package tesseract

import (
	"regexp"
	"strings"
)

var (
	reReference = regexp.MustCompile(`(?i)\b(?:md|bor)[/\-]\d{7}\b`)
	reFCFA      = regexp.MustCompile(`(?i)\bf\s*cfa\b|\bfcfa\b`)
	reDate      = regexp.MustCompile(`\b\d{2}[/\-]\d{2}[/\-]\d{4}\b`)
)

// heuristicConfidence scores text by the artifacts an administrative
// finance document should carry, used when TSV confidence is unavailable.
func heuristicConfidence(txt string) float64 {
	txtL := strings.ToLower(txt)
	score := 0.2 // base
	if reReference.MatchString(txtL) {
		score += 0.25
	}
	if reFCFA.MatchString(txtL) {
		score += 0.15
	}
	if reDate.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 120 { // enough content
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
