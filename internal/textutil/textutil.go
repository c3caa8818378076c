// Package textutil cleans raw OCR output before pattern extraction.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ocrSubstitutions maps characters OCR engines commonly misread on scanned
// administrative documents to their intended form.
var ocrSubstitutions = map[rune]rune{
	'|': 'I',
	'¡': 'i',
	'§': 'S',
	'©': 'O',
	'®': 'R',
	'°': 'o',
	'º': 'o',
	'¹': '1',
	'²': '2',
	'³': '3',
	'×': 'x',
}

// CleanArtifacts replaces common OCR misreads and strips control characters.
// Newlines, tabs and spaces are preserved so positional extraction still
// lines up with the visual layout.
func CleanArtifacts(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := ocrSubstitutions[r]; ok {
			b.WriteRune(sub)
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var spaceRun = regexp.MustCompile(`[ \t]+`)

// NormalizeWhitespace collapses runs of spaces and tabs and trims each line.
func NormalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// RemoveAccents strips diacritics ("émis" becomes "emis"). Used to match
// French keywords against text whose accents OCR often drops anyway.
func RemoveAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}

// StandardizeReference uppercases a document reference and normalizes the
// separator to a slash: "md-2412034" becomes "MD/2412034".
func StandardizeReference(ref string) string {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	ref = strings.ReplaceAll(ref, "-", "/")
	ref = strings.ReplaceAll(ref, " ", "")
	return ref
}

// Truncate caps s at max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
