// Package metadata turns raw OCR text into structured fields: mandat and
// bordereau references, fiscal year, dates, amounts and beneficiary.
package metadata

import (
	"log/slog"
	"strings"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/frdate"
	"github.com/sygefi/ocr-mandats/internal/patterns"
	"github.com/sygefi/ocr-mandats/internal/textutil"
)

// Fixed confidences assigned when the engine provides no per-span score.
const (
	fieldConfidence       = 0.85
	dateConfidence        = 0.80
	amountConfidence      = 0.85
	beneficiaryConfidence = 0.75
)

// Config holds extraction tunables.
type Config struct {
	DateContextWindow   int
	AmountContextWindow int
	SerialYears         patterns.YearRange
	FiscalYears         patterns.YearRange
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		DateContextWindow:   50,
		AmountContextWindow: 30,
		SerialYears:         patterns.DefaultSerialYears,
		FiscalYears:         patterns.DefaultFiscalYears,
	}
}

// Extractor pulls structured metadata out of OCR text.
type Extractor struct {
	cfg Config
	log *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger falls back to the default.
func NewExtractor(cfg Config, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DateContextWindow <= 0 {
		cfg.DateContextWindow = 50
	}
	if cfg.AmountContextWindow <= 0 {
		cfg.AmountContextWindow = 30
	}
	if cfg.SerialYears == (patterns.YearRange{}) {
		cfg.SerialYears = patterns.DefaultSerialYears
	}
	if cfg.FiscalYears == (patterns.YearRange{}) {
		cfg.FiscalYears = patterns.DefaultFiscalYears
	}
	return &Extractor{cfg: cfg, log: log}
}

// Extract runs the full extraction on text. spans may be nil; when present
// they refine field confidence and attach geometry.
func (e *Extractor) Extract(text string, spans []Span) Extraction {
	if strings.TrimSpace(text) == "" {
		e.log.Warn("empty text for extraction")
		return Extraction{Dates: []Date{}, Amounts: []Amount{}}
	}

	clean := textutil.NormalizeWhitespace(textutil.CleanArtifacts(text))

	ext := Extraction{
		Mandat:       e.extractField(clean, spans, constants.KindMandat),
		Bordereau:    e.extractField(clean, spans, constants.KindBordereau),
		Exercice:     patterns.ExtractExercice(clean, e.cfg.FiscalYears),
		Dates:        e.extractDates(clean),
		Amounts:      e.extractAmounts(clean),
		Beneficiaire: e.extractBeneficiaire(clean),
	}

	e.log.Info("extraction done",
		"mandat", ext.Mandat != nil,
		"bordereau", ext.Bordereau != nil,
		"exercice", ext.Exercice,
		"dates", len(ext.Dates),
		"amounts", len(ext.Amounts),
	)
	return ext
}

func (e *Extractor) extractField(text string, spans []Span, kind constants.DocumentKind) *Field {
	var serial, ref string
	switch kind {
	case constants.KindMandat:
		serial = patterns.ExtractMandat(text)
		ref = patterns.FormatMandat(serial)
	case constants.KindBordereau:
		serial = patterns.ExtractBordereau(text)
		ref = patterns.FormatBordereau(serial)
	}
	if serial == "" {
		return nil
	}
	if !patterns.ValidSerial(serial, e.cfg.SerialYears) {
		e.log.Warn("serial rejected", "kind", string(kind), "serial", serial)
		return nil
	}

	f := &Field{Kind: kind, Serial: serial, Reference: ref, Confidence: fieldConfidence}
	if sp := findSpan(ref, spans); sp != nil {
		if sp.Confidence > 0 {
			f.Confidence = sp.Confidence
		}
		f.BBox = sp.BBox
	}
	return f
}

func (e *Extractor) extractDates(text string) []Date {
	found := frdate.Extract(text)
	out := make([]Date, 0, len(found))
	for _, d := range found {
		out = append(out, Date{
			Value:      d.Time.Format("2006-01-02"),
			Formatted:  frdate.FormatFrench(d.Time),
			Category:   categorize(text, d.Pos, e.cfg.DateContextWindow, dateKeywords),
			Confidence: dateConfidence,
		})
	}
	return out
}

func (e *Extractor) extractAmounts(text string) []Amount {
	lower := strings.ToLower(text)
	raws := patterns.ExtractAmounts(text)
	out := make([]Amount, 0, len(raws))
	for _, raw := range raws {
		v, ok := patterns.NormalizeAmount(raw)
		if !ok || v <= 0 {
			continue
		}
		pos := strings.Index(lower, strings.ToLower(raw))
		category := constants.AmountAutre
		if pos >= 0 {
			category = categorize(text, pos, e.cfg.AmountContextWindow, amountKeywords)
		}
		out = append(out, Amount{
			Value:      v,
			Currency:   constants.CurrencyXAF,
			Formatted:  patterns.FormatFCFA(v),
			Category:   category,
			Confidence: amountConfidence,
		})
	}
	return out
}

func (e *Extractor) extractBeneficiaire(text string) *Beneficiary {
	name := strings.TrimSpace(patterns.ExtractBeneficiaire(text))
	if name == "" {
		return nil
	}
	return &Beneficiary{Name: name, Confidence: beneficiaryConfidence}
}

// keyword tables carry both accented and accent-stripped spellings since
// OCR frequently loses diacritics.
var dateKeywords = []categoryKeywords{
	{constants.DateEmission, []string{"émission", "emission", "émis", "emis", "fait"}},
	{constants.DatePaiement, []string{"paiement", "payé", "paye", "règlement", "reglement"}},
	{constants.DateSignature, []string{"signé", "signe", "signature"}},
	{constants.DateEcheance, []string{"échéance", "echeance", "limite"}},
}

var amountKeywords = []categoryKeywords{
	{constants.AmountTotal, []string{"total", "somme"}},
	{constants.AmountNet, []string{"net"}},
	{constants.AmountBrut, []string{"brut"}},
	{constants.AmountTaxe, []string{"taxe", "tva", "impot", "impôt"}},
}

type categoryKeywords struct {
	category string
	words    []string
}

// categorize inspects the window of text preceding pos and returns the
// first category whose keywords appear there, or "autre".
func categorize(text string, pos, window int, table []categoryKeywords) string {
	start := pos - window
	if start < 0 {
		start = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	before := strings.ToLower(text[start:pos])
	for _, ck := range table {
		for _, w := range ck.words {
			if strings.Contains(before, w) {
				return ck.category
			}
		}
	}
	return "autre"
}

func findSpan(needle string, spans []Span) *Span {
	lower := strings.ToLower(needle)
	for i := range spans {
		if strings.Contains(strings.ToLower(spans[i].Text), lower) {
			return &spans[i]
		}
	}
	return nil
}
