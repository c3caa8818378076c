// Package validation checks extracted metadata: reference formats, fiscal
// year plausibility, and cross-field coherence between mandat, bordereau,
// exercice, dates and amounts.
package validation

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/metadata"
	"github.com/sygefi/ocr-mandats/internal/patterns"
)

// Issue is one validation finding.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Verdict is the outcome of validating an extraction. Warnings never make
// a document invalid; only errors do.
type Verdict struct {
	Valid         bool     `json:"is_valid"`
	Errors        []Issue  `json:"errors"`
	Warnings      []Issue  `json:"warnings"`
	Confidence    float64  `json:"confidence"`
	ValidatorsRun []string `json:"validators_run"`
	ErrorCount    int      `json:"total_errors"`
	WarningCount  int      `json:"total_warnings"`
}

// Rule describes one validation rule for the discovery endpoint.
type Rule struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Validator   string `json:"validator"`
}

// Config bounds the accepted serial and fiscal year ranges.
type Config struct {
	SerialYears patterns.YearRange
	FiscalYears patterns.YearRange
}

// DefaultConfig returns the production ranges.
func DefaultConfig() Config {
	return Config{
		SerialYears: patterns.DefaultSerialYears,
		FiscalYears: patterns.DefaultFiscalYears,
	}
}

// Service coordinates the validators.
type Service struct {
	cfg Config
	log *slog.Logger
}

// NewService creates a Service. A nil logger falls back to the default.
func NewService(cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SerialYears == (patterns.YearRange{}) {
		cfg.SerialYears = patterns.DefaultSerialYears
	}
	if cfg.FiscalYears == (patterns.YearRange{}) {
		cfg.FiscalYears = patterns.DefaultFiscalYears
	}
	return &Service{cfg: cfg, log: log}
}

// Validate runs every applicable validator over an extraction.
func (s *Service) Validate(ext metadata.Extraction) Verdict {
	v := Verdict{Errors: []Issue{}, Warnings: []Issue{}}

	s.validateFormat(ext, &v)
	if ext.Mandat != nil {
		s.validateMandat(ext, &v)
	}
	if ext.Bordereau != nil {
		s.validateBordereau(ext.Bordereau.Serial, &v)
	}
	s.validateBusiness(ext, &v)
	if ext.Mandat != nil && ext.Bordereau != nil {
		s.validateHierarchy(ext.Mandat.Serial, ext.Bordereau.Serial, &v)
	}

	v.Valid = len(v.Errors) == 0
	v.Confidence = metadata.Overall(ext)
	v.ErrorCount = len(v.Errors)
	v.WarningCount = len(v.Warnings)

	s.log.Info("validation done",
		"valid", v.Valid,
		"errors", v.ErrorCount,
		"warnings", v.WarningCount,
		"validators", v.ValidatorsRun,
	)
	return v
}

// validateFormat checks the syntactic shape of every present reference.
// Absence is a warning, not an error: a dispatch slip has no mandat.
func (s *Service) validateFormat(ext metadata.Extraction, v *Verdict) {
	v.ValidatorsRun = append(v.ValidatorsRun, "format")

	if ext.Mandat != nil {
		if !patterns.ValidSerial(ext.Mandat.Serial, s.cfg.SerialYears) {
			v.Errors = append(v.Errors, Issue{
				Field: "mandat", Code: "FORMAT_MANDAT",
				Message: fmt.Sprintf("format mandat invalide: %s", ext.Mandat.Serial),
			})
		}
	} else {
		v.Warnings = append(v.Warnings, Issue{
			Field: "mandat", Code: "MISSING_MANDAT", Message: "aucun mandat trouvé",
		})
	}

	if ext.Bordereau != nil {
		if !patterns.ValidSerial(ext.Bordereau.Serial, s.cfg.SerialYears) {
			v.Errors = append(v.Errors, Issue{
				Field: "bordereau", Code: "FORMAT_BORDEREAU",
				Message: fmt.Sprintf("format bordereau invalide: %s", ext.Bordereau.Serial),
			})
		}
	} else {
		v.Warnings = append(v.Warnings, Issue{
			Field: "bordereau", Code: "MISSING_BORDEREAU", Message: "aucun bordereau trouvé",
		})
	}

	if ext.Exercice != "" {
		if _, err := strconv.Atoi(ext.Exercice); err != nil {
			v.Errors = append(v.Errors, Issue{
				Field: "exercice", Code: "FORMAT_EXERCICE",
				Message: fmt.Sprintf("exercice invalide: %s", ext.Exercice),
			})
		} else if !patterns.ValidFiscalYear(ext.Exercice, s.cfg.FiscalYears) {
			v.Errors = append(v.Errors, Issue{
				Field: "exercice", Code: "EXERCICE_RANGE",
				Message: fmt.Sprintf("exercice hors plage valide: %s", ext.Exercice),
			})
		}
	} else {
		v.Warnings = append(v.Warnings, Issue{
			Field: "exercice", Code: "MISSING_EXERCICE", Message: "aucun exercice trouvé",
		})
	}
}

// validateMandat checks mandat-specific coherence: the serial's two-digit
// year prefix must match the exercice's last two digits. A mismatch is a
// warning since either side may be an OCR misread.
func (s *Service) validateMandat(ext metadata.Extraction, v *Verdict) {
	v.ValidatorsRun = append(v.ValidatorsRun, "mandat")

	if ext.Exercice == "" || len(ext.Mandat.Serial) != 7 || len(ext.Exercice) != 4 {
		return
	}
	prefix := ext.Mandat.Serial[:2]
	suffix := ext.Exercice[2:]
	if prefix != suffix {
		v.Warnings = append(v.Warnings, Issue{
			Field: "mandat", Code: "MANDAT_YEAR_MISMATCH",
			Message: fmt.Sprintf("incohérence année mandat (%s) et exercice (%s)", prefix, suffix),
		})
	}
}

func (s *Service) validateBordereau(serial string, v *Verdict) {
	v.ValidatorsRun = append(v.ValidatorsRun, "bordereau")
	// format already covered; the slip has no year coherence rule of its
	// own since its serial uses the same numbering scheme
}

// validateBusiness checks amounts against each other and dates against the
// exercice.
func (s *Service) validateBusiness(ext metadata.Extraction, v *Verdict) {
	v.ValidatorsRun = append(v.ValidatorsRun, "business")

	// the largest total must cover every other amount
	var total float64
	var hasTotal bool
	for _, a := range ext.Amounts {
		if a.Category == constants.AmountTotal && a.Value > total {
			total = a.Value
			hasTotal = true
		}
	}
	if hasTotal {
		for _, a := range ext.Amounts {
			if a.Category != constants.AmountTotal && a.Value > total {
				v.Warnings = append(v.Warnings, Issue{
					Field: "amounts", Code: "AMOUNTS_CONSISTENCY",
					Message: fmt.Sprintf("montant %s (%s) supérieur au total (%s)",
						a.Category, a.Formatted, patterns.FormatFCFA(total)),
				})
			}
		}
	}

	// dated the same fiscal year as the exercice
	if ext.Exercice != "" {
		for _, d := range ext.Dates {
			if len(d.Value) >= 4 && d.Value[:4] != ext.Exercice {
				v.Warnings = append(v.Warnings, Issue{
					Field: "dates", Code: "DATE_FISCAL_YEAR",
					Message: fmt.Sprintf("date %s hors exercice %s", d.Formatted, ext.Exercice),
				})
			}
		}
	}
}

// validateHierarchy checks that the mandat can belong to the bordereau.
// Without the ERP registry only the year prefixes can be compared.
func (s *Service) validateHierarchy(mandat, bordereau string, v *Verdict) {
	v.ValidatorsRun = append(v.ValidatorsRun, "hierarchy")

	if len(mandat) == 7 && len(bordereau) == 7 && mandat[:2] != bordereau[:2] {
		v.Warnings = append(v.Warnings, Issue{
			Field: "bordereau", Code: "HIERARCHY_YEAR_MISMATCH",
			Message: fmt.Sprintf("mandat %s et bordereau %s d'années différentes", mandat, bordereau),
		})
	}
}

// ValidateMandat validates a lone mandat serial, optionally against an
// exercice. Used by the validation-only endpoint.
func (s *Service) ValidateMandat(serial, exercice string) Verdict {
	ext := metadata.Extraction{
		Mandat: &metadata.Field{
			Kind:      constants.KindMandat,
			Serial:    serial,
			Reference: patterns.FormatMandat(serial),
		},
		Exercice: exercice,
	}
	v := Verdict{Errors: []Issue{}, Warnings: []Issue{}}
	s.validateFormat(ext, &v)
	s.validateMandat(ext, &v)
	v.Valid = len(v.Errors) == 0
	v.ErrorCount = len(v.Errors)
	v.WarningCount = len(v.Warnings)
	return v
}

// ValidateBordereau validates a lone bordereau serial.
func (s *Service) ValidateBordereau(serial string) Verdict {
	ext := metadata.Extraction{
		Bordereau: &metadata.Field{
			Kind:      constants.KindBordereau,
			Serial:    serial,
			Reference: patterns.FormatBordereau(serial),
		},
	}
	v := Verdict{Errors: []Issue{}, Warnings: []Issue{}}
	s.validateFormat(ext, &v)
	s.validateBordereau(serial, &v)
	v.Valid = len(v.Errors) == 0
	v.ErrorCount = len(v.Errors)
	v.WarningCount = len(v.Warnings)
	return v
}

// Rules lists every validation rule for the discovery endpoint.
func (s *Service) Rules() []Rule {
	return []Rule{
		{ID: "format_mandat", Type: "format", Description: "Format MD/XXXXXXX avec 7 chiffres et préfixe année", Validator: "format"},
		{ID: "format_bordereau", Type: "format", Description: "Format BOR/XXXXXXX avec 7 chiffres et préfixe année", Validator: "format"},
		{ID: "format_exercice", Type: "format", Description: fmt.Sprintf("Année fiscale entre %d et %d", s.cfg.FiscalYears.Min, s.cfg.FiscalYears.Max), Validator: "format"},
		{ID: "mandat_year_consistency", Type: "business", Description: "Cohérence entre année du mandat et exercice fiscal", Validator: "mandat"},
		{ID: "hierarchy_mandat_bordereau", Type: "business", Description: "Le mandat doit appartenir au bordereau", Validator: "hierarchy"},
		{ID: "amounts_consistency", Type: "business", Description: "Cohérence entre montants (total >= sous-totaux)", Validator: "business"},
		{ID: "dates_in_fiscal_year", Type: "business", Description: "Les dates doivent correspondre à l'exercice fiscal", Validator: "business"},
	}
}

// FormatIssues renders issues as plain strings for logs.
func FormatIssues(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, strings.TrimSpace(i.Field+": "+i.Message))
	}
	return out
}
