package validation

import (
	"testing"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/metadata"
)

func mandat(serial string) *metadata.Field {
	return &metadata.Field{Kind: constants.KindMandat, Serial: serial, Reference: "MD/" + serial, Confidence: 0.85}
}

func bordereau(serial string) *metadata.Field {
	return &metadata.Field{Kind: constants.KindBordereau, Serial: serial, Reference: "BOR/" + serial, Confidence: 0.85}
}

func hasCode(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidateCoherentDocument(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{
		Mandat:    mandat("2412034"),
		Bordereau: bordereau("2402756"),
		Exercice:  "2024",
		Dates:     []metadata.Date{{Value: "2024-12-15", Formatted: "15/12/2024"}},
		Amounts:   []metadata.Amount{{Value: 5672860, Category: constants.AmountTotal}},
	})

	if !v.Valid {
		t.Fatalf("coherent document invalid: %+v", v.Errors)
	}
	if len(v.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", v.Warnings)
	}
	if len(v.ValidatorsRun) != 5 {
		t.Errorf("validators run = %v", v.ValidatorsRun)
	}
	if v.Confidence <= 0 {
		t.Errorf("confidence = %v", v.Confidence)
	}
}

func TestValidateMissingFieldsAreWarningsOnly(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{})

	if !v.Valid {
		t.Errorf("absence must not invalidate: %+v", v.Errors)
	}
	for _, code := range []string{"MISSING_MANDAT", "MISSING_BORDEREAU", "MISSING_EXERCICE"} {
		if !hasCode(v.Warnings, code) {
			t.Errorf("missing warning %s in %+v", code, v.Warnings)
		}
	}
	if v.WarningCount != len(v.Warnings) {
		t.Errorf("warning count mismatch")
	}
}

func TestValidateBadSerialIsError(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{Mandat: mandat("9912034")})

	if v.Valid {
		t.Error("invalid serial accepted")
	}
	if !hasCode(v.Errors, "FORMAT_MANDAT") {
		t.Errorf("errors = %+v", v.Errors)
	}
}

func TestValidateMandatExerciceMismatchIsWarning(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{Mandat: mandat("2312001"), Exercice: "2024"})

	if !v.Valid {
		t.Errorf("mismatch must stay a warning: %+v", v.Errors)
	}
	if !hasCode(v.Warnings, "MANDAT_YEAR_MISMATCH") {
		t.Errorf("warnings = %+v", v.Warnings)
	}
}

func TestValidateHierarchyYearMismatch(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{Mandat: mandat("2412034"), Bordereau: bordereau("2302756")})

	if !hasCode(v.Warnings, "HIERARCHY_YEAR_MISMATCH") {
		t.Errorf("warnings = %+v", v.Warnings)
	}
}

func TestValidateAmountsConsistency(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{
		Amounts: []metadata.Amount{
			{Value: 1000, Category: constants.AmountTotal, Formatted: "1 000 FCFA"},
			{Value: 2000, Category: constants.AmountNet, Formatted: "2 000 FCFA"},
		},
	})

	if !hasCode(v.Warnings, "AMOUNTS_CONSISTENCY") {
		t.Errorf("warnings = %+v", v.Warnings)
	}
}

func TestValidateDateOutsideExercice(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.Validate(metadata.Extraction{
		Exercice: "2024",
		Dates:    []metadata.Date{{Value: "2023-06-01", Formatted: "01/06/2023"}},
	})

	if !hasCode(v.Warnings, "DATE_FISCAL_YEAR") {
		t.Errorf("warnings = %+v", v.Warnings)
	}
}

func TestValidateMandatOnly(t *testing.T) {
	s := NewService(DefaultConfig(), nil)

	v := s.ValidateMandat("2412034", "2024")
	if !v.Valid || len(v.Warnings) != 1 {
		// the lone bordereau warning remains
		t.Errorf("verdict = %+v", v)
	}

	v = s.ValidateMandat("123", "")
	if v.Valid || !hasCode(v.Errors, "FORMAT_MANDAT") {
		t.Errorf("verdict = %+v", v)
	}
}

func TestValidateExerciceOutOfRangeIsError(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.ValidateMandat("2412034", "2035")
	if v.Valid || !hasCode(v.Errors, "EXERCICE_RANGE") {
		t.Errorf("out-of-range exercice must be an error: %+v", v)
	}
}

func TestValidateBordereauOnly(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	v := s.ValidateBordereau("2402756")
	if !v.Valid {
		t.Errorf("verdict = %+v", v)
	}
}

func TestRulesCatalog(t *testing.T) {
	s := NewService(DefaultConfig(), nil)
	rules := s.Rules()
	if len(rules) != 7 {
		t.Fatalf("rules = %d", len(rules))
	}
	ids := map[string]bool{}
	for _, r := range rules {
		if r.ID == "" || r.Type == "" || r.Description == "" {
			t.Errorf("incomplete rule: %+v", r)
		}
		ids[r.ID] = true
	}
	for _, want := range []string{"format_mandat", "mandat_year_consistency", "amounts_consistency"} {
		if !ids[want] {
			t.Errorf("missing rule %s", want)
		}
	}
}
