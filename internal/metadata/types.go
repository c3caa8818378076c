package metadata

import "github.com/sygefi/ocr-mandats/constants"

// Span is a positioned piece of recognized text, used to refine field
// confidence when the engine reports geometry.
type Span struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       []int   `json:"bbox,omitempty"` // x, y, w, h
}

// Field is a recognized document reference (mandat or bordereau).
type Field struct {
	Kind       constants.DocumentKind `json:"type"`
	Serial     string                 `json:"number"`
	Reference  string                 `json:"full_reference"`
	Confidence float64                `json:"confidence"`
	BBox       []int                  `json:"coordinates,omitempty"`
}

// Date is a date found in the document, categorized by its surrounding text.
type Date struct {
	Value      string  `json:"value"`     // ISO form AAAA-MM-JJ
	Formatted  string  `json:"formatted"` // as printed on the document
	Category   string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Amount is a monetary amount found in the document.
type Amount struct {
	Value      float64 `json:"value"`
	Currency   string  `json:"currency"`
	Formatted  string  `json:"formatted"`
	Category   string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Beneficiary is the payee named on the document.
type Beneficiary struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Extraction is everything pulled out of one document's text.
type Extraction struct {
	Mandat       *Field       `json:"mandat,omitempty"`
	Bordereau    *Field       `json:"bordereau,omitempty"`
	Exercice     string       `json:"exercice,omitempty"`
	Dates        []Date       `json:"dates"`
	Amounts      []Amount     `json:"amounts"`
	Beneficiaire *Beneficiary `json:"beneficiaire,omitempty"`
}

// Summary condenses an extraction for logging and list views.
type Summary struct {
	HasMandat       bool   `json:"has_mandat"`
	HasBordereau    bool   `json:"has_bordereau"`
	HasExercice     bool   `json:"has_exercice"`
	DatesCount      int    `json:"dates_count"`
	AmountsCount    int    `json:"amounts_count"`
	HasBeneficiaire bool   `json:"has_beneficiaire"`
	MandatRef       string `json:"mandat_ref,omitempty"`
	BordereauRef    string `json:"bordereau_ref,omitempty"`
	Exercice        string `json:"exercice,omitempty"`
}

// Summarize builds a Summary from an extraction.
func (e Extraction) Summarize() Summary {
	s := Summary{
		HasMandat:       e.Mandat != nil,
		HasBordereau:    e.Bordereau != nil,
		HasExercice:     e.Exercice != "",
		DatesCount:      len(e.Dates),
		AmountsCount:    len(e.Amounts),
		HasBeneficiaire: e.Beneficiaire != nil,
		Exercice:        e.Exercice,
	}
	if e.Mandat != nil {
		s.MandatRef = e.Mandat.Reference
	}
	if e.Bordereau != nil {
		s.BordereauRef = e.Bordereau.Reference
	}
	return s
}
