// Package engine defines the OCR engine contract and the fallback
// orchestration that tries engines in priority order until one produces
// an acceptable result.
package engine

import (
	"context"
	"time"
)

// Rect is a bounding box in pixel coordinates of the rendered page.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Span is a positioned run of recognized text.
type Span struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        Rect    `json:"bbox"`
}

// Page is the preprocessed input handed to an engine. PNGPath always points
// at the rendered raster; PDFPath is set when the source document was a PDF,
// for engines that read the text layer directly.
type Page struct {
	PNGPath string
	PDFPath string
	DPI     int
}

// Info describes an engine for the discovery endpoint.
type Info struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Languages []string `json:"languages"`
	Available bool     `json:"available"`
	GPU       bool     `json:"gpu"`
}

// Engine is one OCR backend.
type Engine interface {
	Name() string
	// Init probes the backend and reports whether it is usable. Engines
	// failing Init are dropped from the registry.
	Init(ctx context.Context) bool
	// Recognize returns the page text and a confidence in [0,1].
	Recognize(ctx context.Context, p Page) (text string, confidence float64, err error)
	// RecognizeSpans returns positioned text runs. Engines without
	// geometry return a single span covering the page.
	RecognizeSpans(ctx context.Context, p Page) ([]Span, error)
	Info() Info
}

// Attempt records one engine invocation during orchestration.
type Attempt struct {
	Engine     string        `json:"engine"`
	Success    bool          `json:"success"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"processing_time"`
	Error      string        `json:"error,omitempty"`
}
