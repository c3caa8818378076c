// Package pdftext extracts the embedded text layer of PDF documents.
// It is exact and cheap when the PDF was generated digitally, and useless
// on scanned documents, where the orchestrator moves on to real OCR.
package pdftext

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/common"
	"github.com/sygefi/ocr-mandats/internal/engine"
)

// textLayerConfidence is assigned to any non-empty text layer: embedded
// text is exact, no recognition is involved.
const textLayerConfidence = 0.95

type Engine struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

func (e *Engine) Name() string { return constants.EnginePDFText }

// Init always succeeds; the extraction is in-process.
func (e *Engine) Init(context.Context) bool { return true }

func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:      e.Name(),
		Version:   "embedded",
		Languages: []string{"fra"},
		Available: true,
	}
}

// Recognize reads the PDF text layer. Non-PDF pages and PDFs without a
// text layer yield an error so the orchestrator records a failed attempt.
func (e *Engine) Recognize(_ context.Context, p engine.Page) (string, float64, error) {
	if p.PDFPath == "" {
		return "", 0, common.WrapError(common.ErrUnsupportedFile, "pdftext requires a PDF source")
	}

	f, r, err := pdf.Open(p.PDFPath)
	if err != nil {
		return "", 0, fmt.Errorf("pdftext open: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("pdftext read: %w", err)
	}
	raw, err := io.ReadAll(rd)
	if err != nil {
		return "", 0, fmt.Errorf("pdftext read: %w", err)
	}

	text := string(raw)
	if strings.TrimSpace(text) == "" {
		e.log.Debug("pdf has no text layer", "path", p.PDFPath)
		return "", 0, nil
	}
	return text, textLayerConfidence, nil
}

// RecognizeSpans returns the whole text layer as one span; the PDF text
// layer carries no pixel geometry relative to the rendered page.
func (e *Engine) RecognizeSpans(ctx context.Context, p engine.Page) ([]engine.Span, error) {
	text, conf, err := e.Recognize(ctx, p)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return []engine.Span{}, nil
	}
	return []engine.Span{{Text: text, Confidence: conf}}, nil
}
