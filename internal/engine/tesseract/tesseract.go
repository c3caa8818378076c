// Package tesseract adapts the tesseract CLI as an OCR engine.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/execx"
)

// Config holds the tesseract invocation settings.
type Config struct {
	Binary      string
	Lang        string
	TessdataDir string
	PSM         int
	OEM         int
}

// Engine shells out to tesseract. TSV mode supplies word confidences and
// geometry; when TSV yields nothing a text heuristic stands in.
type Engine struct {
	cfg     Config
	runner  execx.Runner
	log     *slog.Logger
	version string
}

// New creates the engine. A nil runner uses the real binary; a nil logger
// falls back to the default.
func New(cfg Config, runner execx.Runner, log *slog.Logger) *Engine {
	if runner == nil {
		runner = execx.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "fra"
	}
	return &Engine{cfg: cfg, runner: runner, log: log}
}

func (e *Engine) Name() string { return constants.EngineTesseract }

// Init probes the binary with --version.
func (e *Engine) Init(ctx context.Context) bool {
	out, _, err := e.runner.Run(ctx, e.cfg.Binary, "--version")
	if err != nil {
		return false
	}
	// first line looks like "tesseract 5.3.0"
	line, _, _ := strings.Cut(string(out), "\n")
	if _, v, ok := strings.Cut(strings.TrimSpace(line), " "); ok {
		e.version = v
	}
	return true
}

func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:      e.Name(),
		Version:   e.version,
		Languages: strings.Split(e.cfg.Lang, "+"),
		Available: true,
	}
}

// Recognize OCRs the rendered page and blends TSV word confidence with a
// content heuristic, weighting the measured value higher when present.
func (e *Engine) Recognize(ctx context.Context, p engine.Page) (string, float64, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, e.args(p.PNGPath, "stdout")...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 256))
	}
	text := string(out)

	var conf float64
	if tsvConf, _, err := e.tsv(ctx, p.PNGPath); err == nil && tsvConf > 0 {
		conf = 0.7*tsvConf + 0.3*heuristicConfidence(text)
	} else {
		conf = heuristicConfidence(text)
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return text, conf, nil
}

// RecognizeSpans returns TSV word boxes grouped per line.
func (e *Engine) RecognizeSpans(ctx context.Context, p engine.Page) ([]engine.Span, error) {
	_, spans, err := e.tsv(ctx, p.PNGPath)
	return spans, err
}

func (e *Engine) args(path, out string) []string {
	args := []string{path, out, "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

// tsv runs tesseract in TSV mode and returns the mean word confidence in
// 0..1 plus one span per line of text.
func (e *Engine) tsv(ctx context.Context, path string) (float64, []engine.Span, error) {
	args := append(e.args(path, "stdout"), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("tesseract tsv: %w: %s", err, truncate(string(errb), 256))
	}

	type lineAcc struct {
		words []string
		box   engine.Rect
		sum   float64
		n     int
	}
	var (
		sum, n float64
		order  []string
		lines  = map[string]*lineAcc{}
	)

	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || len(ln) == 0 {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue // -1 marks non-word rows
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		sum += conf
		n++

		// group words by page/block/par/line
		key := strings.Join(cols[1:5], "/")
		acc, ok := lines[key]
		if !ok {
			acc = &lineAcc{box: parseBox(cols)}
			lines[key] = acc
			order = append(order, key)
		}
		acc.words = append(acc.words, word)
		acc.box = union(acc.box, parseBox(cols))
		acc.sum += conf
		acc.n++
	}

	spans := make([]engine.Span, 0, len(order))
	for _, key := range order {
		acc := lines[key]
		spans = append(spans, engine.Span{
			Text:       strings.Join(acc.words, " "),
			Confidence: acc.sum / float64(acc.n) / 100.0,
			Box:        acc.box,
		})
	}

	if n == 0 {
		return 0, spans, nil
	}
	return sum / n / 100.0, spans, nil
}

func parseBox(cols []string) engine.Rect {
	atoi := func(s string) int { v, _ := strconv.Atoi(s); return v }
	return engine.Rect{X: atoi(cols[6]), Y: atoi(cols[7]), W: atoi(cols[8]), H: atoi(cols[9])}
}

func union(a, b engine.Rect) engine.Rect {
	if a.W == 0 && a.H == 0 {
		return b
	}
	x1, y1 := min(a.X, b.X), min(a.Y, b.Y)
	x2 := max(a.X+a.W, b.X+b.W)
	y2 := max(a.Y+a.H, b.Y+b.H)
	return engine.Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
