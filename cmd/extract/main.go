// Command extract runs one document through the extraction pipeline and
// prints the result as JSON. Meant for batch scripts and debugging.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/common"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/engine/pdftext"
	"github.com/sygefi/ocr-mandats/internal/engine/remote"
	"github.com/sygefi/ocr-mandats/internal/engine/tesseract"
	"github.com/sygefi/ocr-mandats/internal/metadata"
	"github.com/sygefi/ocr-mandats/internal/patterns"
	"github.com/sygefi/ocr-mandats/internal/pipeline"
	"github.com/sygefi/ocr-mandats/internal/preprocess"
	"github.com/sygefi/ocr-mandats/internal/resilience"
	"github.com/sygefi/ocr-mandats/internal/validation"
)

func main() {
	var (
		path       = flag.String("file", "", "document to process (pdf, png, jpg, jpeg, tiff)")
		engineName = flag.String("engine", constants.EngineAuto, "preferred engine")
		profile    = flag.String("profile", "", "preprocessing profile (fast, standard, accurate)")
		noFallback = flag.Bool("no-fallback", false, "disable engine fallback")
		noValidate = flag.Bool("no-validate", false, "skip metadata validation")
		rawOnly    = flag.Bool("raw", false, "print recognized text only, skip extraction")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: extract -file <document> [-engine name] [-profile name]")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fatal(log, "invalid configuration", err)
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		fatal(log, "read file", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(*path))

	ctx := context.Background()
	reg := engine.NewRegistry(log, buildEngines(cfg, log)...)
	reg.Init(ctx)

	orch := engine.NewOrchestrator(reg, engine.FallbackConfig{
		ConfidenceThreshold: cfg.Engines.ConfidenceThreshold,
		FallbackOrder:       cfg.Engines.FallbackOrder,
		MaxAttempts:         cfg.Engines.MaxFallbackAttempts,
	}, log)
	pre := preprocess.New(preprocess.Config{
		Pdftoppm: cfg.Preproc.Pdftoppm,
		Magick:   cfg.Preproc.Magick,
		DPI:      cfg.Preproc.DPI,
		WorkDir:  cfg.Preproc.WorkDir,
	}, nil, log)

	serialYears := patterns.YearRange{Min: cfg.Extract.SerialYearMin, Max: cfg.Extract.SerialYearMax}
	fiscalYears := patterns.YearRange{Min: cfg.Extract.FiscalYearMin, Max: cfg.Extract.FiscalYearMax}
	extractor := metadata.NewExtractor(metadata.Config{
		DateContextWindow:   cfg.Extract.DateContextWindow,
		AmountContextWindow: cfg.Extract.AmountContextWindow,
		SerialYears:         serialYears,
		FiscalYears:         fiscalYears,
	}, log)
	validator := validation.NewService(validation.Config{
		SerialYears: serialYears,
		FiscalYears: fiscalYears,
	}, log)

	pipe := pipeline.New(pre, orch, reg, extractor, validator, nil, nil, nil, pipeline.Config{
		RawTextPreviewLen: cfg.Extract.RawTextPreviewLen,
	}, log)

	res, err := pipe.Process(ctx, data, ext, pipeline.Options{
		Filename:        filepath.Base(*path),
		Profile:         *profile,
		PreferredEngine: *engineName,
		EnableFallback:  !*noFallback,
		ExtractMetadata: !*rawOnly,
		Validate:        !*rawOnly && !*noValidate,
		SkipCache:       true,
	})
	if err != nil {
		fatal(log, "extraction failed", err)
	}

	if *rawOnly {
		fmt.Println(res.RawText)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fatal(log, "encode result", err)
	}
	if !res.Success {
		os.Exit(1)
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func buildEngines(cfg *common.Config, log *slog.Logger) []engine.Engine {
	var out []engine.Engine
	for _, name := range cfg.Engines.Enabled {
		switch name {
		case constants.EnginePDFText:
			out = append(out, pdftext.New(log))
		case constants.EngineTesseract:
			out = append(out, tesseract.New(tesseract.Config{
				Binary:      cfg.Engines.TesseractBinary,
				Lang:        cfg.Engines.TesseractLang,
				TessdataDir: cfg.Engines.TessdataDir,
				PSM:         cfg.Engines.TesseractPSM,
				OEM:         cfg.Engines.TesseractOEM,
			}, nil, log))
		case constants.EngineRemote:
			if cfg.Engines.RemoteURL == "" {
				continue
			}
			exec := resilience.NewExecutor(resilience.DefaultConfig(), log)
			out = append(out, remote.New(remote.Config{
				BaseURL: cfg.Engines.RemoteURL,
				APIKey:  cfg.Engines.RemoteAPIKey,
				Timeout: cfg.Engines.RemoteTimeout,
			}, exec, log))
		default:
			log.Warn("unknown engine in OCR_ENGINES", "engine", name)
		}
	}
	return out
}
