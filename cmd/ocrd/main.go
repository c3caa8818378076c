package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/cache"
	"github.com/sygefi/ocr-mandats/internal/common"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/engine/pdftext"
	"github.com/sygefi/ocr-mandats/internal/engine/remote"
	"github.com/sygefi/ocr-mandats/internal/engine/tesseract"
	"github.com/sygefi/ocr-mandats/internal/export"
	"github.com/sygefi/ocr-mandats/internal/metadata"
	"github.com/sygefi/ocr-mandats/internal/metrics"
	"github.com/sygefi/ocr-mandats/internal/patterns"
	"github.com/sygefi/ocr-mandats/internal/pipeline"
	"github.com/sygefi/ocr-mandats/internal/preprocess"
	"github.com/sygefi/ocr-mandats/internal/repository"
	"github.com/sygefi/ocr-mandats/internal/resilience"
	"github.com/sygefi/ocr-mandats/internal/server"
	"github.com/sygefi/ocr-mandats/internal/validation"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var c cache.Cache = cache.Noop{}
	if cfg.Cache.RedisURL != "" {
		r, err := cache.NewRedis(cfg.Cache.RedisURL, log)
		if err != nil {
			log.Warn("redis unavailable, caching disabled", "error", err)
		} else {
			c = r
		}
	}

	var store *repository.Store
	var resultsStore server.ResultsStore
	var exporter server.Exporter
	if cfg.Database.DSN != "" {
		db, err := repository.OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			log.Error("database open failed", "driver", cfg.Database.Driver, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = repository.NewStore(db, log)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		resultsStore = store
		exporter = export.NewService(store, log)
	} else {
		log.Warn("DB_URL not set, results are not persisted")
	}

	m := metrics.New()
	pipe := pipeline.New(pre, orch, reg, extractor, validator, c, store, m, pipeline.Config{
		RawTextPreviewLen: cfg.Extract.RawTextPreviewLen,
		CacheTTL:          cfg.Cache.TTL,
	}, log)

	srv := server.New(pipe, reg, validator, resultsStore, exporter, server.Config{
		APIKey:      cfg.Server.APIKey,
		MaxFileSize: cfg.Server.MaxFileSize,
	}, log)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		log.Info("serving", "addr", cfg.Server.Addr, "engines", reg.Names())
		if err := srv.Listen(cfg.Server.Addr); err != nil {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// buildEngines instantiates the enabled recognition backends. Unknown names
// are skipped with a warning.
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
				log.Warn("remote engine enabled without REMOTE_OCR_URL, skipping")
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
