// Package pipeline runs the full document flow: preprocess, recognize with
// engine fallback, extract metadata, validate, then cache and persist the
// result.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sygefi/ocr-mandats/internal/cache"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/metadata"
	"github.com/sygefi/ocr-mandats/internal/metrics"
	"github.com/sygefi/ocr-mandats/internal/preprocess"
	"github.com/sygefi/ocr-mandats/internal/repository"
	"github.com/sygefi/ocr-mandats/internal/textutil"
	"github.com/sygefi/ocr-mandats/internal/validation"
)

// Options are the per-request pipeline knobs.
type Options struct {
	Filename        string `json:"filename"`
	Profile         string `json:"profile"`
	PreferredEngine string `json:"engine"`
	EnableFallback  bool   `json:"enable_fallback"`
	ExtractMetadata bool   `json:"extract_metadata"`
	Validate        bool   `json:"validate"`
	SkipCache       bool   `json:"skip_cache"`
}

// DefaultOptions enables the full flow with automatic engine choice.
func DefaultOptions() Options {
	return Options{
		PreferredEngine: "auto",
		EnableFallback:  true,
		ExtractMetadata: true,
		Validate:        true,
	}
}

// Result is the pipeline outcome returned to callers and persisted.
type Result struct {
	ID                string                `json:"id"`
	Success           bool                  `json:"success"`
	ContentHash       string                `json:"content_hash"`
	ProcessingMS      int64                 `json:"processing_time_ms"`
	PrimaryEngine     string                `json:"primary_engine"`
	EnginesUsed       []string              `json:"engines_used"`
	FallbackTriggered bool                  `json:"fallback_triggered"`
	Attempts          []engine.Attempt      `json:"engine_history"`
	Confidence        float64               `json:"confidence_score"`
	RawText           string                `json:"raw_text"`
	Metadata          *metadata.Extraction  `json:"metadata,omitempty"`
	Verdict           *validation.Verdict   `json:"validation,omitempty"`
	Preprocessing     []string              `json:"preprocessing_applied,omitempty"`
	Cached            bool                  `json:"cached"`
}

// Config holds pipeline-level tunables.
type Config struct {
	RawTextPreviewLen int
	CacheTTL          time.Duration
}

// Pipeline wires the stages together. Store and Metrics may be nil.
type Pipeline struct {
	pre       *preprocess.Preprocessor
	orch      *engine.Orchestrator
	reg       *engine.Registry
	extractor *metadata.Extractor
	validator *validation.Service
	cache     cache.Cache
	store     *repository.Store
	metrics   *metrics.Metrics
	cfg       Config
	log       *slog.Logger
}

// New assembles a Pipeline. A nil cache disables caching; a nil logger
// falls back to the default.
func New(
	pre *preprocess.Preprocessor,
	orch *engine.Orchestrator,
	reg *engine.Registry,
	extractor *metadata.Extractor,
	validator *validation.Service,
	c cache.Cache,
	store *repository.Store,
	m *metrics.Metrics,
	cfg Config,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if c == nil {
		c = cache.Noop{}
	}
	if cfg.RawTextPreviewLen <= 0 {
		cfg.RawTextPreviewLen = 500
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Pipeline{
		pre: pre, orch: orch, reg: reg,
		extractor: extractor, validator: validator,
		cache: c, store: store, metrics: m,
		cfg: cfg, log: log,
	}
}

// Process runs one document through the pipeline.
func (p *Pipeline) Process(ctx context.Context, data []byte, ext string, opts Options) (*Result, error) {
	start := time.Now()

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])
	cacheKey := cache.Key(contentHash, optionsFingerprint(opts))

	if !opts.SkipCache {
		if cached, ok, err := p.cache.Get(ctx, cacheKey); err != nil {
			p.log.Warn("cache get failed", "error", err)
		} else if ok {
			var res Result
			if err := json.Unmarshal(cached, &res); err == nil {
				res.Cached = true
				if p.metrics != nil {
					p.metrics.CacheHits.Inc()
				}
				p.log.Info("cache hit", "hash", contentHash)
				return &res, nil
			}
		}
	}

	prep, err := p.pre.Process(ctx, data, ext, opts.Profile)
	if err != nil {
		p.observeOutcome("preprocess_error", start)
		return nil, err
	}
	defer prep.Cleanup()

	run := p.orch.Run(ctx, prep.Page, engine.Options{
		PreferredEngine: opts.PreferredEngine,
		EnableFallback:  opts.EnableFallback,
	})
	if p.metrics != nil {
		for _, a := range run.Attempts {
			p.metrics.ObserveAttempt(a.Engine, a.Success, a.Duration)
		}
		if run.FallbackTriggered() {
			p.metrics.FallbackRuns.Inc()
		}
	}

	res := &Result{
		ID:                uuid.NewString(),
		ContentHash:       contentHash,
		PrimaryEngine:     run.Engine,
		EnginesUsed:       enginesUsed(run.Attempts),
		FallbackTriggered: run.FallbackTriggered(),
		Attempts:          run.Attempts,
		Confidence:        run.Confidence,
		RawText:           textutil.Truncate(run.Text, p.cfg.RawTextPreviewLen),
		Preprocessing:     prep.Applied,
	}

	if opts.ExtractMetadata && run.Text != "" {
		ext := p.extractor.Extract(run.Text, p.collectSpans(ctx, run, prep.Page))
		res.Metadata = &ext
		res.Success = ext.Mandat != nil || ext.Bordereau != nil
		if opts.Validate {
			verdict := p.validator.Validate(ext)
			res.Verdict = &verdict
			res.Confidence = verdict.Confidence
		} else {
			res.Confidence = metadata.Overall(ext)
		}
	} else {
		res.Success = run.Accepted
	}

	res.ProcessingMS = time.Since(start).Milliseconds()
	p.observeOutcome(outcomeLabel(res.Success), start)

	if !opts.SkipCache {
		if data, err := json.Marshal(res); err == nil {
			if err := p.cache.Set(ctx, cacheKey, data, p.cfg.CacheTTL); err != nil {
				p.log.Warn("cache set failed", "error", err)
			}
		}
	}
	p.persist(ctx, res, opts)

	p.log.Info("pipeline done",
		"id", res.ID,
		"success", res.Success,
		"engine", res.PrimaryEngine,
		"fallback", res.FallbackTriggered,
		"duration_ms", res.ProcessingMS,
	)
	return res, nil
}

// collectSpans asks the accepted engine for positioned text, best-effort.
func (p *Pipeline) collectSpans(ctx context.Context, run engine.Result, page engine.Page) []metadata.Span {
	if run.Engine == "" {
		return nil
	}
	eng := p.reg.Get(run.Engine)
	if eng == nil {
		return nil
	}
	spans, err := eng.RecognizeSpans(ctx, page)
	if err != nil {
		p.log.Debug("span collection failed", "engine", run.Engine, "error", err)
		return nil
	}
	out := make([]metadata.Span, 0, len(spans))
	for _, s := range spans {
		out = append(out, metadata.Span{
			Text:       s.Text,
			Confidence: s.Confidence,
			BBox:       []int{s.Box.X, s.Box.Y, s.Box.W, s.Box.H},
		})
	}
	return out
}

func (p *Pipeline) persist(ctx context.Context, res *Result, opts Options) {
	if p.store == nil {
		return
	}
	rec := &repository.ResultRecord{
		ID:                res.ID,
		ContentHash:       res.ContentHash,
		Filename:          opts.Filename,
		Success:           res.Success,
		PrimaryEngine:     res.PrimaryEngine,
		EnginesUsed:       res.EnginesUsed,
		FallbackTriggered: res.FallbackTriggered,
		Confidence:        res.Confidence,
		RawTextPreview:    res.RawText,
		ProcessingMS:      res.ProcessingMS,
	}
	if res.Metadata != nil {
		if res.Metadata.Mandat != nil {
			rec.MandatRef = res.Metadata.Mandat.Reference
		}
		if res.Metadata.Bordereau != nil {
			rec.BordereauRef = res.Metadata.Bordereau.Reference
		}
		rec.Exercice = res.Metadata.Exercice
		if b, err := json.Marshal(res.Metadata); err == nil {
			rec.Metadata = b
		}
	}
	if res.Verdict != nil {
		if b, err := json.Marshal(res.Verdict); err == nil {
			rec.Verdict = b
		}
	}
	if rec.Metadata == nil {
		rec.Metadata = json.RawMessage(`{}`)
	}
	if rec.Verdict == nil {
		rec.Verdict = json.RawMessage(`{}`)
	}
	if err := p.store.Insert(ctx, rec); err != nil {
		p.log.Error("persist result failed", "id", res.ID, "error", err)
	}
}

func (p *Pipeline) observeOutcome(outcome string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.Extractions.WithLabelValues(outcome).Inc()
	p.metrics.Duration.Observe(time.Since(start).Seconds())
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "no_reference"
}

func enginesUsed(attempts []engine.Attempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Engine)
	}
	return out
}

// optionsFingerprint folds the options that change the outcome into the
// cache key.
func optionsFingerprint(opts Options) string {
	s := strings.Join([]string{
		opts.Profile,
		opts.PreferredEngine,
		fmt.Sprintf("%t", opts.EnableFallback),
		fmt.Sprintf("%t", opts.ExtractMetadata),
		fmt.Sprintf("%t", opts.Validate),
	}, "|")
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
