package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sygefi/ocr-mandats/constants"
)

// FallbackConfig tunes the orchestrator.
type FallbackConfig struct {
	// ConfidenceThreshold is the minimum confidence to accept a result
	// without trying the next engine.
	ConfidenceThreshold float64
	// FallbackOrder is the default priority list when the caller does not
	// supply one.
	FallbackOrder []string
	// MaxAttempts caps how many engines are tried in one run.
	MaxAttempts int
}

// DefaultFallbackConfig returns the production defaults.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		ConfidenceThreshold: 0.6,
		FallbackOrder:       constants.DefaultFallbackOrder,
		MaxAttempts:         3,
	}
}

// Options are per-request orchestration knobs.
type Options struct {
	// PreferredEngine is tried first. "auto" or "" defers to the order.
	PreferredEngine string
	// EnableFallback allows moving to the next engine after a weak result.
	// When false at most one engine runs.
	EnableFallback bool
	// FallbackOrder overrides the configured order for this request.
	FallbackOrder []string
}

// Result is the orchestration outcome.
type Result struct {
	Text       string
	Confidence float64
	Engine     string // engine whose text was kept, "" when none
	// Accepted is true when the kept result met the confidence threshold,
	// false when it is only the best of a set of weak attempts.
	Accepted bool
	Attempts []Attempt // one entry per engine tried, in order
}

// FallbackTriggered reports whether more than one engine ran.
func (r Result) FallbackTriggered() bool { return len(r.Attempts) > 1 }

// Orchestrator runs engines in priority order until one produces text at
// or above the confidence threshold.
type Orchestrator struct {
	reg *Registry
	cfg FallbackConfig
	log *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A nil logger falls back to the
// default; zero config fields take their defaults.
func NewOrchestrator(reg *Registry, cfg FallbackConfig, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultFallbackConfig()
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if len(cfg.FallbackOrder) == 0 {
		cfg.FallbackOrder = def.FallbackOrder
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Orchestrator{reg: reg, cfg: cfg, log: log}
}

// Run tries engines against the page per opts. When every engine falls
// short of the threshold the attempt with the highest confidence wins,
// reusing the text captured during its run. With no usable engine the
// result is empty with no attempts.
func (o *Orchestrator) Run(ctx context.Context, page Page, opts Options) Result {
	order := o.resolveOrder(opts)
	if len(order) == 0 {
		o.log.Error("no OCR engine available for request")
		return Result{Attempts: []Attempt{}}
	}

	attempts := make([]Attempt, 0, len(order))
	texts := make([]string, 0, len(order))

	for _, name := range order {
		eng := o.reg.Get(name)
		start := time.Now()

		text, conf, err := eng.Recognize(ctx, page)
		dur := time.Since(start)

		if err != nil {
			o.log.Error("engine failed", "engine", name, "error", err, "duration_ms", dur.Milliseconds())
			attempts = append(attempts, Attempt{Engine: name, Success: false, Confidence: 0, Duration: dur, Error: err.Error()})
			texts = append(texts, "")
		} else {
			attempts = append(attempts, Attempt{Engine: name, Success: true, Confidence: conf, Duration: dur})
			texts = append(texts, text)

			if conf >= o.cfg.ConfidenceThreshold && len(strings.TrimSpace(text)) > 0 {
				o.log.Info("engine accepted", "engine", name, "confidence", conf, "attempts", len(attempts))
				return Result{Text: text, Confidence: conf, Engine: name, Accepted: true, Attempts: attempts}
			}
			o.log.Warn("engine below threshold", "engine", name, "confidence", conf)
		}

		if !opts.EnableFallback {
			break
		}
	}

	// Exhausted: keep the best attempt's captured text. Ties go to the
	// earliest attempt.
	best := -1
	for i, a := range attempts {
		if a.Confidence > 0 && (best == -1 || a.Confidence > attempts[best].Confidence) {
			best = i
		}
	}
	if best >= 0 {
		o.log.Info("fallback exhausted, keeping best attempt",
			"engine", attempts[best].Engine, "confidence", attempts[best].Confidence)
		return Result{
			Text:       texts[best],
			Confidence: attempts[best].Confidence,
			Engine:     attempts[best].Engine,
			Attempts:   attempts,
		}
	}
	return Result{Attempts: attempts}
}

// resolveOrder builds the engine try order: the preferred engine first when
// it is available, then the fallback list, filtered to available engines
// and capped at MaxAttempts.
func (o *Orchestrator) resolveOrder(opts Options) []string {
	preferred := opts.PreferredEngine
	fallback := opts.FallbackOrder
	if len(fallback) == 0 {
		fallback = o.cfg.FallbackOrder
	}

	var order []string
	if preferred == "" || preferred == constants.EngineAuto || !o.reg.Has(preferred) {
		order = fallback
	} else {
		order = []string{preferred}
		if opts.EnableFallback {
			for _, e := range fallback {
				if e != preferred {
					order = append(order, e)
				}
			}
		}
	}

	out := make([]string, 0, len(order))
	for _, e := range order {
		if o.reg.Has(e) {
			out = append(out, e)
		}
	}
	if len(out) > o.cfg.MaxAttempts {
		out = out[:o.cfg.MaxAttempts]
	}
	return out
}
