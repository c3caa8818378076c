// Package remote calls an HTTP OCR sidecar (a neural engine too heavy to
// run in-process). Requests carry the rendered page as base64 PNG; the
// response is schema-checked before use.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/resilience"
)

// Config holds the sidecar connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Engine struct {
	cfg     Config
	client  *http.Client
	exec    *resilience.Executor
	log     *slog.Logger
	version string
}

// New creates the engine. A nil executor disables retry and breaker; a
// nil logger falls back to the default.
func New(cfg Config, exec *resilience.Executor, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1, BreakerEnabled: false}, log)
	}
	return &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		exec:   exec,
		log:    log,
	}
}

func (e *Engine) Name() string { return constants.EngineRemote }

// Init probes the sidecar health endpoint.
func (e *Engine) Init(ctx context.Context) bool {
	if e.cfg.BaseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("remote OCR sidecar unreachable", "url", e.cfg.BaseURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	var health struct {
		Version string `json:"version"`
	}
	if b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10)); err == nil {
		_ = json.Unmarshal(b, &health)
	}
	e.version = health.Version
	return resp.StatusCode == http.StatusOK
}

func (e *Engine) Info() engine.Info {
	return engine.Info{
		Name:      e.Name(),
		Version:   e.version,
		Languages: []string{"fra"},
		Available: true,
	}
}

type recognizeRequest struct {
	ImagePNG string `json:"image_png"`
	DPI      int    `json:"dpi,omitempty"`
	Language string `json:"language"`
}

type recognizeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Spans      []struct {
		Text       string      `json:"text"`
		Confidence float64     `json:"confidence"`
		Box        engine.Rect `json:"bbox"`
	} `json:"spans"`
}

func (e *Engine) Recognize(ctx context.Context, p engine.Page) (string, float64, error) {
	resp, err := e.call(ctx, p)
	if err != nil {
		return "", 0, err
	}
	return resp.Text, resp.Confidence, nil
}

func (e *Engine) RecognizeSpans(ctx context.Context, p engine.Page) ([]engine.Span, error) {
	resp, err := e.call(ctx, p)
	if err != nil {
		return nil, err
	}
	spans := make([]engine.Span, 0, len(resp.Spans))
	for _, s := range resp.Spans {
		spans = append(spans, engine.Span{Text: s.Text, Confidence: s.Confidence, Box: s.Box})
	}
	if len(spans) == 0 && resp.Text != "" {
		spans = append(spans, engine.Span{Text: resp.Text, Confidence: resp.Confidence})
	}
	return spans, nil
}

func (e *Engine) call(ctx context.Context, p engine.Page) (*recognizeResponse, error) {
	png, err := os.ReadFile(p.PNGPath)
	if err != nil {
		return nil, fmt.Errorf("remote: read page: %w", err)
	}
	body, err := json.Marshal(recognizeRequest{
		ImagePNG: base64.StdEncoding.EncodeToString(png),
		DPI:      p.DPI,
		Language: "fra",
	})
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	var out recognizeResponse
	err = e.exec.Do(ctx, "remote-ocr", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/v1/recognize", bytes.NewReader(body))
		if err != nil {
			return resilience.NotRetryable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("remote: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return fmt.Errorf("remote: read response: %w", err)
		}
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("remote: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return resilience.NotRetryable(fmt.Errorf("remote: status %d", resp.StatusCode))
		}

		if err := validateResponse(data); err != nil {
			return resilience.NotRetryable(err)
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return resilience.NotRetryable(fmt.Errorf("remote: decode: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
