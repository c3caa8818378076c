package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sygefi/ocr-mandats/internal/cache"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/metadata"
	"github.com/sygefi/ocr-mandats/internal/metrics"
	"github.com/sygefi/ocr-mandats/internal/preprocess"
	"github.com/sygefi/ocr-mandats/internal/validation"
)

const mandatText = `RÉPUBLIQUE DU CAMEROUN
MANDAT DE PAIEMENT
N° MD/2412034
BORDEREAU N° BOR/2402756
EXERCICE 2024
Date d'émission: 16/12/2024
Montant Total: 5 672 860 FCFA
BÉNÉFICIAIRE: ENTREPRISE KAMGA BTP`

type fakeEngine struct {
	name  string
	text  string
	conf  float64
	err   error
	calls int
}

func (f *fakeEngine) Name() string              { return f.name }
func (f *fakeEngine) Init(context.Context) bool { return true }
func (f *fakeEngine) Info() engine.Info {
	return engine.Info{Name: f.name, Available: true}
}

func (f *fakeEngine) Recognize(context.Context, engine.Page) (string, float64, error) {
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.conf, nil
}

func (f *fakeEngine) RecognizeSpans(context.Context, engine.Page) ([]engine.Span, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []engine.Span{{Text: "MD/2412034", Confidence: f.conf, Box: engine.Rect{X: 40, Y: 120, W: 200, H: 24}}}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	m.sets++
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestPipeline(t *testing.T, c cache.Cache, engines ...engine.Engine) *Pipeline {
	t.Helper()
	reg := engine.NewRegistry(nil, engines...)
	orch := engine.NewOrchestrator(reg, engine.FallbackConfig{
		ConfidenceThreshold: 0.6,
		FallbackOrder:       namesOf(engines),
		MaxAttempts:         3,
	}, nil)
	pre := preprocess.New(preprocess.Config{WorkDir: t.TempDir()}, nil, nil)
	extractor := metadata.NewExtractor(metadata.DefaultConfig(), nil)
	validator := validation.NewService(validation.DefaultConfig(), nil)
	return New(pre, orch, reg, extractor, validator, c, nil, metrics.New(), Config{}, nil)
}

func namesOf(engines []engine.Engine) []string {
	out := make([]string, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Name())
	}
	return out
}

func TestProcessFullFlow(t *testing.T) {
	eng := &fakeEngine{name: "tesseract", text: mandatText, conf: 0.87}
	p := newTestPipeline(t, nil, eng)

	// png with fast profile avoids external tools
	res, err := p.Process(context.Background(), []byte("fake png bytes"), "png", Options{
		Profile:         "fast",
		PreferredEngine: "tesseract",
		ExtractMetadata: true,
		Validate:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !res.Success {
		t.Error("expected success")
	}
	if res.PrimaryEngine != "tesseract" {
		t.Errorf("engine = %q", res.PrimaryEngine)
	}
	if res.FallbackTriggered {
		t.Error("single engine should not report fallback")
	}
	if res.Metadata == nil {
		t.Fatal("metadata missing")
	}
	if res.Metadata.Mandat == nil || res.Metadata.Mandat.Reference != "MD/2412034" {
		t.Errorf("mandat = %+v", res.Metadata.Mandat)
	}
	if res.Metadata.Bordereau == nil || res.Metadata.Bordereau.Reference != "BOR/2402756" {
		t.Errorf("bordereau = %+v", res.Metadata.Bordereau)
	}
	if res.Metadata.Exercice != "2024" {
		t.Errorf("exercice = %q", res.Metadata.Exercice)
	}
	if res.Verdict == nil || !res.Verdict.Valid {
		t.Errorf("verdict = %+v", res.Verdict)
	}
	if res.Confidence <= 0 {
		t.Errorf("confidence = %f", res.Confidence)
	}
	if res.ID == "" || res.ContentHash == "" {
		t.Error("missing id or content hash")
	}
	if len(res.EnginesUsed) != 1 || res.EnginesUsed[0] != "tesseract" {
		t.Errorf("engines used = %v", res.EnginesUsed)
	}
	// span confidence should replace the fixed default for the mandat
	if res.Metadata.Mandat.Confidence != 0.87 {
		t.Errorf("mandat confidence = %f, want span confidence", res.Metadata.Mandat.Confidence)
	}
}

func TestProcessFallbackChain(t *testing.T) {
	weak := &fakeEngine{name: "pdftext", text: "illisible", conf: 0.2}
	strong := &fakeEngine{name: "tesseract", text: mandatText, conf: 0.8}
	p := newTestPipeline(t, nil, weak, strong)

	res, err := p.Process(context.Background(), []byte("fake"), "png", Options{
		Profile:         "fast",
		EnableFallback:  true,
		ExtractMetadata: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !res.FallbackTriggered {
		t.Error("expected fallback")
	}
	if res.PrimaryEngine != "tesseract" {
		t.Errorf("engine = %q", res.PrimaryEngine)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(res.Attempts))
	}
	if res.Attempts[0].Engine != "pdftext" || res.Attempts[0].Confidence != 0.2 {
		t.Errorf("first attempt = %+v", res.Attempts[0])
	}
	if res.Attempts[1].Engine != "tesseract" || res.Attempts[1].Confidence != 0.8 {
		t.Errorf("second attempt = %+v", res.Attempts[1])
	}
}

func TestProcessCacheRoundTrip(t *testing.T) {
	eng := &fakeEngine{name: "tesseract", text: mandatText, conf: 0.9}
	c := newMemCache()
	p := newTestPipeline(t, c, eng)

	opts := Options{Profile: "fast", ExtractMetadata: true, Validate: true}
	data := []byte("same bytes")

	first, err := p.Process(context.Background(), data, "png", opts)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first run must not be cached")
	}
	if c.sets != 1 {
		t.Fatalf("cache sets = %d", c.sets)
	}

	second, err := p.Process(context.Background(), data, "png", opts)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second run should hit the cache")
	}
	if second.ID != first.ID {
		t.Errorf("cached id = %q, want %q", second.ID, first.ID)
	}
	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1", eng.calls)
	}

	// different options miss the cache
	opts.Validate = false
	third, err := p.Process(context.Background(), data, "png", opts)
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached {
		t.Error("changed options must not reuse the cached entry")
	}
}

func TestProcessSkipCache(t *testing.T) {
	eng := &fakeEngine{name: "tesseract", text: mandatText, conf: 0.9}
	c := newMemCache()
	p := newTestPipeline(t, c, eng)

	opts := Options{Profile: "fast", ExtractMetadata: true, SkipCache: true}
	if _, err := p.Process(context.Background(), []byte("x"), "png", opts); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Process(context.Background(), []byte("x"), "png", opts); err != nil {
		t.Fatal(err)
	}
	if eng.calls != 2 {
		t.Errorf("engine calls = %d, want 2 with cache skipped", eng.calls)
	}
	if c.sets != 0 {
		t.Errorf("cache sets = %d, want 0", c.sets)
	}
}

func TestProcessNoReferenceIsFailure(t *testing.T) {
	eng := &fakeEngine{name: "tesseract", text: "facture sans références utiles", conf: 0.9}
	p := newTestPipeline(t, nil, eng)

	res, err := p.Process(context.Background(), []byte("x"), "png", Options{
		Profile:         "fast",
		ExtractMetadata: true,
		Validate:        true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("no mandat or bordereau found, success must be false")
	}
	if res.Verdict == nil {
		t.Fatal("verdict missing")
	}
	if len(res.Verdict.Warnings) == 0 {
		t.Error("expected missing-reference warnings")
	}
}

func TestProcessWithoutMetadata(t *testing.T) {
	eng := &fakeEngine{name: "tesseract", text: "du texte brut", conf: 0.8}
	p := newTestPipeline(t, nil, eng)

	res, err := p.Process(context.Background(), []byte("x"), "png", Options{Profile: "fast"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Error("accepted OCR without metadata extraction should succeed")
	}
	if res.Metadata != nil {
		t.Error("metadata should be nil when extraction is off")
	}
	if res.Confidence != 0.8 {
		t.Errorf("confidence = %f", res.Confidence)
	}
}

func TestProcessRejectsUnknownExtension(t *testing.T) {
	p := newTestPipeline(t, nil, &fakeEngine{name: "tesseract", text: "x", conf: 0.9})

	if _, err := p.Process(context.Background(), []byte("x"), "docx", Options{Profile: "fast"}); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestProcessAllEnginesFail(t *testing.T) {
	broken := &fakeEngine{name: "tesseract", err: errors.New("binary crashed")}
	p := newTestPipeline(t, nil, broken)

	res, err := p.Process(context.Background(), []byte("x"), "png", Options{
		Profile:         "fast",
		EnableFallback:  true,
		ExtractMetadata: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("all engines failed, success must be false")
	}
	if res.RawText != "" {
		t.Errorf("raw text = %q", res.RawText)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Success {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestProcessTruncatesRawText(t *testing.T) {
	long := mandatText + "\n" + strings.Repeat("ligne de détail budgétaire ", 100)
	eng := &fakeEngine{name: "tesseract", text: long, conf: 0.9}
	p := newTestPipeline(t, nil, eng)

	res, err := p.Process(context.Background(), []byte("x"), "png", Options{Profile: "fast", ExtractMetadata: true})
	if err != nil {
		t.Fatal(err)
	}
	if len([]rune(res.RawText)) > 503 {
		t.Errorf("raw text length = %d, want preview", len([]rune(res.RawText)))
	}
	if !strings.HasSuffix(res.RawText, "...") {
		t.Error("truncated preview should end with ellipsis")
	}
}
