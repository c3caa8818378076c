package engine

import (
	"context"
	"errors"
	"testing"
)

// fakeEngine is a scriptable engine for orchestration tests.
type fakeEngine struct {
	name  string
	text  string
	conf  float64
	err   error
	avail bool
	calls int
}

func (f *fakeEngine) Name() string                { return f.name }
func (f *fakeEngine) Init(context.Context) bool   { return f.avail }
func (f *fakeEngine) Info() Info                  { return Info{Name: f.name, Available: f.avail} }
func (f *fakeEngine) Recognize(context.Context, Page) (string, float64, error) {
	f.calls++
	return f.text, f.conf, f.err
}
func (f *fakeEngine) RecognizeSpans(context.Context, Page) ([]Span, error) {
	return []Span{{Text: f.text, Confidence: f.conf}}, f.err
}

func newTestRegistry(t *testing.T, engines ...Engine) *Registry {
	t.Helper()
	reg := NewRegistry(nil, engines...)
	reg.Init(context.Background())
	return reg
}

func TestRunStopsAtFirstAcceptable(t *testing.T) {
	a := &fakeEngine{name: "a", text: "texte faible", conf: 0.3, avail: true}
	b := &fakeEngine{name: "b", text: "texte correct", conf: 0.7, avail: true}
	c := &fakeEngine{name: "c", text: "jamais", conf: 0.9, avail: true}
	reg := newTestRegistry(t, a, b, c)
	o := NewOrchestrator(reg, FallbackConfig{ConfidenceThreshold: 0.6, FallbackOrder: []string{"a", "b", "c"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if !res.Accepted || res.Engine != "b" || res.Text != "texte correct" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(res.Attempts))
	}
	if res.Attempts[0].Engine != "a" || res.Attempts[1].Engine != "b" {
		t.Errorf("attempt order = %+v", res.Attempts)
	}
	if !res.FallbackTriggered() {
		t.Error("fallback should be reported as triggered")
	}
	if c.calls != 0 {
		t.Errorf("engine c was invoked %d times", c.calls)
	}
}

func TestRunNoFallbackTriesOneEngine(t *testing.T) {
	a := &fakeEngine{name: "a", text: "faible", conf: 0.2, avail: true}
	b := &fakeEngine{name: "b", text: "bon", conf: 0.9, avail: true}
	reg := newTestRegistry(t, a, b)
	o := NewOrchestrator(reg, FallbackConfig{FallbackOrder: []string{"a", "b"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: false})

	if len(res.Attempts) != 1 || res.Attempts[0].Engine != "a" {
		t.Errorf("attempts = %+v", res.Attempts)
	}
	if b.calls != 0 {
		t.Errorf("second engine ran despite fallback disabled")
	}
	// Best-of path still surfaces the weak text.
	if res.Accepted || res.Text != "faible" || res.Confidence != 0.2 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunExhaustionKeepsBestWithoutReinvoking(t *testing.T) {
	a := &fakeEngine{name: "a", text: "premier", conf: 0.4, avail: true}
	b := &fakeEngine{name: "b", text: "deuxieme", conf: 0.5, avail: true}
	reg := newTestRegistry(t, a, b)
	o := NewOrchestrator(reg, FallbackConfig{ConfidenceThreshold: 0.6, FallbackOrder: []string{"a", "b"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if res.Accepted {
		t.Error("no attempt met the threshold, result must not be accepted")
	}
	if res.Engine != "b" || res.Text != "deuxieme" || res.Confidence != 0.5 {
		t.Errorf("best attempt not kept: %+v", res)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("engines re-invoked: a=%d b=%d, want 1 each", a.calls, b.calls)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("attempts = %+v", res.Attempts)
	}
}

func TestRunExhaustionTieKeepsFirst(t *testing.T) {
	a := &fakeEngine{name: "a", text: "premier", conf: 0.5, avail: true}
	b := &fakeEngine{name: "b", text: "deuxieme", conf: 0.5, avail: true}
	reg := newTestRegistry(t, a, b)
	o := NewOrchestrator(reg, FallbackConfig{ConfidenceThreshold: 0.6, FallbackOrder: []string{"a", "b"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if res.Engine != "a" || res.Text != "premier" {
		t.Errorf("tie must keep the earliest attempt: %+v", res)
	}
}

func TestRunAllFailed(t *testing.T) {
	a := &fakeEngine{name: "a", err: errors.New("boom"), avail: true}
	b := &fakeEngine{name: "b", err: errors.New("bam"), avail: true}
	reg := newTestRegistry(t, a, b)
	o := NewOrchestrator(reg, FallbackConfig{FallbackOrder: []string{"a", "b"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if res.Text != "" || res.Confidence != 0 || res.Accepted || res.Engine != "" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("attempts = %d", len(res.Attempts))
	}
	if res.Attempts[0].Success || res.Attempts[0].Error == "" {
		t.Errorf("failed attempt not recorded: %+v", res.Attempts[0])
	}
}

func TestRunNoEngines(t *testing.T) {
	reg := newTestRegistry(t, &fakeEngine{name: "down", avail: false})
	o := NewOrchestrator(reg, FallbackConfig{FallbackOrder: []string{"down"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if res.Text != "" || res.Confidence != 0 || len(res.Attempts) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunPreferredEngineFirst(t *testing.T) {
	a := &fakeEngine{name: "a", text: "ok", conf: 0.9, avail: true}
	b := &fakeEngine{name: "b", text: "ok", conf: 0.9, avail: true}
	reg := newTestRegistry(t, a, b)
	o := NewOrchestrator(reg, FallbackConfig{FallbackOrder: []string{"a", "b"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{PreferredEngine: "b", EnableFallback: true})

	if res.Engine != "b" || a.calls != 0 {
		t.Errorf("preferred engine not tried first: %+v, a.calls=%d", res, a.calls)
	}
}

func TestRunUnknownPreferredFallsBackToOrder(t *testing.T) {
	a := &fakeEngine{name: "a", text: "ok", conf: 0.9, avail: true}
	reg := newTestRegistry(t, a)
	o := NewOrchestrator(reg, FallbackConfig{FallbackOrder: []string{"a"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{PreferredEngine: "ghost", EnableFallback: true})

	if res.Engine != "a" {
		t.Errorf("order fallback not applied: %+v", res)
	}
}

func TestRunMaxAttemptsCapsOrder(t *testing.T) {
	a := &fakeEngine{name: "a", text: "x", conf: 0.1, avail: true}
	b := &fakeEngine{name: "b", text: "y", conf: 0.1, avail: true}
	c := &fakeEngine{name: "c", text: "z", conf: 0.1, avail: true}
	reg := newTestRegistry(t, a, b, c)
	o := NewOrchestrator(reg, FallbackConfig{FallbackOrder: []string{"a", "b", "c"}, MaxAttempts: 2}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if len(res.Attempts) != 2 || c.calls != 0 {
		t.Errorf("attempt cap ignored: %+v, c.calls=%d", res.Attempts, c.calls)
	}
}

func TestRegistryDropsUnavailableEngines(t *testing.T) {
	up := &fakeEngine{name: "up", avail: true}
	down := &fakeEngine{name: "down", avail: false}
	reg := newTestRegistry(t, up, down)

	names := reg.Names()
	if len(names) != 1 || names[0] != "up" {
		t.Errorf("Names = %v", names)
	}
	if reg.Has("down") || reg.Get("down") != nil {
		t.Error("unavailable engine still registered")
	}
	infos := reg.Infos()
	if len(infos) != 1 || infos[0].Name != "up" {
		t.Errorf("Infos = %+v", infos)
	}
}

func TestAcceptanceRequiresNonEmptyText(t *testing.T) {
	// High confidence but blank text must not be accepted.
	a := &fakeEngine{name: "a", text: "   ", conf: 0.99, avail: true}
	b := &fakeEngine{name: "b", text: "du texte", conf: 0.8, avail: true}
	reg := newTestRegistry(t, a, b)
	o := NewOrchestrator(reg, FallbackConfig{ConfidenceThreshold: 0.6, FallbackOrder: []string{"a", "b"}}, nil)

	res := o.Run(context.Background(), Page{}, Options{EnableFallback: true})

	if !res.Accepted || res.Engine != "b" {
		t.Errorf("blank text accepted: %+v", res)
	}
}
