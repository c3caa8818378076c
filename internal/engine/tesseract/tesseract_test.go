package tesseract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sygefi/ocr-mandats/internal/engine"
)

// stubRunner replays canned outputs keyed by the invocation mode: version
// probe, TSV run, or plain text run.
type stubRunner struct {
	outputs map[string]string
	fail    map[string]error
	calls   []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, name+" "+strings.Join(args, " "))
	key := "stdout"
	switch {
	case args[0] == "--version":
		key = "--version"
	case args[len(args)-1] == "tsv":
		key = "tsv"
	}
	if err, ok := s.fail[key]; ok {
		return nil, []byte("stub failure"), err
	}
	return []byte(s.outputs[key]), nil, nil
}

const sampleTSV = `level	page_num	block_num	par_num	line_num	word_num	left	top	width	height	conf	text
1	1	0	0	0	0	0	0	1000	1400	-1
5	1	1	1	1	1	100	50	80	20	91	MANDAT
5	1	1	1	1	2	190	50	120	20	88	MD/2412034
5	1	1	2	1	1	100	90	90	22	72	Exercice:
5	1	1	2	1	2	200	90	48	22	80	2024
`

func TestInitParsesVersion(t *testing.T) {
	r := &stubRunner{outputs: map[string]string{"--version": "tesseract 5.3.0\n leptonica-1.82.0"}}
	e := New(Config{}, r, nil)
	if !e.Init(context.Background()) {
		t.Fatal("Init failed")
	}
	if e.Info().Version != "5.3.0" {
		t.Errorf("version = %q", e.Info().Version)
	}
}

func TestInitFailsWhenBinaryMissing(t *testing.T) {
	r := &stubRunner{fail: map[string]error{"--version": errors.New("not found")}}
	e := New(Config{}, r, nil)
	if e.Init(context.Background()) {
		t.Error("Init should fail when the binary is absent")
	}
}

func TestRecognizeBlendsTSVConfidence(t *testing.T) {
	text := "MANDAT MD/2412034\nExercice: 2024\n"
	r := &stubRunner{outputs: map[string]string{"stdout": text, "tsv": sampleTSV}}
	e := New(Config{Lang: "fra"}, r, nil)

	got, conf, err := e.Recognize(context.Background(), engine.Page{PNGPath: "/tmp/p.png"})
	if err != nil {
		t.Fatal(err)
	}
	if got != text {
		t.Errorf("text = %q", got)
	}
	// TSV mean is (91+88+72+80)/4 = 82.75 -> 0.8275.
	// heuristic: base 0.2 + reference 0.25 + date 0 + short text = 0.45.
	want := 0.7*0.8275 + 0.3*0.45
	if diff := conf - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", conf, want)
	}
}

func TestRecognizeFallsBackToHeuristic(t *testing.T) {
	r := &stubRunner{
		outputs: map[string]string{"stdout": "MANDAT MD/2412034 du 15/12/2024"},
		fail:    map[string]error{"tsv": errors.New("tsv broken")},
	}
	e := New(Config{}, r, nil)

	_, conf, err := e.Recognize(context.Background(), engine.Page{PNGPath: "/tmp/p.png"})
	if err != nil {
		t.Fatal(err)
	}
	// base 0.2 + reference 0.25 + date 0.15
	if diff := conf - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want 0.6", conf)
	}
}

func TestRecognizeError(t *testing.T) {
	r := &stubRunner{fail: map[string]error{"stdout": errors.New("exit 1")}}
	e := New(Config{}, r, nil)
	if _, _, err := e.Recognize(context.Background(), engine.Page{PNGPath: "/tmp/p.png"}); err == nil {
		t.Error("expected error")
	}
}

func TestRecognizeSpansGroupsLines(t *testing.T) {
	r := &stubRunner{outputs: map[string]string{"tsv": sampleTSV}}
	e := New(Config{}, r, nil)

	spans, err := e.RecognizeSpans(context.Background(), engine.Page{PNGPath: "/tmp/p.png"})
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Text != "MANDAT MD/2412034" {
		t.Errorf("span text = %q", spans[0].Text)
	}
	// line box is the union of its word boxes
	if spans[0].Box.X != 100 || spans[0].Box.W != 210 {
		t.Errorf("span box = %+v", spans[0].Box)
	}
	wantConf := (91.0 + 88.0) / 2 / 100
	if diff := spans[0].Confidence - wantConf; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("span confidence = %v, want %v", spans[0].Confidence, wantConf)
	}
	if spans[1].Text != "Exercice: 2024" {
		t.Errorf("second span = %q", spans[1].Text)
	}
}

func TestArgsIncludeTuning(t *testing.T) {
	r := &stubRunner{outputs: map[string]string{"stdout": "x", "tsv": sampleTSV}}
	e := New(Config{Lang: "fra+eng", PSM: 6, OEM: 1, TessdataDir: "/opt/tessdata"}, r, nil)

	_, _, _ = e.Recognize(context.Background(), engine.Page{PNGPath: "/tmp/p.png"})
	if len(r.calls) == 0 {
		t.Fatal("runner not invoked")
	}
	call := r.calls[0]
	for _, want := range []string{"-l fra+eng", "--psm 6", "--oem 1", "--tessdata-dir /opt/tessdata"} {
		if !strings.Contains(call, want) {
			t.Errorf("call %q missing %q", call, want)
		}
	}
}
