package frdate

import (
	"testing"
	"time"
)

func TestExtractNumeric(t *testing.T) {
	got := Extract("Payé le 15/12/2024 à Yaoundé")
	if len(got) != 1 {
		t.Fatalf("expected 1 date, got %d", len(got))
	}
	d := got[0]
	if d.Format != FormatNumeric || d.Raw != "15/12/2024" {
		t.Errorf("unexpected match: %+v", d)
	}
	want := time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC)
	if !d.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", d.Time, want)
	}
}

func TestExtractTextual(t *testing.T) {
	got := Extract("Émis le 15 décembre 2024")
	if len(got) != 1 {
		t.Fatalf("expected 1 date, got %d", len(got))
	}
	if got[0].Format != FormatTextual {
		t.Errorf("Format = %q, want %q", got[0].Format, FormatTextual)
	}
	if FormatFrench(got[0].Time) != "15/12/2024" {
		t.Errorf("FormatFrench = %q, want 15/12/2024", FormatFrench(got[0].Time))
	}
}

func TestExtractTextualWithoutAccents(t *testing.T) {
	got := Extract("fait le 3 fevrier 2023")
	if len(got) != 1 {
		t.Fatalf("expected 1 date, got %d", len(got))
	}
	if FormatFrench(got[0].Time) != "03/02/2023" {
		t.Errorf("FormatFrench = %q", FormatFrench(got[0].Time))
	}
}

func TestExtractISO(t *testing.T) {
	got := Extract("horodatage 2024-12-15 10:00")
	if len(got) != 1 {
		t.Fatalf("expected 1 date, got %d", len(got))
	}
	if got[0].Format != FormatISO {
		t.Errorf("Format = %q", got[0].Format)
	}
}

func TestExtractRejectsImpossibleDates(t *testing.T) {
	for _, in := range []string{"31/02/2024", "le 45/13/2024", "2024-02-30"} {
		if got := Extract(in); len(got) != 0 {
			t.Errorf("Extract(%q) = %v, want none", in, got)
		}
	}
}

func TestExtractSortedByPosition(t *testing.T) {
	got := Extract("2024-01-02 puis 15/12/2024 puis 3 mars 2024")
	if len(got) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Pos < got[i-1].Pos {
			t.Errorf("dates not sorted by position: %+v", got)
		}
	}
	if got[0].Format != FormatISO || got[1].Format != FormatNumeric || got[2].Format != FormatTextual {
		t.Errorf("unexpected order: %+v", got)
	}
}
