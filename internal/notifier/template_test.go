package notifier

import (
	"errors"
	"testing"
	"time"

	"github.com/speedwagon-io/hevt/internal/model"
	"github.com/speedwagon-io/hevt/internal/settings"
)

var at = time.Date(2024, 5, 17, 9, 3, 7, 0, time.Local)

func sampleReport() model.Report {
	return model.Report{Alarm: true, MaxTemp: 41.237, MinTemp: 25, AvgTemp: 33.5, OverCount: 4, DiffArea: 17}
}

func TestFormatDefaultTemplate(t *testing.T) {
	got, err := Format(settings.DefaultTemplate, FieldsFromReport(sampleReport(), at))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	want := "⚠️ 溫度警報：Max=41.24°C, Avg=33.50°C, DiffArea=17 @ 2024-05-17 09:03:07"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatSpecs(t *testing.T) {
	f := FieldsFromReport(sampleReport(), at)
	cases := map[string]string{
		"{min}":            "25.0",
		"{over}":           "4",
		"{diff_area:4d}":   "  17",
		"{max:.1f}":        "41.2",
		"{avg:08.3f}":      "0033.500",
		"{over:.1f}":       "4.0",
		"{{max}}":          "{max}",
		"{now:.10}":        "2024-05-17",
		"t={avgT:+.1f}":    "t=+0.0",
		"plain text":       "plain text",
		"{max:s}/{over:s}": "41.237/4",
		"[{now:22}]":       "[2024-05-17 09:03:07   ]",
		"[{now:12.5s}]":    "[2024-       ]",
		"[{max:8}]":        "[  41.237]",
	}
	for tpl, want := range cases {
		got, err := Format(tpl, f)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tpl, err)
		}
		if got != want {
			t.Fatalf("%q: got %q, want %q", tpl, got, want)
		}
	}
}

func TestFormatErrors(t *testing.T) {
	f := FieldsFromReport(sampleReport(), at)
	if _, err := Format("{temperature}", f); !errors.Is(err, ErrUnknownPlaceholder) {
		t.Fatalf("expected ErrUnknownPlaceholder, got %v", err)
	}
	for _, tpl := range []string{"{max", "max}", "{}", "{max:.f}", "{max:d}", "{now:.2f}", "{max!r}", "{max:q}", "{over:.2d}",
		"{now:4611686018427387904}", "{max:.99999f}", "{diff_area:1001d}"} {
		if _, err := Format(tpl, f); err == nil {
			t.Fatalf("%q: expected an error", tpl)
		}
	}
}

func TestRenderFallsBack(t *testing.T) {
	got := Render("Max={max:.2f} at {where}", FieldsFromReport(sampleReport(), at))
	want := "⚠️ 警報：Max=41.24°C, Avg=33.50°C, DiffArea=17"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderFallsBackOnHugeWidth(t *testing.T) {
	got := Render("{now:4611686018427387904}", FieldsFromReport(sampleReport(), at))
	want := "⚠️ 警報：Max=41.24°C, Avg=33.50°C, DiffArea=17"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSampleFields(t *testing.T) {
	got := "[TEST] " + Render(settings.DefaultTemplate, SampleFields(at))
	want := "[TEST] ⚠️ 溫度警報：Max=38.50°C, Avg=33.00°C, DiffArea=42 @ 2024-05-17 09:03:07"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
