package dash

import (
	"testing"
	"time"
)

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, false},
		{"PT10S", 10 * time.Second, true},
		{"PT1M30S", 90 * time.Second, true},
		{"PT2H", 2 * time.Hour, true},
		{"P1DT1H", 25 * time.Hour, true},
		{"PT6.5S", 6 * time.Second, true}, // fractional seconds truncated
	}

	for _, c := range cases {
		got, ok := ParseISODuration(c.in)
		if ok != c.ok {
			t.Errorf("ParseISODuration(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseISODuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseISODuration_RejectsYearMonth(t *testing.T) {
	if _, ok := ParseISODuration("P1Y"); ok {
		t.Error("expected P1Y (year component) to be rejected")
	}
	if _, ok := ParseISODuration("P1M"); ok {
		t.Error("expected P1M (month component) to be rejected")
	}
}

func TestParseISOInstant(t *testing.T) {
	got, ok := ParseISOInstant("2020-01-01T00:00:00Z")
	if !ok {
		t.Fatal("expected a valid parse")
	}
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseISOInstant_Empty(t *testing.T) {
	if _, ok := ParseISOInstant(""); ok {
		t.Error("expected empty input to fail")
	}
}
