package market

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func fixedNow() time.Time {
	// Wednesday
	return time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)
}

func TestSyntheticDeterministic(t *testing.T) {
	opts := DefaultSyntheticOptions()
	opts.Now = fixedNow

	a := NewSynthetic(opts).Generate(240)
	b := NewSynthetic(opts).Generate(240)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed and day count must produce identical bars")
	}

	opts.Seed = 7
	c := NewSynthetic(opts).Generate(240)
	if reflect.DeepEqual(a, c) {
		t.Fatal("different seeds should produce different bars")
	}
}

func TestSyntheticInvariants(t *testing.T) {
	opts := DefaultSyntheticOptions()
	opts.Now = fixedNow
	bars := NewSynthetic(opts).Generate(300)

	if len(bars) != 300 {
		t.Fatalf("expected 300 bars, got %d", len(bars))
	}
	if bars[0].Close != opts.BasePrice {
		t.Fatalf("walk should start at base price, got %v", bars[0].Close)
	}

	last := bars[len(bars)-1].Date
	if want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC); !last.Equal(want) {
		t.Fatalf("last bar should be yesterday %s, got %s", want, last)
	}

	for i, b := range bars {
		if err := b.Validate(); err != nil {
			t.Fatalf("bar %d invalid: %v", i, err)
		}
		if wd := b.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("bar %d falls on %s", i, wd)
		}
		if b.Close < opts.MinPrice || b.Close > opts.MaxPrice {
			t.Fatalf("close %v outside clamp", b.Close)
		}
		if b.Volume < 50_000_000 || b.Volume >= 200_000_000 {
			t.Fatalf("volume %v outside range", b.Volume)
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			t.Fatalf("dates must be strictly ascending at %d", i)
		}
	}
}

func TestSyntheticFetchBarsSpansCalendarDays(t *testing.T) {
	opts := DefaultSyntheticOptions()
	opts.Now = fixedNow
	s := NewSynthetic(opts)

	end := fixedNow()
	start := end.AddDate(0, 0, -239)
	bars, err := s.FetchBars(context.Background(), "BBRI.JK", start, end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 240 {
		t.Fatalf("expected one bar per calendar day (240), got %d", len(bars))
	}
}

func TestRepair(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, 1, day, 9, 0, 0, 0, time.UTC) }
	in := []Bar{
		{Date: d(3), Open: 10, High: 9, Low: 11, Close: 10.5, Volume: 1},
		{Date: d(2), Open: 10, High: 11, Low: 9, Close: 10, Volume: 1},
		{Date: d(3), Open: 10, High: 12, Low: 9, Close: 11, Volume: 2},
		{Date: d(4), Open: 0, High: 12, Low: 9, Close: 11, Volume: 2},
	}

	out := Repair(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 bars after repair, got %d", len(out))
	}
	if out[0].Date.Day() != 2 || out[1].Date.Day() != 3 {
		t.Fatalf("bars not sorted: %v", out)
	}
	if out[1].Volume != 2 {
		t.Fatalf("duplicate date should keep the last occurrence")
	}
	for _, b := range out {
		if err := b.Validate(); err != nil {
			t.Fatalf("repaired bar invalid: %v", err)
		}
	}
}
