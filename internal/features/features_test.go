package features

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shintothemars/tft-bbri/internal/market"
)

func syntheticBars(n int) []market.Bar {
	opts := market.DefaultSyntheticOptions()
	opts.Now = func() time.Time { return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) }
	return market.NewSynthetic(opts).Generate(n)
}

func TestEnrichProducesCompleteRows(t *testing.T) {
	bars := syntheticBars(240)
	eng := NewEngineer(DefaultOptions())

	rows, err := eng.Enrich(bars)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if want := 240 - eng.Warmup(); len(rows) != want {
		t.Fatalf("expected %d rows, got %d", want, len(rows))
	}

	for i, r := range rows {
		if r.TimeIndex != i {
			t.Fatalf("time index not contiguous at %d: %d", i, r.TimeIndex)
		}
		for j, v := range r.Unknowns() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("row %d column %s is not finite", i, UnknownReals[j])
			}
		}
		if r.RSI < 0 || r.RSI > 100 {
			t.Fatalf("rsi out of range at %d: %v", i, r.RSI)
		}
		if r.BBUpper < r.BBMiddle || r.BBMiddle < r.BBLower {
			t.Fatalf("bollinger ordering broken at %d", i)
		}
		if r.Target != r.Close {
			t.Fatalf("target must mirror close")
		}
		if r.SeriesID != "BBRI" {
			t.Fatalf("unexpected series id %q", r.SeriesID)
		}
	}

	if !rows[len(rows)-1].Date.Equal(bars[len(bars)-1].Date) {
		t.Fatal("last row must correspond to the last bar")
	}
}

func TestEnrichMovingAverages(t *testing.T) {
	bars := syntheticBars(200)
	rows, err := NewEngineer(DefaultOptions()).Enrich(bars)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}

	offset := len(bars) - len(rows)
	for _, idx := range []int{0, 50, len(rows) - 1} {
		end := offset + idx
		var sum7, sum30 float64
		for k := end - 6; k <= end; k++ {
			sum7 += bars[k].Close
		}
		for k := end - 29; k <= end; k++ {
			sum30 += bars[k].Close
		}
		if math.Abs(rows[idx].MAShort-sum7/7) > 1e-6 {
			t.Fatalf("ma_7 mismatch at %d: %v vs %v", idx, rows[idx].MAShort, sum7/7)
		}
		if math.Abs(rows[idx].MALong-sum30/30) > 1e-6 {
			t.Fatalf("ma_30 mismatch at %d: %v vs %v", idx, rows[idx].MALong, sum30/30)
		}
	}
}

func TestEnrichInsufficientData(t *testing.T) {
	bars := syntheticBars(80)
	eng := NewEngineer(DefaultOptions())

	_, err := eng.Enrich(bars)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Rows != 80-eng.Warmup() || insufficient.Required != 60 {
		t.Fatalf("unexpected counts: %+v", insufficient)
	}
	if !strings.Contains(err.Error(), "47 rows") {
		t.Fatalf("message should contain the actual row count: %q", err.Error())
	}
}

func TestEnrichTooShortForIndicators(t *testing.T) {
	_, err := NewEngineer(DefaultOptions()).Enrich(syntheticBars(10))
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Rows != 0 {
		t.Fatalf("expected 0 usable rows, got %d", insufficient.Rows)
	}
}

func TestEnrichRejectsUnorderedBars(t *testing.T) {
	bars := syntheticBars(120)
	bars[10], bars[11] = bars[11], bars[10]
	if _, err := NewEngineer(DefaultOptions()).Enrich(bars); err == nil {
		t.Fatal("unordered bars should be rejected")
	}
}
