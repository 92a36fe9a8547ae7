package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const chartFixture = `{
  "chart": {
    "result": [{
      "meta": {"currency": "IDR", "gmtoffset": 25200},
      "timestamp": [1704160800, 1704247200, 1704333600],
      "indicators": {"quote": [{
        "open":   [5700, 5725, 5750],
        "high":   [5750, 5775, 5800],
        "low":    [5675, 5700, null],
        "close":  [5725, 5760, null],
        "volume": [120000000, 98000000, null]
      }]}
    }],
    "error": null
  }
}`

func TestYahooFetchBars(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartFixture))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := y.FetchBars(context.Background(), "BBRI.JK", start, start.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("fetch bars: %v", err)
	}

	if gotPath != "/v8/finance/chart/BBRI.JK" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotInterval != "1d" {
		t.Fatalf("expected daily interval, got %q", gotInterval)
	}
	if len(bars) != 2 {
		t.Fatalf("null row should be skipped, got %d bars", len(bars))
	}
	if got := bars[0].Date.Format(DateLayout); got != "2024-01-02" {
		t.Fatalf("expected first bar on 2024-01-02, got %s", got)
	}
	if bars[1].Close != 5760 {
		t.Fatalf("unexpected close %v", bars[1].Close)
	}
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			t.Fatalf("bar should be valid: %v", err)
		}
	}
}

func TestYahooFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := y.FetchBars(context.Background(), "NOPE.JK", time.Now().AddDate(0, 0, -10), time.Now())

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.Status != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", providerErr.Status)
	}
	if !strings.Contains(err.Error(), "delisted") {
		t.Fatalf("error should carry API description: %v", err)
	}
}

func TestYahooFetchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{},"timestamp":[],"indicators":{"quote":[{}]}}],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahoo(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := y.FetchBars(context.Background(), "BBRI.JK", time.Now().AddDate(0, 0, -10), time.Now())

	var emptyErr *EmptyResultError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyResultError, got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("empty result should be retryable")
	}
}
