package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/shintothemars/tft-bbri/internal/chart"
	"github.com/shintothemars/tft-bbri/internal/features"
	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/metrics"
	"github.com/shintothemars/tft-bbri/internal/model"
)

type stubPredictor struct {
	res    *forecast.Result
	err    error
	target time.Time
	calls  int
}

func (p *stubPredictor) Predict(_ context.Context, target time.Time) (*forecast.Result, error) {
	p.calls++
	p.target = target
	return p.res, p.err
}

func sampleResult() *forecast.Result {
	return &forecast.Result{
		ID:                "id-1",
		Success:           true,
		Symbol:            "BBRI.JK",
		TargetDate:        "2025-06-11",
		LastDataDate:      "2025-06-09",
		PredictionHorizon: 2,
		Predictions: forecast.Predictions{
			Dates:      []string{"2025-06-10", "2025-06-11"},
			Median:     []float64{5010, 5030},
			LowerBound: []float64{4900, 4880},
			UpperBound: []float64{5100, 5150},
		},
		Historical: forecast.Historical{
			Dates: []string{"2025-06-06", "2025-06-09"},
			Close: []float64{4980, 5000},
		},
		Analysis: forecast.Analysis{
			LastPrice:       5000,
			PredictedPrice:  5030,
			TrendPercentage: 0.6,
			TrendDirection:  forecast.DirectionUp,
			ConfidenceRange: forecast.ConfidenceRange{Lower: 4880, Upper: 5150},
		},
		Status: forecast.StatusNominal,
	}
}

func newTestServer(t *testing.T, p Predictor, chartEnabled bool) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	h := NewHandler(p, Options{ChartEnabled: chartEnabled, Chart: chart.DefaultOptions()}, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(h, RouterOptions{
		RequestTimeout: 5 * time.Second,
		Gatherer:       reg,
		Observer:       rec,
	}))
	t.Cleanup(srv.Close)
	return srv, reg
}

func postPredict(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, payload
}

func TestPredictSuccess(t *testing.T) {
	p := &stubPredictor{res: sampleResult()}
	srv, _ := newTestServer(t, p, true)

	for _, path := range []string{"/predict/", "/api/predict/"} {
		resp, body := postPredict(t, srv, path, `{"target_date":"2025-06-11"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %v", path, resp.StatusCode, body)
		}
		if body["success"] != true || body["symbol"] != "BBRI.JK" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
		analysis := body["analysis"].(map[string]any)
		if analysis["trend_direction"] != "up" {
			t.Fatalf("unexpected analysis %v", analysis)
		}
		ch, ok := body["chart"].(map[string]any)
		if !ok || ch["format"] != "png" || ch["data"] == "" {
			t.Fatalf("chart payload missing: %v", body["chart"])
		}
	}

	want := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	if !p.target.Equal(want) {
		t.Fatalf("expected target %s, got %s", want, p.target)
	}
}

func TestPredictWithoutChart(t *testing.T) {
	srv, _ := newTestServer(t, &stubPredictor{res: sampleResult()}, false)
	_, body := postPredict(t, srv, "/predict/", `{"target_date":"2025-06-11"}`)
	if _, ok := body["chart"]; ok {
		t.Fatal("chart should be omitted when disabled")
	}
}

func TestPredictValidation(t *testing.T) {
	p := &stubPredictor{res: sampleResult()}
	srv, _ := newTestServer(t, p, false)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing", `{}`, "target_date is required"},
		{"empty", `{"target_date":""}`, "target_date is required"},
		{"malformed", `{"target_date":"11/06/2025"}`, "expected format YYYY-MM-DD"},
		{"not json", `target_date=2025-06-11`, "invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postPredict(t, srv, "/predict/", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			msg, _ := body["error"].(string)
			if !strings.Contains(msg, tc.want) {
				t.Fatalf("expected %q in %q", tc.want, msg)
			}
		})
	}
	if p.calls != 0 {
		t.Fatalf("invalid requests must not reach the pipeline, got %d calls", p.calls)
	}
}

func TestPredictClientErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			"horizon",
			&forecast.StageError{Stage: forecast.StageFeaturizing, Err: &forecast.InvalidHorizonError{
				Target:   time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
				LastDate: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
				Horizon:  0,
				Max:      30,
			}},
			"target date must be after last available date 2025-06-09",
		},
		{
			"insufficient",
			&forecast.StageError{Stage: forecast.StageFeaturizing, Err: &features.InsufficientDataError{Rows: 12, Required: 60}},
			"12 rows available",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubPredictor{err: tc.err}, false)
			resp, body := postPredict(t, srv, "/predict/", `{"target_date":"2025-06-09"}`)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tc.want) {
				t.Fatalf("expected %q in %q", tc.want, msg)
			}
		})
	}
}

func TestPredictServerError(t *testing.T) {
	loadErr := &model.ModelLoadError{Path: "weights.json", Err: errors.New("unexpected EOF")}
	srv, _ := newTestServer(t, &stubPredictor{err: loadErr}, false)

	resp, body := postPredict(t, srv, "/predict/", `{"target_date":"2025-06-11"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	msg, _ := body["error"].(string)
	if !strings.HasPrefix(msg, "prediction failed: ") || !strings.Contains(msg, "unexpected EOF") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubPredictor{}, false)

	for _, path := range []string{"/health/", "/api/health/"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var body healthResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if body.Status != "healthy" || body.Service != ServiceName || body.Version == "" {
			t.Fatalf("unexpected health %+v", body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubPredictor{res: sampleResult()}, false)
	postPredict(t, srv, "/predict/", `{"target_date":"2025-06-11"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(buf.String(), `tftbbri_http_requests_total{method="POST",route="/predict/",status="200"} 1`) {
		t.Fatalf("request metric missing:\n%s", buf.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &stubPredictor{}, false)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/predict/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d %v", resp.StatusCode, resp.Header)
	}
}
