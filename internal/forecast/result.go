package forecast

import "time"

// Direction classifies the forecast trend.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Reason tags a degraded prediction.
type Reason string

const (
	ReasonSyntheticData        Reason = "synthetic-data"
	ReasonUntrainedModel       Reason = "untrained-model"
	ReasonApproximateQuantiles Reason = "approximate-quantiles"
)

const (
	StatusNominal  = "nominal"
	StatusDegraded = "degraded"
)

// Result is the payload of a successful prediction.
type Result struct {
	ID                string         `json:"id"`
	Success           bool           `json:"success"`
	Symbol            string         `json:"symbol"`
	TargetDate        string         `json:"target_date"`
	LastDataDate      string         `json:"last_data_date"`
	PredictionHorizon int            `json:"prediction_horizon"`
	Predictions       Predictions    `json:"predictions"`
	Historical        Historical     `json:"historical"`
	Analysis          Analysis       `json:"analysis"`
	Quantiles         QuantileLevels `json:"quantiles"`
	DataSource        string         `json:"data_source"`
	ModelState        string         `json:"model_state"`
	Status            string         `json:"status"`
	Degraded          []Reason       `json:"degraded,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

// Predictions holds horizon-aligned forecast series.
type Predictions struct {
	Dates      []string  `json:"dates"`
	Median     []float64 `json:"median"`
	LowerBound []float64 `json:"lower_bound"`
	UpperBound []float64 `json:"upper_bound"`
}

// Historical holds the trailing observed closes.
type Historical struct {
	Dates []string  `json:"dates"`
	Close []float64 `json:"close"`
}

// Analysis summarises the forecast relative to the last observed close.
type Analysis struct {
	LastPrice       float64         `json:"last_price"`
	PredictedPrice  float64         `json:"predicted_price"`
	TrendPercentage float64         `json:"trend_percentage"`
	TrendDirection  Direction       `json:"trend_direction"`
	ConfidenceRange ConfidenceRange `json:"confidence_range"`
}

// ConfidenceRange is the interval at the final horizon step.
type ConfidenceRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// QuantileLevels records which quantile levels produced the bands.
type QuantileLevels struct {
	Lower  float64 `json:"lower"`
	Median float64 `json:"median"`
	Upper  float64 `json:"upper"`
}

// IsDegraded reports whether any degradation applies.
func (r *Result) IsDegraded() bool {
	return len(r.Degraded) > 0
}

// HasDegradation reports whether reason applies.
func (r *Result) HasDegradation(reason Reason) bool {
	for _, d := range r.Degraded {
		if d == reason {
			return true
		}
	}
	return false
}

// Trend computes the percentage change from last to the final median and
// the binary direction; equality counts as down.
func Trend(last, final float64) (float64, Direction) {
	pct := (final - last) / last * 100
	if final > last {
		return pct, DirectionUp
	}
	return pct, DirectionDown
}
