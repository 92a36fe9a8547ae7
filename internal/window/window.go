package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/shintothemars/tft-bbri/internal/features"
)

// ErrInvalidLength is returned for encoder or decoder lengths outside the schema bounds.
var ErrInvalidLength = errors.New("window length outside schema bounds")

// Schema declares column roles and length bounds shared by the window
// builder and the model topology.
type Schema struct {
	TimeIdx             string   `json:"time_idx"`
	Target              string   `json:"target"`
	GroupIDs            []string `json:"group_ids"`
	StaticCategoricals  []string `json:"static_categoricals"`
	KnownReals          []string `json:"time_varying_known_reals"`
	UnknownReals        []string `json:"time_varying_unknown_reals"`
	MinEncoderLength    int      `json:"min_encoder_length"`
	MaxEncoderLength    int      `json:"max_encoder_length"`
	MinPredictionLength int      `json:"min_prediction_length"`
	MaxPredictionLength int      `json:"max_prediction_length"`
}

// DefaultSchema returns the layout the forecaster uses for BBRI.
func DefaultSchema() Schema {
	return Schema{
		TimeIdx:             "time_idx",
		Target:              "close",
		GroupIDs:            []string{"series"},
		StaticCategoricals:  []string{"series"},
		KnownReals:          []string{"time_idx"},
		UnknownReals:        append([]string(nil), features.UnknownReals...),
		MinEncoderLength:    30,
		MaxEncoderLength:    60,
		MinPredictionLength: 1,
		MaxPredictionLength: 30,
	}
}

// Validate checks the length bounds.
func (s Schema) Validate() error {
	if s.MinEncoderLength <= 0 || s.MaxEncoderLength < s.MinEncoderLength {
		return fmt.Errorf("encoder length bounds [%d, %d] are invalid", s.MinEncoderLength, s.MaxEncoderLength)
	}
	if s.MinPredictionLength <= 0 || s.MaxPredictionLength < s.MinPredictionLength {
		return fmt.Errorf("prediction length bounds [%d, %d] are invalid", s.MinPredictionLength, s.MaxPredictionLength)
	}
	if len(s.UnknownReals) == 0 {
		return errors.New("schema declares no unknown reals")
	}
	return nil
}

// WindowTooShortError reports that fewer rows exist than the window needs.
type WindowTooShortError struct {
	Rows     int
	Required int
}

func (e *WindowTooShortError) Error() string {
	return fmt.Sprintf("not enough rows to build a window: have %d, need %d", e.Rows, e.Required)
}

// Window is one encoder/decoder slice ready for inference.
type Window struct {
	SeriesID      string
	EncoderLength int
	DecoderLength int

	Encoder          []features.Row
	DecoderTimeIndex []int

	Normalizer GroupNormalizer
	Scalers    []Scaler
	LastDate   time.Time
}

// EncoderTarget returns the encoder targets in normalized space.
func (w *Window) EncoderTarget() []float64 {
	out := make([]float64, len(w.Encoder))
	for i, r := range w.Encoder {
		out[i] = w.Normalizer.Transform(r.Target)
	}
	return out
}

// EncoderCovariates returns the scaled unknown reals of encoder step i.
func (w *Window) EncoderCovariates(i int) []float64 {
	raw := w.Encoder[i].Unknowns()
	out := make([]float64, len(raw))
	for j, v := range raw {
		if j < len(w.Scalers) {
			v = w.Scalers[j].Transform(v)
		}
		out[j] = v
	}
	return out
}

// LastObserved returns the last encoder row.
func (w *Window) LastObserved() features.Row {
	return w.Encoder[len(w.Encoder)-1]
}

// Builder slices feature tables into windows.
type Builder struct {
	schema Schema
}

// NewBuilder constructs a builder for schema.
func NewBuilder(schema Schema) *Builder {
	return &Builder{schema: schema}
}

// Schema returns the builder's schema.
func (b *Builder) Schema() Schema {
	return b.schema
}

// Build takes the last encoderLength rows as encoder and extends the time
// index decoderLength steps past the last observed row.
func (b *Builder) Build(rows []features.Row, encoderLength, decoderLength int) (*Window, error) {
	s := b.schema
	if encoderLength < s.MinEncoderLength || encoderLength > s.MaxEncoderLength {
		return nil, fmt.Errorf("%w: encoder length %d not in [%d, %d]", ErrInvalidLength, encoderLength, s.MinEncoderLength, s.MaxEncoderLength)
	}
	if decoderLength < s.MinPredictionLength || decoderLength > s.MaxPredictionLength {
		return nil, fmt.Errorf("%w: decoder length %d not in [%d, %d]", ErrInvalidLength, decoderLength, s.MinPredictionLength, s.MaxPredictionLength)
	}
	if len(rows) < encoderLength+1 {
		return nil, &WindowTooShortError{Rows: len(rows), Required: encoderLength + 1}
	}

	series := rows[0].SeriesID
	targets := make([]float64, len(rows))
	columns := make([][]float64, len(s.UnknownReals))
	for i, r := range rows {
		if r.SeriesID != series {
			return nil, fmt.Errorf("window spans multiple series: %q and %q", series, r.SeriesID)
		}
		targets[i] = r.Target
		for j, v := range r.Unknowns() {
			if j < len(columns) {
				columns[j] = append(columns[j], v)
			}
		}
	}

	scalers := make([]Scaler, len(columns))
	for j, col := range columns {
		scalers[j] = FitScaler(col)
	}

	encoder := append([]features.Row(nil), rows[len(rows)-encoderLength:]...)
	last := encoder[len(encoder)-1]

	decoderIdx := make([]int, decoderLength)
	for i := range decoderIdx {
		decoderIdx[i] = last.TimeIndex + 1 + i
	}

	return &Window{
		SeriesID:         series,
		EncoderLength:    encoderLength,
		DecoderLength:    decoderLength,
		Encoder:          encoder,
		DecoderTimeIndex: decoderIdx,
		Normalizer:       FitGroupNormalizer(targets),
		Scalers:          scalers,
		LastDate:         last.Date,
	}, nil
}
