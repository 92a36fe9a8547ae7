package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/shintothemars/tft-bbri/internal/window"
)

const artifactFormat = "tftbbri-quantile-v1"

// DefaultQuantiles are the output levels of the forecaster.
var DefaultQuantiles = []float64{0.02, 0.1, 0.25, 0.5, 0.75, 0.9, 0.98}

// Architecture holds hyper-parameters; zero fields take the tagged defaults.
type Architecture struct {
	HiddenSize int     `default:"32" json:"hidden_size"`
	Seed       int64   `default:"42" json:"seed"`
	InitScale  float64 `default:"0.1" json:"init_scale"`
	Spread     float64 `default:"0.05" json:"spread"`
}

// Predictor is the inference surface consumed by the orchestrator.
type Predictor interface {
	Predict(w *window.Window) (Tensor, error)
	Quantiles() []float64
	Untrained() bool
}

// Model is an immutable quantile sequence model. It is safe for concurrent use.
type Model struct {
	schema    window.Schema
	quantiles []float64
	untrained bool

	inputSize  int
	hiddenSize int
	w1         [][]float64
	b1         []float64
	w2         [][]float64
	b2         []float64
}

type artifact struct {
	Format              string      `json:"format"`
	Trained             bool        `json:"trained"`
	Quantiles           []float64   `json:"quantiles"`
	MaxEncoderLength    int         `json:"max_encoder_length"`
	MaxPredictionLength int         `json:"max_prediction_length"`
	UnknownReals        []string    `json:"time_varying_unknown_reals"`
	InputSize           int         `json:"input_size"`
	HiddenSize          int         `json:"hidden_size"`
	W1                  [][]float64 `json:"w1"`
	B1                  []float64   `json:"b1"`
	W2                  [][]float64 `json:"w2"`
	B2                  []float64   `json:"b2"`
}

func inputSize(schema window.Schema) int {
	return schema.MaxEncoderLength + len(schema.UnknownReals) + 1
}

// newFresh builds a deterministic, untrained model whose median follows the
// last observation and whose quantile spread widens with the horizon.
func newFresh(schema window.Schema, quantiles []float64, arch Architecture) *Model {
	in := inputSize(schema)
	outputs := schema.MaxPredictionLength * len(quantiles)
	rng := rand.New(rand.NewSource(arch.Seed))

	w1 := make([][]float64, arch.HiddenSize)
	for i := range w1 {
		w1[i] = make([]float64, in)
		for j := range w1[i] {
			w1[i][j] = rng.NormFloat64() * arch.InitScale / math.Sqrt(float64(in))
		}
	}

	w2 := make([][]float64, outputs)
	for i := range w2 {
		w2[i] = make([]float64, arch.HiddenSize)
	}

	b2 := make([]float64, outputs)
	for step := 0; step < schema.MaxPredictionLength; step++ {
		for q, level := range quantiles {
			b2[step*len(quantiles)+q] = normalQuantile(level) * arch.Spread * math.Sqrt(float64(step+1))
		}
	}

	return &Model{
		schema:     schema,
		quantiles:  append([]float64(nil), quantiles...),
		untrained:  true,
		inputSize:  in,
		hiddenSize: arch.HiddenSize,
		w1:         w1,
		b1:         make([]float64, arch.HiddenSize),
		w2:         w2,
		b2:         b2,
	}
}

func fromArtifact(schema window.Schema, quantiles []float64, a artifact) (*Model, error) {
	if a.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	if !sameLevels(a.Quantiles, quantiles) {
		return nil, fmt.Errorf("artifact quantiles %v do not match configured %v", a.Quantiles, quantiles)
	}
	if a.MaxEncoderLength != schema.MaxEncoderLength || a.MaxPredictionLength != schema.MaxPredictionLength {
		return nil, fmt.Errorf("artifact lengths (%d, %d) do not match schema (%d, %d)",
			a.MaxEncoderLength, a.MaxPredictionLength, schema.MaxEncoderLength, schema.MaxPredictionLength)
	}
	if len(a.UnknownReals) != len(schema.UnknownReals) {
		return nil, fmt.Errorf("artifact has %d unknown reals, schema has %d", len(a.UnknownReals), len(schema.UnknownReals))
	}
	for i, name := range a.UnknownReals {
		if name != schema.UnknownReals[i] {
			return nil, fmt.Errorf("artifact column %d is %q, schema expects %q", i, name, schema.UnknownReals[i])
		}
	}

	in := inputSize(schema)
	outputs := schema.MaxPredictionLength * len(quantiles)
	if a.InputSize != in || a.HiddenSize <= 0 {
		return nil, fmt.Errorf("artifact input/hidden size (%d, %d) incompatible with %d inputs", a.InputSize, a.HiddenSize, in)
	}
	if err := checkMatrix("w1", a.W1, a.HiddenSize, in); err != nil {
		return nil, err
	}
	if err := checkMatrix("w2", a.W2, outputs, a.HiddenSize); err != nil {
		return nil, err
	}
	if len(a.B1) != a.HiddenSize || len(a.B2) != outputs {
		return nil, fmt.Errorf("artifact bias sizes (%d, %d) expected (%d, %d)", len(a.B1), len(a.B2), a.HiddenSize, outputs)
	}

	return &Model{
		schema:     schema,
		quantiles:  append([]float64(nil), quantiles...),
		untrained:  !a.Trained,
		inputSize:  in,
		hiddenSize: a.HiddenSize,
		w1:         a.W1,
		b1:         a.B1,
		w2:         a.W2,
		b2:         a.B2,
	}, nil
}

// Quantiles returns the output levels in tensor order.
func (m *Model) Quantiles() []float64 {
	return append([]float64(nil), m.quantiles...)
}

// Untrained reports whether the weights came from fresh initialization.
func (m *Model) Untrained() bool { return m.untrained }

// Predict runs inference and returns a [1, decoder_length, quantiles] tensor in price space.
func (m *Model) Predict(w *window.Window) (Tensor, error) {
	if w == nil || len(w.Encoder) == 0 {
		return Tensor{}, fmt.Errorf("predict: empty window")
	}
	if w.EncoderLength > m.schema.MaxEncoderLength || len(w.Encoder) != w.EncoderLength {
		return Tensor{}, fmt.Errorf("predict: encoder length %d exceeds %d", w.EncoderLength, m.schema.MaxEncoderLength)
	}
	if w.DecoderLength <= 0 || w.DecoderLength > m.schema.MaxPredictionLength {
		return Tensor{}, fmt.Errorf("predict: decoder length %d not in [1, %d]", w.DecoderLength, m.schema.MaxPredictionLength)
	}

	x, last := m.features(w)

	hidden := make([]float64, m.hiddenSize)
	for i := range hidden {
		sum := m.b1[i]
		for j, v := range x {
			sum += m.w1[i][j] * v
		}
		hidden[i] = math.Tanh(sum)
	}

	nq := len(m.quantiles)
	out := NewTensor(1, w.DecoderLength, nq)
	step := make([]float64, nq)
	for t := 0; t < w.DecoderLength; t++ {
		for q := 0; q < nq; q++ {
			k := t*nq + q
			sum := m.b2[k]
			for j, h := range hidden {
				sum += m.w2[k][j] * h
			}
			step[q] = last + sum
		}
		sort.Float64s(step)
		for q, z := range step {
			out.Set(w.Normalizer.Inverse(z), 0, t, q)
		}
	}
	return out, nil
}

// features flattens the window into the input vector: right-aligned target
// lags relative to the last value, last-step covariates, encoder fill ratio.
func (m *Model) features(w *window.Window) ([]float64, float64) {
	target := w.EncoderTarget()
	last := target[len(target)-1]

	x := make([]float64, 0, m.inputSize)
	pad := m.schema.MaxEncoderLength - len(target)
	for i := 0; i < pad; i++ {
		x = append(x, target[0]-last)
	}
	for _, v := range target {
		x = append(x, v-last)
	}
	x = append(x, w.EncoderCovariates(len(target)-1)...)
	x = append(x, float64(w.EncoderLength)/float64(m.schema.MaxEncoderLength))
	return x[:m.inputSize], last
}

// Save writes the weights artifact to path.
func (m *Model) Save(path string) error {
	a := artifact{
		Format:              artifactFormat,
		Trained:             !m.untrained,
		Quantiles:           m.quantiles,
		MaxEncoderLength:    m.schema.MaxEncoderLength,
		MaxPredictionLength: m.schema.MaxPredictionLength,
		UnknownReals:        m.schema.UnknownReals,
		InputSize:           m.inputSize,
		HiddenSize:          m.hiddenSize,
		W1:                  m.w1,
		B1:                  m.b1,
		W2:                  m.w2,
		B2:                  m.b2,
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, payload, 0o644)
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("artifact %s has %d rows, expected %d", name, len(m), rows)
	}
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("artifact %s row %d has %d columns, expected %d", name, i, len(row), cols)
		}
	}
	return nil
}

func sameLevels(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// normalQuantile is the inverse CDF of the standard normal distribution.
func normalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}
