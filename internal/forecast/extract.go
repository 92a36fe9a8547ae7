package forecast

import (
	"fmt"
	"math"

	"github.com/shintothemars/tft-bbri/internal/model"
)

// QuantileIndex locates the lower, median and upper levels in the output tensor.
type QuantileIndex struct {
	Lower  int
	Median int
	Upper  int
}

// ResolveIndex finds the positions of the requested levels among levels.
func ResolveIndex(levels []float64, lower, median, upper float64) (QuantileIndex, error) {
	find := func(want float64) (int, error) {
		for i, l := range levels {
			if math.Abs(l-want) < 1e-9 {
				return i, nil
			}
		}
		return 0, fmt.Errorf("quantile level %v not produced by model (levels %v)", want, levels)
	}

	var idx QuantileIndex
	var err error
	if idx.Lower, err = find(lower); err != nil {
		return QuantileIndex{}, err
	}
	if idx.Median, err = find(median); err != nil {
		return QuantileIndex{}, err
	}
	if idx.Upper, err = find(upper); err != nil {
		return QuantileIndex{}, err
	}
	return idx, nil
}

func (q QuantileIndex) max() int {
	m := q.Lower
	if q.Median > m {
		m = q.Median
	}
	if q.Upper > m {
		m = q.Upper
	}
	return m
}

// Bands are horizon-aligned median and interval series.
type Bands struct {
	Median      []float64
	Lower       []float64
	Upper       []float64
	Approximate bool
}

// ExtractBands slices the first horizon steps out of a model output.
// Rank-3 [batch, steps, quantiles] and rank-2 [steps, quantiles] tensors are
// read directly; any other shape is treated as a flat median series with
// lower/upper set to median*(1-band) and median*(1+band).
func ExtractBands(t model.Tensor, horizon int, idx QuantileIndex, band float64) (Bands, error) {
	if horizon <= 0 {
		return Bands{}, fmt.Errorf("horizon must be positive, got %d", horizon)
	}

	switch t.Rank() {
	case 3:
		if t.Shape[0] < 1 || t.Shape[1] < horizon || t.Shape[2] <= idx.max() {
			return Bands{}, fmt.Errorf("model output %v too small for horizon %d", t.Shape, horizon)
		}
		out := newBands(horizon)
		for h := 0; h < horizon; h++ {
			out.Lower[h] = t.At(0, h, idx.Lower)
			out.Median[h] = t.At(0, h, idx.Median)
			out.Upper[h] = t.At(0, h, idx.Upper)
		}
		return out, nil
	case 2:
		if t.Shape[0] < horizon || t.Shape[1] <= idx.max() {
			return Bands{}, fmt.Errorf("model output %v too small for horizon %d", t.Shape, horizon)
		}
		out := newBands(horizon)
		for h := 0; h < horizon; h++ {
			out.Lower[h] = t.At(h, idx.Lower)
			out.Median[h] = t.At(h, idx.Median)
			out.Upper[h] = t.At(h, idx.Upper)
		}
		return out, nil
	default:
		flat := t.Flatten()
		if len(flat) < horizon {
			return Bands{}, fmt.Errorf("model output has %d values, horizon %d", len(flat), horizon)
		}
		out := newBands(horizon)
		out.Approximate = true
		for h := 0; h < horizon; h++ {
			out.Median[h] = flat[h]
			out.Lower[h] = flat[h] * (1 - band)
			out.Upper[h] = flat[h] * (1 + band)
		}
		return out, nil
	}
}

func newBands(n int) Bands {
	return Bands{
		Median: make([]float64, n),
		Lower:  make([]float64, n),
		Upper:  make([]float64, n),
	}
}
