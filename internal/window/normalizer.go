package window

import "math"

const softplusCutoff = 20.0

// GroupNormalizer maps prices into the model's target space: a softplus
// transform followed by centring and scaling with the group's statistics.
type GroupNormalizer struct {
	Center float64 `json:"center"`
	Scale  float64 `json:"scale"`
}

// FitGroupNormalizer estimates the normalizer over one group's targets.
func FitGroupNormalizer(targets []float64) GroupNormalizer {
	transformed := make([]float64, len(targets))
	for i, y := range targets {
		transformed[i] = inverseSoftplus(y)
	}
	center, scale := meanStd(transformed)
	return GroupNormalizer{Center: center, Scale: scale}
}

// Transform maps a price into normalized space.
func (n GroupNormalizer) Transform(y float64) float64 {
	return (inverseSoftplus(y) - n.Center) / n.scale()
}

// Inverse maps a normalized value back to price space.
func (n GroupNormalizer) Inverse(x float64) float64 {
	return softplus(x*n.scale() + n.Center)
}

func (n GroupNormalizer) scale() float64 {
	if n.Scale <= 0 || math.IsNaN(n.Scale) {
		return 1
	}
	return n.Scale
}

// Scaler standardises one covariate column.
type Scaler struct {
	Center float64 `json:"center"`
	Scale  float64 `json:"scale"`
}

// FitScaler estimates mean and standard deviation of values.
func FitScaler(values []float64) Scaler {
	center, scale := meanStd(values)
	return Scaler{Center: center, Scale: scale}
}

// Transform standardises v.
func (s Scaler) Transform(v float64) float64 {
	scale := s.Scale
	if scale <= 0 || math.IsNaN(scale) {
		scale = 1
	}
	return (v - s.Center) / scale
}

func softplus(x float64) float64 {
	if x > softplusCutoff {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func inverseSoftplus(y float64) float64 {
	if y > softplusCutoff {
		return y + math.Log(-math.Expm1(-y))
	}
	if y <= 0 {
		y = math.SmallestNonzeroFloat64
	}
	return math.Log(math.Expm1(y))
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))
	if std < 1e-8 {
		std = 1
	}
	return mean, std
}
