package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync/atomic"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/shintothemars/tft-bbri/internal/window"
)

// ModelLoadError reports that a weights artifact exists but cannot be used.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model weights %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Options configure model construction.
type Options struct {
	WeightsPath  string
	Quantiles    []float64
	Architecture Architecture
}

// Loader builds the model once and hands out the shared instance.
type Loader struct {
	opts   Options
	schema window.Schema
	logger zerolog.Logger

	group  singleflight.Group
	model  atomic.Pointer[Model]
	builds atomic.Int64
}

// NewLoader validates options and prepares a lazy loader.
func NewLoader(opts Options, schema window.Schema, logger zerolog.Logger) (*Loader, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(opts.Quantiles) == 0 {
		opts.Quantiles = append([]float64(nil), DefaultQuantiles...)
	}
	if !sort.Float64sAreSorted(opts.Quantiles) {
		return nil, fmt.Errorf("quantiles must be ascending: %v", opts.Quantiles)
	}
	for _, q := range opts.Quantiles {
		if q <= 0 || q >= 1 {
			return nil, fmt.Errorf("quantile %v outside (0, 1)", q)
		}
	}
	if err := defaults.Set(&opts.Architecture); err != nil {
		return nil, fmt.Errorf("apply architecture defaults: %w", err)
	}

	return &Loader{
		opts:   opts,
		schema: schema,
		logger: logger.With().Str("component", "model_loader").Logger(),
	}, nil
}

// Load returns the shared model, building it on first use. Concurrent first
// callers share a single build; failures are not memoized.
func (l *Loader) Load(ctx context.Context) (*Model, error) {
	if m := l.model.Load(); m != nil {
		return m, nil
	}

	ch := l.group.DoChan("model", func() (any, error) {
		if m := l.model.Load(); m != nil {
			return m, nil
		}
		m, err := l.build()
		if err != nil {
			return nil, err
		}
		l.model.Store(m)
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Model), nil
	}
}

// Loaded reports whether a model has been built.
func (l *Loader) Loaded() bool {
	return l.model.Load() != nil
}

// Builds reports how many times the model has been constructed.
func (l *Loader) Builds() int64 {
	return l.builds.Load()
}

// Fresh returns a newly initialized model without touching the artifact.
func (l *Loader) Fresh() *Model {
	return newFresh(l.schema, l.opts.Quantiles, l.opts.Architecture)
}

func (l *Loader) build() (*Model, error) {
	l.builds.Add(1)
	path := l.opts.WeightsPath

	if path == "" {
		l.logger.Warn().Msg("model.weights_path not configured; using freshly initialized weights")
		return l.Fresh(), nil
	}

	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn().Str("path", path).Msg("weights artifact not found; using freshly initialized weights")
		return l.Fresh(), nil
	}
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, &ModelLoadError{Path: path, Err: fmt.Errorf("decode artifact: %w", err)}
	}

	m, err := fromArtifact(l.schema, l.opts.Quantiles, a)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	l.logger.Info().Str("path", path).Int("hidden_size", m.hiddenSize).Floats64("quantiles", m.quantiles).Msg("model weights loaded")
	return m, nil
}

var _ Predictor = (*Model)(nil)

// Predictor loads the model and returns it behind the inference interface.
func (l *Loader) Predictor(ctx context.Context) (Predictor, error) {
	m, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}
