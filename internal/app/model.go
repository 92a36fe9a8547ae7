package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shintothemars/tft-bbri/internal/model"
)

// ModelInit writes freshly initialized weights for an external trainer to refine.
func (a *App) ModelInit(_ context.Context, opts ModelInitOptions) error {
	path := opts.Path
	if path == "" {
		path = a.Config.Model.WeightsPath
	}
	if path == "" {
		return errors.New("model.weights_path is not configured")
	}

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	loader, err := model.NewLoader(model.Options{
		WeightsPath: path,
		Quantiles:   a.Config.Model.Quantiles,
		Architecture: model.Architecture{
			HiddenSize: a.Config.Model.HiddenSize,
			Seed:       a.Config.Model.Seed,
		},
	}, a.schema(), a.Logger)
	if err != nil {
		return err
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := loader.Fresh().Save(path); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}

	a.Logger.Info().Str("path", path).Msg("initial weights written")
	fmt.Fprintf(a.Out, "weights written to %s\n", path)
	return nil
}
