package forecast

import (
	"time"

	"github.com/rs/zerolog"
)

// Stage is a step of the per-request pipeline.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageValidating     Stage = "validating"
	StageFetching       Stage = "fetching"
	StageFeaturizing    Stage = "featurizing"
	StageWindowing      Stage = "windowing"
	StageInferring      Stage = "inferring"
	StagePostprocessing Stage = "postprocessing"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// run tracks one prediction through its stages.
type run struct {
	id         string
	stage      Stage
	started    time.Time
	stageStart time.Time
	recorder   Recorder
	logger     zerolog.Logger
}

func (s *Service) begin() *run {
	id := s.opts.NewID()
	now := time.Now()
	return &run{
		id:         id,
		stage:      StageIdle,
		started:    now,
		stageStart: now,
		recorder:   s.recorder,
		logger:     s.logger.With().Str("prediction_id", id).Logger(),
	}
}

func (r *run) enter(next Stage) {
	now := time.Now()
	if r.stage != StageIdle && r.recorder != nil {
		r.recorder.ObserveStage(string(r.stage), now.Sub(r.stageStart))
	}
	r.logger.Debug().Str("from", string(r.stage)).Str("to", string(next)).Msg("stage transition")
	r.stage = next
	r.stageStart = now
}

func (r *run) fail(err error) error {
	failedAt := r.stage
	elapsed := time.Since(r.started)
	r.enter(StageFailed)

	outcome := "error"
	if IsClientError(err) {
		outcome = "rejected"
		r.logger.Info().Err(err).Str("stage", string(failedAt)).Msg("prediction rejected")
	} else {
		r.logger.Error().Err(err).Str("stage", string(failedAt)).Msg("prediction failed")
	}
	if r.recorder != nil {
		r.recorder.ObservePrediction(outcome, elapsed)
	}
	return &StageError{Stage: failedAt, Err: err}
}

func (r *run) finish(result *Result) {
	r.enter(StageDone)
	elapsed := time.Since(r.started)

	outcome := StatusNominal
	if result.IsDegraded() {
		outcome = StatusDegraded
		reasons := make([]string, len(result.Degraded))
		for i, reason := range result.Degraded {
			reasons[i] = string(reason)
			if r.recorder != nil {
				r.recorder.ObserveDegraded(string(reason))
			}
		}
		r.logger.Warn().Strs("reasons", reasons).Str("data_source", result.DataSource).Msg("prediction served in degraded mode")
	}
	if r.recorder != nil {
		r.recorder.ObservePrediction(outcome, elapsed)
	}

	r.logger.Info().
		Str("target_date", result.TargetDate).
		Int("horizon", result.PredictionHorizon).
		Float64("last_price", result.Analysis.LastPrice).
		Float64("predicted_price", result.Analysis.PredictedPrice).
		Str("direction", string(result.Analysis.TrendDirection)).
		Dur("elapsed", elapsed).
		Msg("prediction complete")
}
