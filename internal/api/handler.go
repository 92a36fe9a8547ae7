package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/shintothemars/tft-bbri/internal/chart"
	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/version"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "BBRI Stock Prediction API"

// Predictor runs one forecast.
type Predictor interface {
	Predict(ctx context.Context, target time.Time) (*forecast.Result, error)
}

// Options configure response rendering.
type Options struct {
	ChartEnabled bool
	Chart        chart.Options
}

// Handler serves the prediction API.
type Handler struct {
	predictor Predictor
	opts      Options
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewHandler constructs the HTTP handler set.
func NewHandler(predictor Predictor, opts Options, logger zerolog.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		predictor: predictor,
		opts:      opts,
		validate:  v,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

type predictRequest struct {
	TargetDate string `json:"target_date" validate:"required,datetime=2006-01-02"`
}

type predictResponse struct {
	*forecast.Result
	Chart *chart.Payload `json:"chart,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// HandlePredict forecasts up to the requested target date.
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	target, err := forecast.ParseTargetDate(req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.predictor.Predict(r.Context(), target)
	if err != nil {
		if forecast.IsClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("target_date", req.TargetDate).
			Msg("prediction failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("prediction failed: %s", err.Error()))
		return
	}

	resp := predictResponse{Result: res}
	if h.opts.ChartEnabled {
		payload, err := chart.RenderPayload(res, h.opts.Chart)
		if err != nil {
			h.logger.Warn().Err(err).Str("prediction_id", res.ID).Msg("chart rendering failed; omitting chart")
		} else {
			resp.Chart = payload
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Service: ServiceName,
		Version: version.Version,
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("invalid %s %q: expected format YYYY-MM-DD", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
