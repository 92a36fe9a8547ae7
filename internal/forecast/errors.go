package forecast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shintothemars/tft-bbri/internal/features"
	"github.com/shintothemars/tft-bbri/internal/market"
	"github.com/shintothemars/tft-bbri/internal/window"
)

// InvalidTargetDateError reports a missing or malformed target date.
type InvalidTargetDateError struct {
	Value string
	Err   error
}

func (e *InvalidTargetDateError) Error() string {
	if strings.TrimSpace(e.Value) == "" {
		return "target_date is required"
	}
	return fmt.Sprintf("invalid target_date %q: expected format YYYY-MM-DD", e.Value)
}

func (e *InvalidTargetDateError) Unwrap() error { return e.Err }

// InvalidHorizonError reports a target date outside (last_date, last_date+max].
type InvalidHorizonError struct {
	Target   time.Time
	LastDate time.Time
	Horizon  int
	Max      int
}

func (e *InvalidHorizonError) Error() string {
	if e.Horizon <= 0 {
		return fmt.Sprintf("target date must be after last available date %s", e.LastDate.Format(market.DateLayout))
	}
	return fmt.Sprintf("maximum prediction horizon is %d days; %s is %d days after last available date %s",
		e.Max, e.Target.Format(market.DateLayout), e.Horizon, e.LastDate.Format(market.DateLayout))
}

// StageError carries the pipeline stage at which a prediction failed.
// Its message is the underlying error's message.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// ParseTargetDate parses a YYYY-MM-DD calendar date.
func ParseTargetDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, &InvalidTargetDateError{Value: value}
	}
	t, err := time.Parse(market.DateLayout, trimmed)
	if err != nil {
		return time.Time{}, &InvalidTargetDateError{Value: value, Err: err}
	}
	return t, nil
}

// IsClientError reports whether err stems from the request rather than the system.
func IsClientError(err error) bool {
	var (
		dateErr    *InvalidTargetDateError
		horizonErr *InvalidHorizonError
		dataErr    *features.InsufficientDataError
		shortErr   *window.WindowTooShortError
	)
	return errors.As(err, &dateErr) ||
		errors.As(err, &horizonErr) ||
		errors.As(err, &dataErr) ||
		errors.As(err, &shortErr)
}
