package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/shintothemars/tft-bbri/internal/market"
)

// UnknownReals lists the time-varying observed columns in model input order.
var UnknownReals = []string{
	"target", "open", "high", "low", "volume",
	"ma_7", "ma_30", "rsi", "macd", "macd_signal",
	"bb_upper", "bb_middle", "bb_lower",
}

// Row is a bar enriched with technical indicators.
type Row struct {
	market.Bar

	MAShort    float64 `json:"ma_7"`
	MALong     float64 `json:"ma_30"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`

	TimeIndex int     `json:"time_idx"`
	SeriesID  string  `json:"series"`
	Target    float64 `json:"target"`
}

// Unknowns returns the observed values in UnknownReals order.
func (r Row) Unknowns() []float64 {
	return []float64{
		r.Target, r.Open, r.High, r.Low, r.Volume,
		r.MAShort, r.MALong, r.RSI, r.MACD, r.MACDSignal,
		r.BBUpper, r.BBMiddle, r.BBLower,
	}
}

// InsufficientDataError reports that too few rows survived indicator warm-up.
type InsufficientDataError struct {
	Rows     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data after feature engineering: %d rows available, at least %d required", e.Rows, e.Required)
}

// Options configure indicator periods.
type Options struct {
	ShortWindow  int
	LongWindow   int
	RSIPeriod    int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	BollingerN   int
	BollingerDev float64
	MinRows      int
	SeriesID     string
}

// DefaultOptions returns the indicator set the forecaster was trained on.
func DefaultOptions() Options {
	return Options{
		ShortWindow:  7,
		LongWindow:   30,
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BollingerN:   20,
		BollingerDev: 2,
		MinRows:      60,
		SeriesID:     "BBRI",
	}
}

// Engineer derives indicator rows from bars.
type Engineer struct {
	opts Options
}

// NewEngineer constructs an Engineer; zero fields take their defaults.
func NewEngineer(opts Options) *Engineer {
	def := DefaultOptions()
	if opts.ShortWindow <= 0 {
		opts.ShortWindow = def.ShortWindow
	}
	if opts.LongWindow <= 0 {
		opts.LongWindow = def.LongWindow
	}
	if opts.RSIPeriod <= 0 {
		opts.RSIPeriod = def.RSIPeriod
	}
	if opts.MACDFast <= 0 || opts.MACDSlow <= 0 || opts.MACDSignal <= 0 {
		opts.MACDFast, opts.MACDSlow, opts.MACDSignal = def.MACDFast, def.MACDSlow, def.MACDSignal
	}
	if opts.MACDFast > opts.MACDSlow {
		opts.MACDFast, opts.MACDSlow = opts.MACDSlow, opts.MACDFast
	}
	if opts.BollingerN <= 0 {
		opts.BollingerN = def.BollingerN
	}
	if opts.BollingerDev <= 0 {
		opts.BollingerDev = def.BollingerDev
	}
	if opts.MinRows <= 0 {
		opts.MinRows = def.MinRows
	}
	if opts.SeriesID == "" {
		opts.SeriesID = def.SeriesID
	}
	return &Engineer{opts: opts}
}

// Warmup is the number of leading rows for which at least one indicator is undefined.
func (e *Engineer) Warmup() int {
	o := e.opts
	return maxInt(
		o.ShortWindow-1,
		o.LongWindow-1,
		o.RSIPeriod,
		(o.MACDSlow-1)+(o.MACDSignal-1),
		o.BollingerN-1,
	)
}

// Enrich computes indicators over bars (ascending by date) and returns the
// rows where every indicator is defined, with TimeIndex renumbered from 0.
func (e *Engineer) Enrich(bars []market.Bar) ([]Row, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Date.Before(bars[i].Date) {
			return nil, errors.New("bars must be strictly ascending by date")
		}
	}

	warmup := e.Warmup()
	if len(bars)-warmup < e.opts.MinRows {
		return nil, &InsufficientDataError{Rows: maxInt(len(bars)-warmup, 0), Required: e.opts.MinRows}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	o := e.opts
	maShort := talib.Sma(closes, o.ShortWindow)
	maLong := talib.Sma(closes, o.LongWindow)
	rsi := talib.Rsi(closes, o.RSIPeriod)
	macd, signal, _ := talib.Macd(closes, o.MACDFast, o.MACDSlow, o.MACDSignal)
	upper, middle, lower := talib.BBands(closes, o.BollingerN, o.BollingerDev, o.BollingerDev, talib.SMA)

	rows := make([]Row, 0, len(bars)-warmup)
	for i := warmup; i < len(bars); i++ {
		row := Row{
			Bar:        bars[i],
			MAShort:    maShort[i],
			MALong:     maLong[i],
			RSI:        rsi[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
			BBUpper:    upper[i],
			BBMiddle:   middle[i],
			BBLower:    lower[i],
			SeriesID:   o.SeriesID,
			Target:     bars[i].Close,
		}
		if !finite(row) {
			continue
		}
		row.TimeIndex = len(rows)
		rows = append(rows, row)
	}

	if len(rows) < o.MinRows {
		return nil, &InsufficientDataError{Rows: len(rows), Required: o.MinRows}
	}
	return rows, nil
}

func finite(r Row) bool {
	for _, v := range r.Unknowns() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func maxInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
