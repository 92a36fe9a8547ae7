package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	yahooChartPath   = "/v8/finance/chart/{symbol}"
	defaultYahooBase = "https://query1.finance.yahoo.com"
	defaultUserAgent = "Mozilla/5.0 (compatible; tftbbri/1.0)"
)

// YahooOptions parameterise the Yahoo Finance provider.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo fetches daily bars from the Yahoo Finance chart API.
type Yahoo struct {
	opts   YahooOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewYahoo constructs a Yahoo Finance provider.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYahooBase
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", ua).
		SetHeader("Accept", "application/json")

	return &Yahoo{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "yahoo_source").Logger(),
	}
}

// Name identifies the provider in logs and results.
func (y *Yahoo) Name() string { return "yahoo" }

// FetchBars downloads daily bars in [start, end].
func (y *Yahoo) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if symbol == "" {
		return nil, &ProviderError{Provider: y.Name(), Err: errors.New("symbol is required")}
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(Day(start).Unix(), 10),
			"period2":  strconv.FormatInt(Day(end).AddDate(0, 0, 1).Unix(), 10),
			"interval": "1d",
			"events":   "history",
		}).
		Get(yahooChartPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: y.Name(), Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, parseHTTPError(y.Name(), resp.StatusCode(), resp.Body())
	}

	var payload yahooChart
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, &ProviderError{Provider: y.Name(), Status: resp.StatusCode(), Err: fmt.Errorf("decode chart: %w", err)}
	}
	if payload.Chart.Error != nil {
		return nil, &ProviderError{Provider: y.Name(), Err: fmt.Errorf("%s: %s", payload.Chart.Error.Code, payload.Chart.Error.Description)}
	}

	bars := payload.bars()
	if len(bars) == 0 {
		return nil, &EmptyResultError{Provider: y.Name(), Symbol: symbol}
	}

	y.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("downloaded bars")
	return bars, nil
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c yahooChart) bars() []Bar {
	if len(c.Chart.Result) == 0 {
		return nil
	}
	result := c.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, okO := at(quote.Open, i)
		h, okH := at(quote.High, i)
		l, okL := at(quote.Low, i)
		cl, okC := at(quote.Close, i)
		if !okO || !okH || !okL || !okC {
			continue
		}
		vol, _ := at(quote.Volume, i)
		bars = append(bars, Bar{
			Date:   Day(time.Unix(ts+result.Meta.GMTOffset, 0).UTC()),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  cl,
			Volume: vol,
		})
	}
	return Repair(bars)
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

type errorResponse struct {
	Chart struct {
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
	Finance struct {
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"finance"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if e := apiErr.Chart.Error; e != nil && e.Description != "" {
			return &ProviderError{Provider: provider, Status: status, Err: errors.New(e.Description)}
		}
		if e := apiErr.Finance.Error; e != nil && e.Description != "" {
			return &ProviderError{Provider: provider, Status: status, Err: errors.New(e.Description)}
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		if len(body) > 256 {
			body = body[:256]
		}
		return &ProviderError{Provider: provider, Status: status, Err: errors.New(body)}
	}
	return &ProviderError{Provider: provider, Status: status, Err: errors.New(http.StatusText(status))}
}

var _ Source = (*Yahoo)(nil)
