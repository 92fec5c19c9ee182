package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (compatible; tadash/1.0)"
)

// Yahoo implements the Yahoo Finance chart collector
type Yahoo struct {
	client    *http.Client
	baseURL   string
	searchURL string
	logger    *zap.Logger
}

// New creates a new Yahoo collector
func New(cfg collector.Config, logger *zap.Logger) *Yahoo {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	searchURL := strings.TrimSuffix(cfg.SearchURL, "/")
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Yahoo{
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		searchURL: searchURL,
		logger:    logger,
	}
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

func (y *Yahoo) historyURL(q core.Query) string {
	params := url.Values{}
	params.Set("range", string(q.Period))
	params.Set("interval", string(q.Interval))
	params.Set("includePrePost", "false")
	return fmt.Sprintf("%s/%s?%s", y.baseURL, url.PathEscape(y.toYahooSymbol(q.Symbol)), params.Encode())
}

// FetchHistory fetches historical OHLCV data for the query's range and interval
func (y *Yahoo) FetchHistory(ctx context.Context, q core.Query) ([]core.Bar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.historyURL(q), nil)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, core.WrapError(core.ErrCollectorTimeout, err)
		}
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	// Yahoo answers unknown symbols with 404 and a "Not Found" chart error
	if resp.StatusCode == http.StatusNotFound {
		y.logger.Debug("yahoo has no data", zap.String("query", q.String()))
		return []core.Bar{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return []core.Bar{}, nil
		}
		return nil, core.WrapError(core.ErrCollectorFailed,
			fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}

	if len(result.Chart.Result) == 0 {
		return []core.Bar{}, nil
	}

	bars := toBars(result.Chart.Result[0])
	y.logger.Debug("fetched history",
		zap.String("query", q.String()),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// toBars converts a chart result into ascending, de-duplicated bars.
// Rows without open/high/low are dropped; a missing close is kept as NaN.
func toBars(r chartResult) []core.Bar {
	if len(r.Indicators.Quote) == 0 {
		return []core.Bar{}
	}
	quotes := r.Indicators.Quote[0]
	loc := time.FixedZone(r.Meta.ExchangeTimezoneName, r.Meta.GMTOffset)

	data := make([]core.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, okO := at(quotes.Open, i)
		high, okH := at(quotes.High, i)
		low, okL := at(quotes.Low, i)
		if !okO || !okH || !okL {
			continue // Skip missing data
		}
		closePrice, ok := at(quotes.Close, i)
		if !ok {
			closePrice = math.NaN()
		}
		var volume float64
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			volume = float64(*quotes.Volume[i])
		}

		data = append(data, core.Bar{
			Time:   time.Unix(ts, 0).In(loc),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	sort.SliceStable(data, func(i, j int) bool { return data[i].Time.Before(data[j].Time) })

	// Keep the last bar for a repeated timestamp; Yahoo appends the live bar
	deduped := data[:0]
	for _, b := range data {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol               string `json:"symbol"`
	Currency             string `json:"currency"`
	ExchangeTimezoneName string `json:"exchangeTimezoneName"`
	GMTOffset            int    `json:"gmtoffset"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}
