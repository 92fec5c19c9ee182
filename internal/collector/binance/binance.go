// Package binance collects crypto klines from the Binance spot API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	defaultTimeout = 10 * time.Second
	defaultQuote   = "USDT"

	// klines are capped at 1000 per request
	pageLimit = 1000
	maxPages  = 20

	codeInvalidSymbol = -1121
)

// Binance implements collector.Collector for Binance spot pairs
type Binance struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new Binance collector
func New(cfg collector.Config, logger *zap.Logger) *Binance {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Binance{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger,
		now:     time.Now,
	}
}

func (b *Binance) Name() string {
	return "binance"
}

func toInterval(i core.Interval) string {
	switch i {
	case core.Interval1H:
		return "1h"
	case core.Interval1Wk:
		return "1w"
	default:
		return "1d"
	}
}

// startOf returns the beginning of the period window ending at end
func startOf(p core.Period, end time.Time) time.Time {
	switch p {
	case core.Period1Mo:
		return end.AddDate(0, -1, 0)
	case core.Period6Mo:
		return end.AddDate(0, -6, 0)
	case core.Period1Y:
		return end.AddDate(-1, 0, 0)
	case core.Period2Y:
		return end.AddDate(-2, 0, 0)
	default:
		return end.AddDate(0, -3, 0)
	}
}

// FetchHistory pages through klines covering the query's period
func (b *Binance) FetchHistory(ctx context.Context, q core.Query) ([]core.Bar, error) {
	pair, ok := NormalizeSymbol(q.Symbol, defaultQuote)
	if !ok {
		b.logger.Debug("not a binance pair", zap.String("symbol", q.Symbol))
		return []core.Bar{}, nil
	}

	end := b.now().UTC()
	start := startOf(q.Period, end)

	bars := make([]core.Bar, 0, 128)
	for page := 0; page < maxPages; page++ {
		batch, err := b.fetchPage(ctx, pair, toInterval(q.Interval), start, end)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return []core.Bar{}, nil
		}
		for _, bar := range batch {
			if n := len(bars); n > 0 && !bar.Time.After(bars[n-1].Time) {
				continue
			}
			bars = append(bars, bar)
		}
		if len(batch) < pageLimit {
			break
		}
		start = batch[len(batch)-1].Time.Add(time.Millisecond)
	}

	b.logger.Debug("fetched history",
		zap.String("query", q.String()),
		zap.String("pair", pair),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// fetchPage returns nil, nil when Binance does not know the pair
func (b *Binance) fetchPage(ctx context.Context, pair, interval string, start, end time.Time) ([]core.Bar, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+params.Encode(), nil)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, core.WrapError(core.ErrCollectorTimeout, err)
		}
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching klines: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Code == codeInvalidSymbol {
			return nil, nil
		}
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("binance error %d: %s", apiErr.Code, apiErr.Msg))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var klines [][]any
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	bars := make([]core.Bar, 0, len(klines))
	for _, k := range klines {
		if bar, ok := toBar(k); ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// toBar reads [openTime, open, high, low, close, volume, ...]
func toBar(k []any) (core.Bar, bool) {
	if len(k) < 6 {
		return core.Bar{}, false
	}
	openTime, ok := k[0].(float64)
	if !ok {
		return core.Bar{}, false
	}
	var vals [5]float64
	for i := range vals {
		s, _ := k[i+1].(string)
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return core.Bar{}, false
		}
		vals[i] = v
	}
	return core.Bar{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
