package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
)

const DefaultSearchURL = "https://query1.finance.yahoo.com/v1/finance/search"

// Search looks up symbols matching query through the Yahoo autocomplete API
func (y *Yahoo) Search(ctx context.Context, query string, limit int) ([]collector.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []collector.Match{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", strconv.Itoa(limit))
	params.Set("newsCount", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.searchURL+"?"+params.Encode(), nil)
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
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("searching symbols: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	matches := make([]collector.Match, 0, len(result.Quotes))
	for _, q := range result.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		matches = append(matches, collector.Match{
			Symbol:   q.Symbol,
			Name:     name,
			Exchange: q.Exchange,
			Type:     strings.ToLower(q.QuoteType),
		})
		if len(matches) == limit {
			break
		}
	}

	y.logger.Debug("symbol search", zap.String("query", query), zap.Int("matches", len(matches)))
	return matches, nil
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}
