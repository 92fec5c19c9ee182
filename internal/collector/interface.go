package collector

import (
	"context"
	"time"

	"github.com/newthinker/tadash/internal/core"
)

// Config holds collector configuration
type Config struct {
	BaseURL   string
	SearchURL string
	Timeout   time.Duration
}

// Collector fetches historical bars from a market data provider.
//
// FetchHistory returns bars ascending by time, one per timestamp. An empty
// slice with a nil error means the provider had no data for the query.
type Collector interface {
	Name() string
	FetchHistory(ctx context.Context, q core.Query) ([]core.Bar, error)
}

// Match is one symbol lookup result
type Match struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"`
}

// Searcher resolves free text to ticker symbols
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Match, error)
}
