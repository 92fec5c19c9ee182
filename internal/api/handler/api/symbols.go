// internal/api/handler/api/symbols.go
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/newthinker/tadash/internal/api/response"
	"github.com/newthinker/tadash/internal/collector"
	"github.com/newthinker/tadash/internal/core"
	"go.uber.org/zap"
)

const maxSearchResults = 20

// SymbolsHandler handles symbol lookup and option listing requests
type SymbolsHandler struct {
	searcher collector.Searcher
	logger   *zap.Logger
}

// NewSymbolsHandler creates a new symbols handler. A nil searcher disables search.
func NewSymbolsHandler(searcher collector.Searcher, logger *zap.Logger) *SymbolsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SymbolsHandler{searcher: searcher, logger: logger}
}

// Search handles GET /api/v1/symbols/search?q=<query>&limit=<n>
func (h *SymbolsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 2 || h.searcher == nil {
		response.JSON(w, http.StatusOK, map[string]any{
			"results": []collector.Match{},
		})
		return
	}

	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = min(n, maxSearchResults)
		}
	}

	results, err := h.searcher.Search(r.Context(), query, limit)
	if err != nil {
		// Lookup is a convenience; a failing provider yields no suggestions
		h.logger.Warn("symbol search failed", zap.String("query", query), zap.Error(err))
		results = []collector.Match{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Options handles GET /api/v1/options, listing accepted periods and intervals
func (h *SymbolsHandler) Options(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"periods":   core.Periods,
		"intervals": core.Intervals,
		"defaults": map[string]string{
			"symbol":   core.DefaultSymbol,
			"period":   string(core.DefaultPeriod),
			"interval": string(core.DefaultInterval),
		},
	})
}
